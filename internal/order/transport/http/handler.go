package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/benningd54/Anlab/internal/order/domain"
	"github.com/benningd54/Anlab/internal/order/pricing"
	"github.com/benningd54/Anlab/internal/order/repository/postgres"
	ordersvc "github.com/benningd54/Anlab/internal/order/service"
	"github.com/benningd54/Anlab/internal/platform/auth"
	"github.com/benningd54/Anlab/internal/platform/idempotency"
	"github.com/benningd54/Anlab/internal/platform/log"
	"github.com/benningd54/Anlab/pkg/request"
	"github.com/benningd54/Anlab/pkg/respond"
	"github.com/google/uuid"
)

const maxResultsBytes = 32 << 20

type Service interface {
	Submit(ctx context.Context, creatorID, project string, in ordersvc.DetailsInput) (*domain.Order, error)
	Confirm(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	Save(ctx context.Context, id uuid.UUID, project string, in ordersvc.DetailsInput) (*domain.Order, error)
	Receive(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	Complete(ctx context.Context, id uuid.UUID, in ordersvc.CompleteInput) (*domain.Order, error)
	UploadResults(ctx context.Context, id uuid.UUID, filename, contentType string, body io.Reader) (*domain.Order, error)
	Delete(ctx context.Context, id uuid.UUID) error

	Get(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	List(ctx context.Context, limit int, cursor string) (*ordersvc.Page, error)
	ListByCreator(ctx context.Context, creatorID string, limit int) ([]*domain.Order, error)
	LabOrders(ctx context.Context, limit int) ([]*domain.Order, error)
	PriceList(ctx context.Context) ([]pricing.TestItem, error)
}

type Handler struct {
	svc  Service
	log  *log.Logger
	idem *idempotency.Store
}

func NewHandler(svc Service, logger *log.Logger, idem *idempotency.Store) *Handler {
	return &Handler{svc: svc, log: logger, idem: idem}
}

// writeErr maps domain errors onto HTTP statuses. Guard rejections are
// conflicts; bad order details and unknown catalog codes are unprocessable.
func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		respond.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	}
	var missing *domain.MissingCodesError
	if errors.As(err, &missing) {
		respond.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":         "unknown test codes",
			"missing_codes": missing.Codes,
		})
		return
	}
	var invalid *domain.InvalidTransitionError
	if errors.As(err, &invalid) {
		respond.JSON(w, http.StatusConflict, map[string]any{
			"error":  invalid.Error(),
			"status": invalid.From,
		})
		return
	}
	if errors.Is(err, postgres.ErrNotFound) {
		respond.Error(w, http.StatusNotFound, "not found")
		return
	}
	h.log.Error("internal error", log.Err(err))
	respond.Error(w, http.StatusInternalServerError, "internal error")
}

func creatorID(r *http.Request) string {
	if sub := auth.Subject(r.Context()); sub != "" {
		return sub
	}
	return r.Header.Get("X-User-Id")
}

// PriceList serves the public catalog with both rate columns.
func (h *Handler) PriceList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	items, err := h.svc.PriceList(ctx)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"tests": items})
}

type submitReq struct {
	Project string               `json:"project"`
	Details ordersvc.DetailsInput `json:"details"`
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitReq
	if err := request.DecodeJSON(w, r, &req); err != nil {
		h.log.Error("failed to decode json", log.Err(err))
		respond.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	creator := creatorID(r)
	if creator == "" {
		respond.Error(w, http.StatusUnauthorized, "missing creator identity")
		return
	}

	const route = "POST:/api/v1/orders"
	key := r.Header.Get("Idempotency-Key")
	if key != "" {
		if res, err := h.idem.Get(r.Context(), key, route); err == nil && res.Found {
			if o, err := h.svc.Get(r.Context(), res.OrderID); err == nil && o != nil {
				respond.JSON(w, res.Status, o)
				return
			}
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.svc.Submit(ctx, creator, req.Project, req.Details)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if key != "" {
		if err := h.idem.Save(r.Context(), key, route, creator, o.ID, http.StatusCreated); err != nil {
			h.log.Error("failed to save idempotency key", log.Err(err))
		}
	}

	respond.JSON(w, http.StatusCreated, o)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chiURLParam(r, "id"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	o, err := h.svc.Get(ctx, id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, o)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	page, err := h.svc.List(ctx, limit, cursor)
	if err != nil {
		h.log.Error("failed to list orders", log.Err(err))
		respond.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	respond.JSON(w, http.StatusOK, page)
}

// MyOrders lists the calling client's own orders, newest first.
func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request) {
	creator := creatorID(r)
	if creator == "" {
		respond.Error(w, http.StatusUnauthorized, "missing creator identity")
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	orders, err := h.svc.ListByCreator(ctx, creator, limit)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// LabOrders lists the lab work queue: everything a client has confirmed.
func (h *Handler) LabOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 100
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	orders, err := h.svc.LabOrders(ctx, limit)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"orders": orders})
}

type saveReq struct {
	Project string               `json:"project"`
	Details ordersvc.DetailsInput `json:"details"`
}

func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chiURLParam(r, "id"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req saveReq
	if err := request.DecodeJSON(w, r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.svc.Save(ctx, id, req.Project, req.Details)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, o)
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Confirm)
}

func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Receive)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, do func(context.Context, uuid.UUID) (*domain.Order, error)) {
	id, err := uuid.Parse(chiURLParam(r, "id"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := do(ctx, id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, o)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chiURLParam(r, "id"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req ordersvc.CompleteInput
	if err := request.DecodeJSON(w, r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.svc.Complete(ctx, id, req)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, o)
}

// UploadResults accepts the lab results file as multipart form data under the
// "file" field.
func (h *Handler) UploadResults(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chiURLParam(r, "id"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid id")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxResultsBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "missing results file")
		return
	}
	defer func() { _ = file.Close() }()

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	o, err := h.svc.UploadResults(ctx, id, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, o)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chiURLParam(r, "id"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.svc.Delete(ctx, id); err != nil {
		h.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- tiny shims to decouple router from handler for tests ---

type ctxKey string

func WithURLParam(r *http.Request, key, val string) *http.Request {
	ctx := context.WithValue(r.Context(), ctxKey(key), val)

	return r.WithContext(ctx)
}

func chiURLParam(r *http.Request, key string) string {
	if v := r.Context().Value(ctxKey(key)); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
