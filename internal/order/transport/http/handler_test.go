package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benningd54/Anlab/internal/order/domain"
	"github.com/benningd54/Anlab/internal/order/pricing"
	"github.com/benningd54/Anlab/internal/order/repository/postgres"
	ordersvc "github.com/benningd54/Anlab/internal/order/service"
	"github.com/benningd54/Anlab/internal/platform/idempotency"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeService struct {
	order *domain.Order
	items []pricing.TestItem
	err   error

	lastCreator string
	submits     int
}

func (f *fakeService) Submit(_ context.Context, creatorID, _ string, _ ordersvc.DetailsInput) (*domain.Order, error) {
	f.lastCreator = creatorID
	f.submits++
	return f.order, f.err
}

func (f *fakeService) Confirm(_ context.Context, _ uuid.UUID) (*domain.Order, error) {
	return f.order, f.err
}

func (f *fakeService) Save(_ context.Context, _ uuid.UUID, _ string, _ ordersvc.DetailsInput) (*domain.Order, error) {
	return f.order, f.err
}

func (f *fakeService) Receive(_ context.Context, _ uuid.UUID) (*domain.Order, error) {
	return f.order, f.err
}

func (f *fakeService) Complete(_ context.Context, _ uuid.UUID, _ ordersvc.CompleteInput) (*domain.Order, error) {
	return f.order, f.err
}

func (f *fakeService) UploadResults(_ context.Context, _ uuid.UUID, _, _ string, _ io.Reader) (*domain.Order, error) {
	return f.order, f.err
}

func (f *fakeService) Delete(_ context.Context, _ uuid.UUID) error { return f.err }

func (f *fakeService) Get(_ context.Context, _ uuid.UUID) (*domain.Order, error) {
	return f.order, f.err
}

func (f *fakeService) List(_ context.Context, _ int, _ string) (*ordersvc.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ordersvc.Page{Orders: []*domain.Order{f.order}}, nil
}

func (f *fakeService) ListByCreator(_ context.Context, _ string, _ int) ([]*domain.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*domain.Order{f.order}, nil
}

func (f *fakeService) LabOrders(_ context.Context, _ int) ([]*domain.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*domain.Order{f.order}, nil
}

func (f *fakeService) PriceList(_ context.Context) ([]pricing.TestItem, error) {
	return f.items, f.err
}

func sampleOrder() *domain.Order {
	return &domain.Order{
		ID:        uuid.New(),
		CreatorID: "user-1",
		Project:   "field trial",
		Status:    domain.StatusCreated,
		Details: domain.OrderDetails{
			Quantity:   2,
			SampleType: domain.SampleSoil,
			TotalMinor: 2500,
		},
	}
}

func submitBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"project": "field trial",
		"details": map[string]any{
			"quantity":       2,
			"sample_type":    "soil",
			"selected_codes": []string{"SP-PH"},
			"payment":        map[string]any{"client_type": "uc", "account": "3-ABC1234"},
			"client_info":    map[string]any{"name": "A Client", "email": "client@example.edu"},
		},
	})
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func newTestHandler(svc Service) *Handler {
	return NewHandler(svc, zap.NewNop(), nil)
}

// memQuerier backs the idempotency store with a map so the replay path runs
// without postgres.
type idemRec struct {
	orderID uuid.UUID
	status  int
}

type memQuerier struct {
	saved map[string]idemRec
}

func newMemQuerier() *memQuerier {
	return &memQuerier{saved: make(map[string]idemRec)}
}

func (m *memQuerier) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	key := args[0].(string) + "|" + args[1].(string)
	if _, ok := m.saved[key]; !ok {
		m.saved[key] = idemRec{orderID: args[3].(uuid.UUID), status: args[4].(int)}
	}
	return pgconn.CommandTag{}, nil
}

func (m *memQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	rec, ok := m.saved[args[0].(string)+"|"+args[1].(string)]
	if !ok {
		return errRow{err: pgx.ErrNoRows}
	}
	return idemRow{rec: rec}
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

type idemRow struct{ rec idemRec }

func (r idemRow) Scan(dest ...any) error {
	*dest[0].(*uuid.UUID) = r.rec.orderID
	*dest[1].(*int) = r.rec.status
	return nil
}

func TestSubmitReturnsCreated(t *testing.T) {
	svc := &fakeService{order: sampleOrder()}
	h := newTestHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", submitBody(t))
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()

	h.Submit(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "user-1", svc.lastCreator)
	var got domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, domain.StatusCreated, got.Status)
}

func TestSubmitReplaysRecordedOrderForRepeatedKey(t *testing.T) {
	svc := &fakeService{order: sampleOrder()}
	q := newMemQuerier()
	h := NewHandler(svc, zap.NewNop(), idempotency.NewStore(q, zap.NewNop()))

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", submitBody(t))
		req.Header.Set("X-User-Id", "user-1")
		req.Header.Set("Idempotency-Key", "key-1")
		rec := httptest.NewRecorder()
		h.Submit(rec, req)
		return rec
	}

	first := post()
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, 1, svc.submits)
	require.Len(t, q.saved, 1, "key recorded after the first submit")

	second := post()
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, 1, svc.submits, "replay must not submit again")

	var got domain.Order
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &got))
	assert.Equal(t, svc.order.ID, got.ID)
}

func TestSubmitWithoutIdentityIsUnauthorized(t *testing.T) {
	h := newTestHandler(&fakeService{order: sampleOrder()})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", submitBody(t))
	rec := httptest.NewRecorder()

	h.Submit(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitValidationFailureIsUnprocessable(t *testing.T) {
	svc := &fakeService{err: &domain.ValidationError{Fields: []domain.FieldError{
		{Field: "quantity", Message: "must be between 1 and 100"},
	}}}
	h := newTestHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", submitBody(t))
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()

	h.Submit(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body struct {
		Fields []domain.FieldError `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "quantity", body.Fields[0].Field)
}

func TestSubmitUnknownCodesListsAllMissing(t *testing.T) {
	svc := &fakeService{err: &domain.MissingCodesError{Codes: []string{"XYZ", "ABC"}}}
	h := newTestHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", submitBody(t))
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()

	h.Submit(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body struct {
		MissingCodes []string `json:"missing_codes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"XYZ", "ABC"}, body.MissingCodes)
}

func TestConfirmGuardRejectionIsConflict(t *testing.T) {
	svc := &fakeService{err: &domain.InvalidTransitionError{
		From: domain.StatusComplete, Action: domain.ActionConfirm,
	}}
	h := newTestHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/x/confirm", nil)
	req = WithURLParam(req, "id", uuid.NewString())
	rec := httptest.NewRecorder()

	h.Confirm(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body struct {
		Status domain.Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.StatusComplete, body.Status)
}

func TestCompleteWithoutResultsFileIsConflict(t *testing.T) {
	svc := &fakeService{err: &domain.InvalidTransitionError{
		From: domain.StatusReceived, Action: domain.ActionComplete,
		Reason: "results file has not been uploaded",
	}}
	h := newTestHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/x/complete", bytes.NewBufferString(`{}`))
	req = WithURLParam(req, "id", uuid.NewString())
	rec := httptest.NewRecorder()

	h.Complete(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "results file has not been uploaded")
}

func TestGetUnknownOrderIsNotFound(t *testing.T) {
	h := newTestHandler(&fakeService{err: postgres.ErrNotFound})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/x", nil)
	req = WithURLParam(req, "id", uuid.NewString())
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMalformedIDIsBadRequest(t *testing.T) {
	h := newTestHandler(&fakeService{order: sampleOrder()})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/not-a-uuid", nil)
	req = WithURLParam(req, "id", "not-a-uuid")
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitRejectsUnknownFields(t *testing.T) {
	h := newTestHandler(&fakeService{order: sampleOrder()})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString(`{"nope":true}`))
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()

	h.Submit(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPriceList(t *testing.T) {
	h := newTestHandler(&fakeService{items: []pricing.TestItem{
		{Code: "SP-PH", InternalCostMinor: 1000, ExternalCostMinor: 1900},
	}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tests", nil)
	rec := httptest.NewRecorder()

	h.PriceList(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Tests []pricing.TestItem `json:"tests"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Tests, 1)
	assert.Equal(t, int64(1900), body.Tests[0].ExternalCostMinor)
}

func TestDeleteReturnsNoContent(t *testing.T) {
	h := newTestHandler(&fakeService{})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/orders/x", nil)
	req = WithURLParam(req, "id", uuid.NewString())
	rec := httptest.NewRecorder()

	h.Delete(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
