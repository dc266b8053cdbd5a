// Package service coordinates order lifecycle operations: pricing on the way
// in, transition guards in the domain, and durable notification events written
// in the same transaction as every status change.
package service

import (
	"context"
	"io"
	"time"

	"github.com/benningd54/Anlab/internal/order/domain"
	"github.com/benningd54/Anlab/internal/order/pricing"
	"github.com/benningd54/Anlab/internal/order/repository/postgres"
	"github.com/benningd54/Anlab/internal/platform/db"
	"github.com/benningd54/Anlab/internal/platform/log"
	"github.com/benningd54/Anlab/internal/platform/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Repo interface {
	CreateInTx(ctx context.Context, tx pgx.Tx, o *domain.Order) error
	UpdateStatusInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.Status) error
	SaveDetailsInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, project string, details domain.OrderDetails) error
	SetResultsFileInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, fileID string) error
	SoftDeleteInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	AddOutboxInTx(ctx context.Context, tx pgx.Tx, aggregateID uuid.UUID, eventType string, payload any) error

	Get(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	List(ctx context.Context, limit int, cursor string) (*Page, error)
	ListByCreator(ctx context.Context, creatorID string, limit int) ([]*domain.Order, error)
	LabQueue(ctx context.Context, limit int) ([]*domain.Order, error)
}

// ResultsStore keeps uploaded lab results files. Exists gates the completion
// transition.
type ResultsStore interface {
	Upload(ctx context.Context, filename, contentType string, body io.Reader) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// TaskQueue enqueues background work atomically with an order mutation.
type TaskQueue interface {
	EnqueueInTx(ctx context.Context, tx pgx.Tx, kind string, payload map[string]any) error
}

type Page = postgres.Page

// TxRunner runs a function inside a database transaction. Satisfied by
// db.TxManager.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

var _ TxRunner = (*db.TxManager)(nil)

type Service struct {
	repo   Repo
	tx     TxRunner
	engine *pricing.Engine
	files  ResultsStore
	tasks  TaskQueue
	log    *log.Logger
}

func New(repo Repo, tx TxRunner, engine *pricing.Engine, files ResultsStore, tasks TaskQueue, logger *log.Logger) *Service {
	return &Service{repo: repo, tx: tx, engine: engine, files: files, tasks: tasks, log: logger}
}

var (
	ordersSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anlab_orders_submitted_total",
		Help: "total number of orders submitted",
	})
	statusUpdated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anlab_order_status_updates_total",
		Help: "number of order status updates",
	}, []string{"status"})
	pricingFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anlab_pricing_failures_total",
		Help: "quotes rejected for unknown codes or invalid details",
	})
)

// DetailsInput is the unpriced order form as submitted by a client. The
// service prices the selected codes itself; client-supplied amounts are never
// trusted.
type DetailsInput struct {
	Quantity            int                        `json:"quantity"`
	SampleType          domain.SampleType          `json:"sample_type"`
	SampleTypeQuestions domain.SampleTypeQuestions `json:"sample_type_questions"`
	SelectedCodes       []string                   `json:"selected_codes"`
	Payment             domain.Payment             `json:"payment"`
	ClientInfo          domain.ClientInfo          `json:"client_info"`
	AdditionalEmails    []string                   `json:"additional_emails,omitempty"`
	AdditionalInfo      string                     `json:"additional_info,omitempty"`
	Commodity           string                     `json:"commodity,omitempty"`
	DateSampled         string                     `json:"date_sampled,omitempty"`
	SampleDisposition   string                     `json:"sample_disposition,omitempty"`
}

// price turns the raw form into fully priced order details.
func (s *Service) price(ctx context.Context, in DetailsInput) (domain.OrderDetails, error) {
	q, err := s.engine.Quote(ctx, pricing.Request{
		Codes:          in.SelectedCodes,
		Quantity:       in.Quantity,
		InternalClient: in.Payment.IsInternalClient(),
		SampleType:     in.SampleType,
		Questions:      in.SampleTypeQuestions,
	})
	if err != nil {
		pricingFailures.Inc()
		return domain.OrderDetails{}, err
	}

	var sampled time.Time
	if in.DateSampled != "" {
		sampled, err = time.Parse(time.RFC3339, in.DateSampled)
		if err != nil {
			return domain.OrderDetails{}, &domain.ValidationError{Fields: []domain.FieldError{
				{Field: "date_sampled", Message: "must be RFC 3339"},
			}}
		}
	}

	return domain.OrderDetails{
		Quantity:            in.Quantity,
		SampleType:          in.SampleType,
		SampleTypeQuestions: in.SampleTypeQuestions,
		SelectedTests:       q.TestDetails(),
		TotalMinor:          q.TotalMinor,
		Payment:             in.Payment,
		ClientInfo:          in.ClientInfo,
		AdditionalEmails:    in.AdditionalEmails,
		AdditionalInfo:      in.AdditionalInfo,
		Commodity:           in.Commodity,
		DateSampled:         sampled,
		SampleDisposition:   in.SampleDisposition,
	}, nil
}

// Submit prices and persists a new order in the Created state. No
// notification is sent until the client confirms.
func (s *Service) Submit(ctx context.Context, creatorID, project string, in DetailsInput) (*domain.Order, error) {
	ctx, span := observability.Tracer("order.service").Start(ctx, "Submit")
	defer span.End()

	details, err := s.price(ctx, in)
	if err != nil {
		return nil, err
	}
	o, err := domain.New(creatorID, project, details)
	if err != nil {
		s.log.Error("failed to build order", log.Err(err))
		return nil, err
	}
	if err := s.tx.InTx(ctx, func(tx pgx.Tx) error {
		return s.repo.CreateInTx(ctx, tx, o)
	}); err != nil {
		s.log.Error("failed to submit order", log.Err(err))
		return nil, err
	}

	ordersSubmitted.Inc()
	return o, nil
}

// Confirm moves a created order to Confirmed and queues the order.created
// notification in the same transaction.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	ctx, span := observability.Tracer("order.service").Start(ctx, "Confirm")
	defer span.End()

	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := o.Confirm(); err != nil {
		return nil, err
	}
	err = s.tx.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.repo.UpdateStatusInTx(ctx, tx, o.ID, o.Status); err != nil {
			return err
		}
		return s.repo.AddOutboxInTx(ctx, tx, o.ID, "order.created", s.eventPayload(o))
	})
	if err != nil {
		s.log.Error("failed to confirm order", log.Err(err))
		return nil, err
	}

	statusUpdated.WithLabelValues(string(o.Status)).Inc()
	return o, nil
}

// Save replaces a confirmed order's details with a freshly re-priced version.
// The manual adjustment, if any, survives the edit.
func (s *Service) Save(ctx context.Context, id uuid.UUID, project string, in DetailsInput) (*domain.Order, error) {
	ctx, span := observability.Tracer("order.service").Start(ctx, "Save")
	defer span.End()

	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := o.BeginEdit(); err != nil {
		return nil, err
	}
	details, err := s.price(ctx, in)
	if err != nil {
		return nil, err
	}
	details.AdjustmentMinor = o.Details.AdjustmentMinor
	details.AdjustmentComments = o.Details.AdjustmentComments
	details.LabComments = o.Details.LabComments
	if err := o.ReplaceDetails(project, details); err != nil {
		return nil, err
	}
	if err := s.tx.InTx(ctx, func(tx pgx.Tx) error {
		return s.repo.SaveDetailsInTx(ctx, tx, o.ID, o.Project, o.Details)
	}); err != nil {
		s.log.Error("failed to save order", log.Err(err))
		return nil, err
	}

	return o, nil
}

// Receive marks a confirmed order as physically arrived at the lab. The
// order.received notification and the Labworks dispatch task commit with the
// status change.
func (s *Service) Receive(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	ctx, span := observability.Tracer("order.service").Start(ctx, "Receive")
	defer span.End()

	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := o.Receive(); err != nil {
		return nil, err
	}
	err = s.tx.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.repo.UpdateStatusInTx(ctx, tx, o.ID, o.Status); err != nil {
			return err
		}
		if err := s.repo.AddOutboxInTx(ctx, tx, o.ID, "order.received", s.eventPayload(o)); err != nil {
			return err
		}
		return s.tasks.EnqueueInTx(ctx, tx, "labworks.send", map[string]any{
			"order_id":    o.ID.String(),
			"request_num": o.RequestNum,
		})
	})
	if err != nil {
		s.log.Error("failed to receive order", log.Err(err))
		return nil, err
	}

	statusUpdated.WithLabelValues(string(o.Status)).Inc()
	return o, nil
}

// CompleteInput carries what the lab actually ran plus the final manual
// adjustment.
type CompleteInput struct {
	LabCodes           []string `json:"lab_codes"`
	AdjustmentMinor    int64    `json:"adjustment_minor"`
	AdjustmentComments string   `json:"adjustment_comments,omitempty"`
	LabComments        string   `json:"lab_comments,omitempty"`
}

// Complete finalizes a received order. The lab's code list is re-priced
// against the catalog; any unknown code fails the whole operation with every
// missing code reported. The transition refuses when no results file has been
// uploaded, and the order stays Received.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, in CompleteInput) (*domain.Order, error) {
	ctx, span := observability.Tracer("order.service").Start(ctx, "Complete")
	defer span.End()

	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	uploaded, err := s.files.Exists(ctx, o.ResultsFileID)
	if err != nil {
		s.log.Error("failed to check results file", log.Err(err))
		return nil, err
	}

	codes := in.LabCodes
	if len(codes) == 0 {
		codes = o.Details.SelectedCodes()
	}
	q, err := s.engine.Quote(ctx, pricing.Request{
		Codes:          codes,
		Quantity:       o.Details.Quantity,
		InternalClient: o.Details.Payment.IsInternalClient(),
		SampleType:     o.Details.SampleType,
		Questions:      o.Details.SampleTypeQuestions,
	})
	if err != nil {
		pricingFailures.Inc()
		return nil, err
	}
	o.Details.SelectedTests = q.TestDetails()
	o.Details.TotalMinor = q.TotalMinor
	o.Details.AdjustmentMinor = in.AdjustmentMinor
	o.Details.AdjustmentComments = in.AdjustmentComments
	if in.LabComments != "" {
		o.Details.LabComments = in.LabComments
	}

	if err := o.Complete(uploaded); err != nil {
		return nil, err
	}
	err = s.tx.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.repo.SaveDetailsInTx(ctx, tx, o.ID, o.Project, o.Details); err != nil {
			return err
		}
		if err := s.repo.UpdateStatusInTx(ctx, tx, o.ID, o.Status); err != nil {
			return err
		}
		return s.repo.AddOutboxInTx(ctx, tx, o.ID, "order.completed", s.eventPayload(o))
	})
	if err != nil {
		s.log.Error("failed to complete order", log.Err(err))
		return nil, err
	}

	statusUpdated.WithLabelValues(string(o.Status)).Inc()
	return o, nil
}

// UploadResults stores a results file for a received order and records its
// key on the order.
func (s *Service) UploadResults(ctx context.Context, id uuid.UUID, filename, contentType string, body io.Reader) (*domain.Order, error) {
	ctx, span := observability.Tracer("order.service").Start(ctx, "UploadResults")
	defer span.End()

	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.StatusReceived {
		return nil, &domain.InvalidTransitionError{
			From: o.Status, Action: domain.ActionComplete,
			Reason: "results may only be uploaded for received orders",
		}
	}
	key, err := s.files.Upload(ctx, filename, contentType, body)
	if err != nil {
		s.log.Error("failed to upload results file", log.Err(err))
		return nil, err
	}
	if err := s.tx.InTx(ctx, func(tx pgx.Tx) error {
		return s.repo.SetResultsFileInTx(ctx, tx, o.ID, key)
	}); err != nil {
		s.log.Error("failed to record results file", log.Err(err))
		return nil, err
	}
	o.ResultsFileID = key

	return o, nil
}

// Delete soft-deletes an order. Only orders still in Created may be removed
// by their creator; anything the lab has touched stays on the books.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := observability.Tracer("order.service").Start(ctx, "Delete")
	defer span.End()

	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if o.Status != domain.StatusCreated {
		return &domain.InvalidTransitionError{
			From: o.Status, Action: "delete",
			Reason: "only unconfirmed orders may be deleted",
		}
	}

	return s.tx.InTx(ctx, func(tx pgx.Tx) error {
		return s.repo.SoftDeleteInTx(ctx, tx, o.ID)
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	ctx, span := observability.Tracer("order.service").Start(ctx, "Get")
	defer span.End()
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, limit int, cursor string) (*Page, error) {
	ctx, span := observability.Tracer("order.service").Start(ctx, "List")
	defer span.End()
	return s.repo.List(ctx, limit, cursor)
}

func (s *Service) ListByCreator(ctx context.Context, creatorID string, limit int) ([]*domain.Order, error) {
	ctx, span := observability.Tracer("order.service").Start(ctx, "ListByCreator")
	defer span.End()
	return s.repo.ListByCreator(ctx, creatorID, limit)
}

func (s *Service) LabOrders(ctx context.Context, limit int) ([]*domain.Order, error) {
	ctx, span := observability.Tracer("order.service").Start(ctx, "LabOrders")
	defer span.End()
	return s.repo.LabQueue(ctx, limit)
}

func (s *Service) PriceList(ctx context.Context) ([]pricing.TestItem, error) {
	ctx, span := observability.Tracer("order.service").Start(ctx, "PriceList")
	defer span.End()
	return s.engine.PriceList(ctx)
}

func (s *Service) eventPayload(o *domain.Order) map[string]any {
	return map[string]any{
		"id":                o.ID,
		"status":            o.Status,
		"project":           o.Project,
		"creator_id":        o.CreatorID,
		"client_email":      o.Details.ClientInfo.Email,
		"additional_emails": o.Details.AdditionalEmails,
		"total_minor":       o.Details.TotalMinor,
		"grand_total_minor": o.Details.GrandTotalMinor(),
	}
}
