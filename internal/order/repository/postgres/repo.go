package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benningd54/Anlab/internal/order/domain"
	"github.com/benningd54/Anlab/internal/platform/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("order not found")

type Repo struct {
	pool *pgxpool.Pool
	log  *log.Logger
}

func New(pool *pgxpool.Pool, logger *log.Logger) *Repo {
	return &Repo{pool: pool, log: logger}
}

const orderColumns = `id, creator_id, project, lab_id, request_num, status, details,
	share_id, results_file_id, paid, payment_type, sloth_transaction_id,
	kfs_tracking_number, is_deleted, created_at, updated_at`

func (r *Repo) CreateInTx(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	details, err := json.Marshal(o.Details)
	if err != nil {
		r.log.Error("failed to marshal order details", log.Err(err))
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, creator_id, project, lab_id, request_num, status, details,
			share_id, results_file_id, paid, payment_type, sloth_transaction_id,
			kfs_tracking_number, is_deleted, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		o.ID, o.CreatorID, o.Project, o.LabID, o.RequestNum, o.Status, details,
		o.ShareID, o.ResultsFileID, o.Paid, o.PaymentType, o.SlothTransactionID,
		o.KfsTrackingNumber, o.Deleted, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		r.log.Error("failed to insert order", log.Err(err))
		return err
	}

	return nil
}

func (r *Repo) UpdateStatusInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.Status) error {
	ct, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1 AND NOT is_deleted`, id, status)
	if err != nil {
		r.log.Error("failed to update order status", log.Err(err))
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *Repo) SaveDetailsInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, project string, details domain.OrderDetails) error {
	b, err := json.Marshal(details)
	if err != nil {
		r.log.Error("failed to marshal order details", log.Err(err))
		return err
	}
	ct, err := tx.Exec(ctx, `UPDATE orders SET project=$2, details=$3, updated_at=now() WHERE id=$1 AND NOT is_deleted`, id, project, b)
	if err != nil {
		r.log.Error("failed to save order details", log.Err(err))
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *Repo) SetResultsFileInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, fileID string) error {
	ct, err := tx.Exec(ctx, `UPDATE orders SET results_file_id=$2, updated_at=now() WHERE id=$1 AND NOT is_deleted`, id, fileID)
	if err != nil {
		r.log.Error("failed to set results file", log.Err(err))
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *Repo) SoftDeleteInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	ct, err := tx.Exec(ctx, `UPDATE orders SET is_deleted=true, updated_at=now() WHERE id=$1 AND NOT is_deleted`, id)
	if err != nil {
		r.log.Error("failed to soft delete order", log.Err(err))
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *Repo) AddOutboxInTx(ctx context.Context, tx pgx.Tx, aggregateID uuid.UUID, eventType string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		r.log.Error("failed to marshal outbox payload", log.Err(err))
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox (aggregate_id, aggregate_type, event_type, payload)
		VALUES ($1,'order',$2,$3)`,
		aggregateID, eventType, b)
	if err != nil {
		r.log.Error("failed to insert outbox row", log.Err(err))
		return err
	}

	return nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var details []byte
	if err := row.Scan(&o.ID, &o.CreatorID, &o.Project, &o.LabID, &o.RequestNum, &o.Status, &details,
		&o.ShareID, &o.ResultsFileID, &o.Paid, &o.PaymentType, &o.SlothTransactionID,
		&o.KfsTrackingNumber, &o.Deleted, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	// A details blob that no longer decodes is surfaced as a validation
	// failure, never silently replaced with an empty value.
	if err := json.Unmarshal(details, &o.Details); err != nil {
		return nil, &domain.ValidationError{Fields: []domain.FieldError{
			{Field: "details", Message: "stored order details are not decodable: " + err.Error()},
		}}
	}

	return &o, nil
}

func (r *Repo) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id=$1 AND NOT is_deleted`, id)

	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.log.Error("failed to get order", log.Err(err))
		return nil, err
	}

	return o, nil
}

type Page struct {
	Orders []*domain.Order `json:"orders"`
	Next   string          `json:"next,omitempty"`
}

func encodeCursor(o *domain.Order) string {
	return fmt.Sprintf("%s|%s", o.CreatedAt.UTC().Format(time.RFC3339Nano), o.ID)
}

func decodeCursor(cursor string) (time.Time, uuid.UUID, error) {
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 {
		return time.Time{}, uuid.Nil, errors.New("invalid cursor")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, uuid.Nil, errors.New("invalid cursor")
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return time.Time{}, uuid.Nil, errors.New("invalid cursor")
	}
	return ts, id, nil
}

func (r *Repo) List(ctx context.Context, limit int, cursor string) (*Page, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rows pgx.Rows
	var err error

	if cursor == "" {
		rows, err = r.pool.Query(ctx, `
			SELECT `+orderColumns+`
			FROM orders
			WHERE NOT is_deleted
			ORDER BY created_at, id
			LIMIT $1`, limit+1)
	} else {
		ts, id, cerr := decodeCursor(cursor)
		if cerr != nil {
			return nil, cerr
		}
		rows, err = r.pool.Query(ctx, `
			SELECT `+orderColumns+`
			FROM orders
			WHERE NOT is_deleted AND (created_at, id) > ($1, $2)
			ORDER BY created_at, id
			LIMIT $3`, ts, id, limit+1)
	}
	if err != nil {
		r.log.Error("failed to list orders", log.Err(err))
		return nil, err
	}

	return r.collectPage(rows, limit)
}

// ListByCreator returns a client's own orders, newest first.
func (r *Repo) ListByCreator(ctx context.Context, creatorID string, limit int) ([]*domain.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE NOT is_deleted AND creator_id=$1
		ORDER BY created_at DESC
		LIMIT $2`, creatorID, limit)
	if err != nil {
		r.log.Error("failed to list creator orders", log.Err(err))
		return nil, err
	}
	defer rows.Close()

	return r.collectOrders(rows)
}

// LabQueue returns orders visible to lab staff: everything past Created.
func (r *Repo) LabQueue(ctx context.Context, limit int) ([]*domain.Order, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE NOT is_deleted AND status <> $1
		ORDER BY created_at
		LIMIT $2`, domain.StatusCreated, limit)
	if err != nil {
		r.log.Error("failed to list lab queue", log.Err(err))
		return nil, err
	}
	defer rows.Close()

	return r.collectOrders(rows)
}

func (r *Repo) collectOrders(rows pgx.Rows) ([]*domain.Order, error) {
	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			r.log.Error("failed to scan order row", log.Err(err))
			return nil, err
		}
		out = append(out, o)
	}

	return out, rows.Err()
}

func (r *Repo) collectPage(rows pgx.Rows, limit int) (*Page, error) {
	defer rows.Close()

	orders, err := r.collectOrders(rows)
	if err != nil {
		return nil, err
	}
	page := &Page{Orders: orders}
	if len(page.Orders) > limit {
		last := page.Orders[limit-1]
		page.Orders = page.Orders[:limit]
		page.Next = encodeCursor(last)
	}

	return page, nil
}
