// Package tasks is a small postgres-backed work queue for jobs that must be
// enqueued atomically with an order mutation, such as dispatching a received
// order to the Labworks system.
package tasks

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/benningd54/Anlab/internal/platform/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
	log  *log.Logger
}

func NewStore(pool *pgxpool.Pool, logger *log.Logger) *Store {
	return &Store{pool: pool, log: logger}
}

type Task struct {
	ID      int64
	Kind    string
	Payload map[string]any
}

// EnqueueInTx inserts a pending task inside the caller's transaction, so the
// task exists iff the surrounding order mutation commits.
func (s *Store) EnqueueInTx(ctx context.Context, tx pgx.Tx, kind string, payload map[string]any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("failed to marshal task payload", log.Err(err))
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO tasks (kind, status, payload) VALUES ($1,'pending',$2)`, kind, b); err != nil {
		s.log.Error("failed to enqueue task", log.Err(err))
		return err
	}

	return nil
}

// PickNext claims the oldest pending task, marking it started. Returns nil
// when the queue is empty.
func (s *Store) PickNext(ctx context.Context) (*Task, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		s.log.Error("failed to begin tx", log.Err(err))
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		t  Task
		pl []byte
	)
	row := tx.QueryRow(ctx, `
		SELECT id, kind, payload
		FROM tasks
		WHERE status='pending'
		ORDER BY id
		LIMIT 1
		FOR UPDATE SKIP LOCKED`)
	if err := row.Scan(&t.ID, &t.Kind, &pl); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		s.log.Error("failed to pick task", log.Err(err))
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE tasks SET status='started', started_at=now() WHERE id=$1`, t.ID); err != nil {
		s.log.Error("failed to mark task started", log.Err(err))
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		s.log.Error("failed to commit tx", log.Err(err))
		return nil, err
	}
	if err := json.Unmarshal(pl, &t.Payload); err != nil {
		s.log.Error("failed to unmarshal task payload", log.Err(err))
		return nil, err
	}

	return &t, nil
}

func (s *Store) Mark(ctx context.Context, id int64, status, errText string) error {
	_, err := s.pool.Exec(ctx, `UPDATE tasks SET status=$2, error=$3, finished_at=now() WHERE id=$1`,
		id, status, nullIfEmpty(errText))
	if err != nil {
		s.log.Error("failed to mark task", log.Err(err))
		return err
	}

	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
