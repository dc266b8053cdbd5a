package tasks

import (
	"context"
	"time"

	"github.com/benningd54/Anlab/internal/platform/log"
)

type Executor func(ctx context.Context, task *Task) error

type Runner struct {
	store  *Store
	exec   Executor
	log    *log.Logger
	ticker *time.Ticker
}

func NewRunner(store *Store, exec Executor, logger *log.Logger, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Runner{
		store:  store,
		exec:   exec,
		log:    logger,
		ticker: time.NewTicker(interval),
	}
}

func (r *Runner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	t, err := r.store.PickNext(ctx)
	if err != nil {
		r.log.Error("failed to pick next task", log.Err(err))
		return
	}
	if t == nil {
		return
	}
	if err := r.exec(ctx, t); err != nil {
		r.log.Error("task failed", log.Str("kind", t.Kind), log.Err(err))
		if err := r.store.Mark(ctx, t.ID, "failed", err.Error()); err != nil {
			r.log.Error("failed to mark task", log.Err(err))
		}
		return
	}
	if err := r.store.Mark(ctx, t.ID, "done", ""); err != nil {
		r.log.Error("failed to mark task", log.Err(err))
	}
}
