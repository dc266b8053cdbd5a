package http

import (
	"context"
	"database/sql"
	stdhttp "net/http"
	"os"
	"time"

	"github.com/benningd54/Anlab/internal/platform/log"
	"github.com/benningd54/Anlab/internal/platform/observability"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/time/rate"
)

type RouterOpt func(*routerConfig)

type routerConfig struct {
	AuthMW func(stdhttp.Handler) stdhttp.Handler
	RPS    float64
	Burst  int
}

func WithAuth(mw func(stdhttp.Handler) stdhttp.Handler) RouterOpt {
	return func(c *routerConfig) { c.AuthMW = mw }
}

func WithRateLimit(rps float64, burst int) RouterOpt {
	return func(c *routerConfig) { c.RPS, c.Burst = rps, burst }
}

func NewRouter(h *Handler, logger *log.Logger, opts ...RouterOpt) stdhttp.Handler {
	cfg := &routerConfig{RPS: 10, Burst: 20}
	for _, o := range opts {
		o(cfg)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(mwZap(logger))
	r.Use(rateLimit(cfg.RPS, cfg.Burst))

	// Health & metrics
	r.Get("/healthz", func(w stdhttp.ResponseWriter, r *stdhttp.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		if err := dbPing(r.Context()); err != nil {
			w.WriteHeader(503)
			return
		}
		w.WriteHeader(200)
	})
	r.Handle("/metrics", observability.Handler())

	// Public price catalog
	r.Get("/api/v1/tests", h.PriceList)

	protected := func(r chi.Router) {
		if cfg.AuthMW != nil {
			r.Use(cfg.AuthMW)
		}
		r.Route("/api/v1/orders", func(r chi.Router) {
			r.Post("/", h.Submit)
			r.Get("/", h.List)
			r.Get("/mine", h.MyOrders)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(bindIDParam("id"))
				r.Get("/", h.Get)
				r.Put("/", h.Save)
				r.Delete("/", h.Delete)
				r.Post("/confirm", h.Confirm)
				r.Post("/receive", h.Receive)
				r.Post("/complete", h.Complete)
				r.Post("/results", h.UploadResults)
			})
		})
		r.Get("/api/v1/lab/orders", h.LabOrders)
	}
	r.Group(protected)

	return r
}

// --- helpers ---

func bindIDParam(name string) func(next stdhttp.Handler) stdhttp.Handler {
	return func(next stdhttp.Handler) stdhttp.Handler {
		return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			id := chi.URLParam(r, name)
			next.ServeHTTP(w, WithURLParam(r, name, id))
		})
	}
}

func rateLimit(rps float64, burst int) func(stdhttp.Handler) stdhttp.Handler {
	lim := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next stdhttp.Handler) stdhttp.Handler {
		return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			if !lim.Allow() {
				w.WriteHeader(429)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func dbPing(ctx context.Context) error {
	dsn := os.Getenv("DATABASE_URL")
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			return
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	return db.PingContext(ctx)
}
