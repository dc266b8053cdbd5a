package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	httpstd "net/http"
	pprof "net/http/pprof"
	"strings"
	"time"

	"github.com/benningd54/Anlab/internal/config"
	"github.com/benningd54/Anlab/internal/order/catalog"
	"github.com/benningd54/Anlab/internal/order/pricing"
	"github.com/benningd54/Anlab/internal/order/repository/postgres"
	"github.com/benningd54/Anlab/internal/order/service"
	http "github.com/benningd54/Anlab/internal/order/transport/http"
	"github.com/benningd54/Anlab/internal/platform/auth"
	"github.com/benningd54/Anlab/internal/platform/db"
	server "github.com/benningd54/Anlab/internal/platform/http"
	"github.com/benningd54/Anlab/internal/platform/idempotency"
	"github.com/benningd54/Anlab/internal/platform/kafka"
	"github.com/benningd54/Anlab/internal/platform/log"
	"github.com/benningd54/Anlab/internal/platform/observability"
	"github.com/benningd54/Anlab/internal/platform/outbox"
	"github.com/benningd54/Anlab/internal/platform/storage"
	"github.com/benningd54/Anlab/internal/platform/tasks"
	"github.com/go-redis/redis/v8"
)

func Run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	shutdownTracer := observability.InitTracing(ctx, logger)
	defer shutdownTracer()

	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	tx := db.NewTxManager(pool, logger)
	orderRepo := postgres.New(pool, logger)

	var cat pricing.Catalog = catalog.NewPG(pool, logger)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("failed to close redis client", log.Err(err))
			}
		}()
		cat = catalog.NewCache(cat, rdb, cfg.CatalogTTL, logger)
	}
	engine := pricing.NewEngine(cat, cfg.NonUCRate)

	files, err := storage.NewS3Store(ctx, storage.Config{
		Region:          cfg.S3Region,
		Bucket:          cfg.S3Bucket,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	})
	if err != nil {
		return fmt.Errorf("s3 init: %w", err)
	}

	taskStore := tasks.NewStore(pool, logger)
	runner := tasks.NewRunner(taskStore, func(ctx context.Context, t *tasks.Task) error {
		// TODO: call the Labworks export once the lab system endpoint is available.
		logger.Info("labworks dispatch", log.Str("kind", t.Kind), log.Any("payload", t.Payload))
		return nil
	}, logger, cfg.TasksInterval)
	go func() {
		if err := runner.Run(ctx); err != nil {
			return
		}
	}()

	orderSvc := service.New(orderRepo, tx, engine, files, taskStore, logger)

	idem := idempotency.NewStore(pool, logger)

	prod := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicNotifications, logger)
	defer func() {
		if err := prod.Close(); err != nil {
			logger.Error("failed to close kafka producer", log.Err(err))
		}
	}()

	relay := outbox.New(pool, prod, cfg.OutboxInterval, cfg.OutboxBatch, logger)
	go func() {
		if err := relay.Run(ctx); err != nil {
			return
		}
	}()

	var authMW func(httpstd.Handler) httpstd.Handler
	if cfg.AuthEnabled {
		auds := strings.Split(cfg.OIDCAudience, ",")
		oidcMW, err := auth.NewOIDC(ctx, auth.OIDCConfig{
			Issuer:        cfg.OIDCIssuer,
			Audiences:     auds,
			RequiredScope: cfg.OIDCRequiredScope,
			Logger:        logger,
		})
		if err != nil {
			return fmt.Errorf("oidc init: %w", err)
		}
		authMW = oidcMW.Middleware
	}

	api := http.NewHandler(orderSvc, logger, idem)
	opts := []http.RouterOpt{http.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)}
	if authMW != nil {
		opts = append(opts, http.WithAuth(authMW))
	}
	router := http.NewRouter(api, logger, opts...)

	debugMux := httpstd.NewServeMux()
	debugMux.Handle("/metrics", observability.Handler())
	debugMux.HandleFunc("/debug/pprof/", pprof.Index)
	debugMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	debugMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	debugMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	debugMux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	debugSrv := &httpstd.Server{
		Addr:              cfg.DebugAddr,
		Handler:           debugMux,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
	}
	go func() {
		logger.Info("debug server started", log.Str("addr", debugSrv.Addr))
		var err error
		if cfg.TLSCertFile != "" {
			err = debugSrv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = debugSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, httpstd.ErrServerClosed) {
			logger.Error("debug server error", log.Err(err))
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := debugSrv.Shutdown(ctx); err != nil {
			logger.Error("debug shutdown error", log.Err(err))
		}
	}()

	srv := server.New(router, cfg, logger)

	return srv.Run(ctx)
}
