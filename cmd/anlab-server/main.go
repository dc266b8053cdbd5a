package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/benningd54/Anlab/internal/app"
	"github.com/benningd54/Anlab/internal/config"
	"github.com/benningd54/Anlab/internal/platform/log"
	"github.com/joho/godotenv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.New(cfg.AppEnv)
	log.ReplaceGlobals(logger)
	defer func() {
		if err := logger.Sync(); err != nil {
			return
		}
	}()

	if err := app.Run(ctx, cfg, logger); err != nil {
		return
	}

	time.Sleep(100 * time.Millisecond)
}
