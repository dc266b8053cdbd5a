package observability

import (
	"context"
	"time"

	"github.com/benningd54/Anlab/internal/platform/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InitTracing installs a no-op tracer provider. Spans are still created
// throughout the service so an exporter can be dropped in later without
// touching call sites.
func InitTracing(ctx context.Context, logger *log.Logger) func() {
	otel.SetTracerProvider(noop.NewTracerProvider())
	return func() {
		logger.Info("tracing shutdown complete", log.Str("ts", time.Now().Format(time.RFC3339)))
	}
}

func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
