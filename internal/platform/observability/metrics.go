package observability

import (
	"net/http"

	"github.com/benningd54/Anlab/internal/platform/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler exposes the default registry. Scrape errors go to the process
// logger rather than promhttp's stderr default.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(log.L()),
	})
}
