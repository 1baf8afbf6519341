package logutil

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
)

// HTTPMiddleware logs every request served by the local status API.
func HTTPMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m := httpsnoop.CaptureMetrics(next, w, r)
			WithMethod(logger, r.Method).With(
				"path", r.URL.Path,
				"status", m.Code,
				"duration", time.Since(start),
			).Debug("served request")
		})
	}
}
