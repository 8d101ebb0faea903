package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/2beens/jaeronautics/internal/telemetry/metrics"

	log "github.com/sirupsen/logrus"
)

// PanicRecovery turns a handler panic into the server error response.
func PanicRecovery(metricsManager *metrics.Manager, serverError http.HandlerFunc) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(respWriter http.ResponseWriter, req *http.Request) {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("http: panic serving %s: %v\n%s", req.URL.Path, r, debug.Stack())
					if metricsManager != nil {
						metricsManager.CounterHandleRequestPanic.Inc()
					}
					if serverError != nil {
						serverError(respWriter, req)
					} else {
						http.Error(respWriter, "internal server error", http.StatusInternalServerError)
					}
				}
			}()

			// handler call
			next.ServeHTTP(respWriter, req)
		})
	}
}
