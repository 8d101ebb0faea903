package middleware

import (
	"net/http"

	"github.com/2beens/jaeronautics/internal/auth"
	"github.com/2beens/jaeronautics/internal/session"
	"github.com/2beens/jaeronautics/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

//go:generate mockgen -source=auth.go -destination=session_checker_mock_test.go -package=middleware_test

type sessionChecker interface {
	Check(w http.ResponseWriter, r *http.Request) auth.Decision
}

// RequireSession lets the request through only when the session checker
// authorizes it. The authorized username is stored in the request context.
func RequireSession(checker sessionChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.GlobalTracer.Start(r.Context(), "middleware.requireSession")
			defer span.End()
			r = r.WithContext(ctx)

			switch decision := checker.Check(w, r).(type) {
			case auth.Authorized:
				span.SetStatus(codes.Ok, "ok")
				next.ServeHTTP(w, r.WithContext(session.WithUsername(r.Context(), decision.Username)))
			case auth.RedirectToLogin:
				log.Tracef("[auth middleware] not logged in => %s", r.URL.Path)
				span.SetStatus(codes.Error, "not-logged")
				http.Redirect(w, r, decision.Target, http.StatusFound)
			default:
				log.Errorf("[auth middleware] unexpected decision %T => %s", decision, r.URL.Path)
				span.SetStatus(codes.Error, "unexpected-decision")
				http.Redirect(w, r, auth.LoginPath, http.StatusFound)
			}
		})
	}
}
