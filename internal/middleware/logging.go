package middleware

import (
	"net/http"

	"github.com/2beens/jaeronautics/pkg"

	log "github.com/sirupsen/logrus"
)

func LogRequest() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if log.IsLevelEnabled(log.TraceLevel) {
				userIP, _ := pkg.ReadUserIP(r)
				log.Tracef(" ====> request [%s] path: [%s] [IP: %s] [UA: %s]", r.Method, r.URL.Path, userIP, r.UserAgent())
			}
			next.ServeHTTP(w, r)
		})
	}
}
