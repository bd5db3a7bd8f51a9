package middleware

import (
	"net/http"
	"time"

	"github.com/BradenHooton/vetconnect/internal/auth"
	pkghttp "github.com/BradenHooton/vetconnect/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitByIP throttles unauthenticated routes per client address. This
// sits in front of the per-identifier lockout in the auth service and only
// caps raw request volume.
func RateLimitByIP(requestsPerMinute int, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return "ip:" + pkghttp.ExtractClientIP(r, ipConfig), nil
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}

// RateLimitByUser throttles authenticated writes such as chat messages per
// user, falling back to the client address when no claims are present.
func RateLimitByUser(requestsPerMinute int, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if claims := auth.GetUserFromContext(r); claims != nil && claims.UserID != "" {
				return "user:" + claims.UserID, nil
			}
			return "ip:" + pkghttp.ExtractClientIP(r, ipConfig), nil
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}

func limitExceeded(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteTooManyRequests(w, "Too many requests. Please slow down.")
}
