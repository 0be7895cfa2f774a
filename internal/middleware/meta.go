package middleware

import (
	"net"
	"net/http"

	"inventory/internal/security"
)

// RequestMeta stores the caller's address and user agent for the audit log.
// Run it after chi's RealIP so proxies are honoured.
func RequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := security.WithRequestMeta(r.Context(), security.RequestMeta{
			IPAddress: ip,
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
