package middleware

import (
	"net/http"

	"github.com/didip/tollbooth"
)

// Throttle limits each client address to perSecond requests.
func Throttle(perSecond float64) func(http.Handler) http.Handler {
	limiter := tollbooth.NewLimiter(perSecond, nil)
	limiter.SetIPLookups([]string{"X-Forwarded-For", "X-Real-IP", "RemoteAddr"})
	limiter.SetMessageContentType("application/json")
	limiter.SetMessage(`{"error":"rate_limited"}`)
	return func(next http.Handler) http.Handler {
		return tollbooth.LimitHandler(limiter, next)
	}
}
