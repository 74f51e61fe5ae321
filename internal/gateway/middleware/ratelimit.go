package middleware

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimitMiddleware applies a token bucket shared by all callers
func RateLimitMiddleware(r float64, burst int) func(http.HandlerFunc) http.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(r), burst)

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next(w, req)
		}
	}
}
