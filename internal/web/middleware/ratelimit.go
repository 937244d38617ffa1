package middleware

import (
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/JonMunkholm/mediathek-loader/internal/logging"
)

// RateLimit returns middleware that admits at most perMinute requests per
// minute across all clients, with bursts of up to burst. perMinute <= 0
// disables the limit.
func RateLimit(perMinute, burst int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := limiter.Reserve()
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				logging.FromContext(r.Context()).Warn("rate limited", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				w.Header().Set("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
				deny(w, http.StatusTooManyRequests, "too many requests", "REQ003")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
