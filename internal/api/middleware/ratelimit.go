// SPDX-License-Identifier: MIT

package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ManuGH/audiocenter/internal/log"
	"github.com/go-chi/httprate"
)

// healthPaths are never limited; health checks run on their own schedule.
var healthPaths = map[string]bool{"/healthz": true, "/readyz": true}

// RateLimitConfig limits REST requests per client IP in a sliding window.
type RateLimitConfig struct {
	RequestLimit int
	WindowSize   time.Duration
	// KeyFunc defaults to httprate.KeyByIP.
	KeyFunc func(r *http.Request) (string, error)
}

// RateLimit answers 429 with the API error body once a client exceeds
// RequestLimit requests in WindowSize.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = httprate.KeyByIP
	}
	retryAfter := strconv.Itoa(max(1, int(cfg.WindowSize.Seconds())))

	limiter := httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowSize,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			log.FromContext(r.Context()).Debug().
				Str(log.FieldEvent, "api.rate_limited").
				Str("path", r.URL.Path).
				Str(log.FieldRemoteAddr, r.RemoteAddr).
				Msg("request rate limited")

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":  "rate_limit_exceeded",
				"detail": "too many requests, retry after " + retryAfter + "s",
			})
		}),
	)

	return func(next http.Handler) http.Handler {
		limited := limiter(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if healthPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}
