package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cardsmith/cardsmith-api/ratelimit"
)

// RateLimitByUser gates a handler behind a fixed-window per-user limit.
// Must run after SyncUserMiddleware so the user is on the context. A denied
// request gets a 429 with a retry_after hint in seconds.
func RateLimitByUser(limiter *ratelimit.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		decision := limiter.Allow(user.Auth0ID)
		if !decision.Allowed {
			retryAfter := decision.RetryAfterSeconds(time.Now())
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"code":         "RATE_LIMIT",
				"message":      "Too many generation requests, slow down.",
				"is_retryable": true,
				"retry_after":  retryAfter,
			})
			return
		}
		next.ServeHTTP(w, r)
	}
}
