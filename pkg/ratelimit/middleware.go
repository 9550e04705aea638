package ratelimit

import (
	"log/slog"
	"net/http"
)

// KeyFunc derives the rate-limit key from a request, typically the tenant
// id path parameter. Returning "" skips limiting for that request.
type KeyFunc func(r *http.Request) string

// Middleware limits requests per key. Limiter store failures are logged and
// the request is allowed through; the engine underneath still fails closed
// on entitlements, so a degraded limiter never widens access.
func Middleware(limiter *Limiter, key KeyFunc, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}
			allowed, err := limiter.Allow(r.Context(), k)
			if err != nil {
				log.WarnContext(r.Context(), "rate limiter unavailable",
					slog.String("key", k), slog.Any("error", err))
			}
			if !allowed {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
