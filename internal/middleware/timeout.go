package middleware

import (
	"context"
	"net/http"
	"time"
)

// RequestTimeout puts a deadline on the request context. It never writes a
// response itself: handlers see the expired context through their store
// calls and answer with their own error body.
func RequestTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
