package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mrops-br/emmytech-marketplace/internal/domain"
	"github.com/mrops-br/emmytech-marketplace/internal/infrastructure/telemetry"
)

// CallerHeader carries the caller address. Authentication happens upstream.
const CallerHeader = "X-Caller-Address"

type callerKey struct{}

// CallerIdentity copies the caller address header into the request context
func CallerIdentity() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := strings.TrimSpace(r.Header.Get(CallerHeader))
			if caller == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), callerKey{}, domain.Address(caller))
			ctx = telemetry.WithCaller(ctx, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerFromContext returns the caller address and whether one was supplied
func CallerFromContext(ctx context.Context) (domain.Address, bool) {
	caller, ok := ctx.Value(callerKey{}).(domain.Address)
	return caller, ok && caller.Valid()
}
