// Package correlation carries a per-request id from the HTTP edge through
// background deliveries and into the event log.
package correlation

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

type contextKey struct{}

// HeaderName is the HTTP header for correlation IDs.
const HeaderName = "X-Correlation-ID"

const maxLen = 128

// Middleware reuses a well-formed inbound id or mints a new one, and echoes it
// on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderName)
		if !valid(id) {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderName, id)
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), id)))
	})
}

// FromContext returns the id, or "" outside a request.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// Attr is a log attribute for the id in ctx.
func Attr(ctx context.Context) slog.Attr {
	return slog.String("correlation_id", FromContext(ctx))
}

func valid(id string) bool {
	if id == "" || len(id) > maxLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}
