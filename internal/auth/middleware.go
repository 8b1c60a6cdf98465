package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/ioms/backend/internal/apierrors"
	"github.com/ioms/backend/internal/model"
)

type contextKey int

const (
	claimsContextKey contextKey = iota
)

// Middleware validates the Bearer token of the request and stores its claims
// in the context. Websocket upgrades may pass the token as ?token= because
// browsers cannot set headers on them.
func Middleware(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearerToken(r)
			if tokenStr == "" {
				apierrors.NewUnauthorizedError("missing authorization header").Write(w, r)
				return
			}
			claims, err := jwtMgr.ValidateToken(tokenStr)
			if err != nil {
				apierrors.NewUnauthorizedError("invalid or expired token").Write(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if header == "" && strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}

// RequireRole restricts access to users whose role is in the allowed set.
func RequireRole(allowed ...model.Role) func(http.Handler) http.Handler {
	allowedSet := make(map[model.Role]bool, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.NewUnauthorizedError("authentication required").Write(w, r)
				return
			}
			if !allowedSet[claims.Role] {
				apierrors.NewForbiddenError("insufficient permissions").Write(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetClaimsFromContext extracts the Claims stored by Middleware.
func GetClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey).(*Claims)
	return claims
}

// ActorFromContext returns the authenticated caller.
func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	claims := GetClaimsFromContext(ctx)
	if claims == nil {
		return model.Actor{}, false
	}
	return claims.Actor(), true
}

// WithClaims stores claims in ctx. Used by tests and internal callers.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}
