package middleware

import (
	"context"
	"net/http"

	"github.com/parley-chat/parley/internal/services/auth"
	"github.com/parley-chat/parley/pkg/httpext"
)

type contextKey string

const (
	ownerIDKey contextKey = "ownerID"
)

// RequireAuth validates the bearer token and stores the caller's owner id in
// the request context.
func RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := auth.ExtractToken(r)
			if tokenString == "" {
				httpext.JsonError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			validation := auth.ValidateToken(tokenString)
			if !validation.Valid {
				httpext.JsonError(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ownerIDKey, validation.OwnerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOwnerID retrieves the authenticated owner id from the request context.
func GetOwnerID(r *http.Request) string {
	if ownerID, ok := r.Context().Value(ownerIDKey).(string); ok {
		return ownerID
	}
	return ""
}
