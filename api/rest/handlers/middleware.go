package handlers

import (
	"context"
	"net/http"
	"strings"

	"dataset-platform/core/auth"
	"dataset-platform/core/models"
	"dataset-platform/core/repository"
)

type contextKey int

const userContextKey contextKey = iota

// AuthMiddleware validates the bearer token and loads the account into the
// request context. Deactivated accounts are rejected even with a valid token.
func AuthMiddleware(tokens *auth.TokenManager, users repository.Users) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
					"error": "missing bearer token",
				})
				return
			}

			claims, err := tokens.Parse(tokenString)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
					"error": "invalid token",
				})
				return
			}

			user, err := users.Get(r.Context(), claims.UserID)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if user == nil || !user.Active {
				writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
					"error": "account unavailable",
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(
				context.WithValue(r.Context(), userContextKey, user)))
		})
	}
}

// requestUser returns the authenticated account stored by AuthMiddleware.
func requestUser(r *http.Request) *models.User {
	user, _ := r.Context().Value(userContextKey).(*models.User)
	return user
}
