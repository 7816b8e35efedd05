package handlers

import (
	"net/http"

	"dataset-platform/core/auth"
	"dataset-platform/core/repository"
)

// AuthHandler handles login requests.
type AuthHandler struct {
	users  repository.Users
	tokens *auth.TokenManager
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(users repository.Users, tokens *auth.TokenManager) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens}
}

// LoginRequest carries the credentials for a login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the issued access token.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Role        string `json:"role"`
}

// Login handles POST /auth/login. Unknown users and wrong passwords get the
// same answer.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := h.users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil || !user.Active || !auth.VerifyPassword(user.PasswordHash, req.Password) {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"error": "invalid credentials",
		})
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		Role:        string(user.Role),
	})
}
