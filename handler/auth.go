package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/mstgnz/paygate/infra/auth"
	"github.com/mstgnz/paygate/infra/middle"
	"github.com/mstgnz/paygate/infra/response"
)

// AuthHandler exchanges the API key for short lived dashboard tokens
type AuthHandler struct {
	jwt *auth.JWTService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(jwt *auth.JWTService) *AuthHandler {
	return &AuthHandler{jwt: jwt}
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssueToken handles POST /v1/auth/token. Only API key sessions may mint tokens.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	session := middle.GetSession(r.Context())
	if session == nil || session.Method != "api_key" {
		response.Error(w, http.StatusForbidden, "Tokens can only be issued with the API key", nil)
		return
	}

	token, expiresAt, err := h.jwt.GenerateToken("dashboard")
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to issue token", nil)
		return
	}

	response.Success(w, http.StatusCreated, "Token issued", tokenResponse{Token: token, ExpiresAt: expiresAt})
}

// RefreshToken handles POST /v1/auth/refresh with the current token as bearer
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	current, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || current == "" {
		response.Error(w, http.StatusUnauthorized, "Bearer token required", nil)
		return
	}

	token, expiresAt, err := h.jwt.RefreshToken(strings.TrimSpace(current))
	if err != nil {
		response.Error(w, http.StatusUnauthorized, "Token cannot be refreshed", err)
		return
	}

	response.Success(w, http.StatusOK, "Token refreshed", tokenResponse{Token: token, ExpiresAt: expiresAt})
}
