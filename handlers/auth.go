package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/CrowderSoup/agenda-app/services"
	"go.uber.org/zap"
)

// AuthHandler handles authentication-related endpoints
type AuthHandler struct {
	authService *services.AuthService
	logger      *zap.Logger
}

func NewAuthHandler(authService *services.AuthService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// Login sends a magic link to the given email address.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request format")
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	baseURL := fmt.Sprintf("%s://%s", scheme, r.Host)

	magicLink, err := h.authService.GenerateMagicLink(email, baseURL)
	if err != nil {
		h.logger.Error("failed to generate magic link", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to generate login link")
		return
	}

	data := map[string]string{"message": "Magic link has been sent"}
	if h.authService.DevLinks() {
		data["magicLink"] = magicLink
	}
	writeSuccess(w, http.StatusOK, data)
}

// HandleMagicLink exchanges a magic link token for a session and redirects
// to the frontend.
func (h *AuthHandler) HandleMagicLink(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing token")
		return
	}

	email, err := h.authService.VerifyMagicLinkToken(token)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid or expired token")
		return
	}

	jwtToken, err := h.authService.CreateJWT(email)
	if err != nil {
		h.logger.Error("failed to create JWT", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "authentication error")
		return
	}

	q := url.Values{"token": {jwtToken}, "email": {email}}
	http.Redirect(w, r, "/?"+q.Encode(), http.StatusFound)
}

// VerifyToken reports the user of a valid bearer token.
func (h *AuthHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	tokenString, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid authorization header")
		return
	}

	userID, err := h.authService.VerifyJWT(tokenString)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]string{
		"email":  userID,
		"status": "valid",
	})
}
