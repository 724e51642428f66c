package handlers

import (
	"net/http"

	"github.com/CrowderSoup/agenda-app/database"
	"github.com/CrowderSoup/agenda-app/services"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SettingsHandler serves the per-user configuration record and the
// websocket endpoint.
type SettingsHandler struct {
	settings       *database.SettingsService
	hub            *services.Hub
	allowedOrigins []string
	logger         *zap.Logger
}

func NewSettingsHandler(settings *database.SettingsService, hub *services.Hub, allowedOrigins []string, logger *zap.Logger) *SettingsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsHandler{settings: settings, hub: hub, allowedOrigins: allowedOrigins, logger: logger}
}

// GetSettings handles GET /api/settings.
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user not found")
		return
	}

	settings, err := h.settings.GetSettings(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get settings", zap.String("user", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeSuccess(w, http.StatusOK, settings)
}

// SaveSettings handles PUT /api/settings and tells the user's other
// sessions to refresh.
func (h *SettingsHandler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user not found")
		return
	}

	var settings database.Settings
	if err := decodeJSON(w, r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request format")
		return
	}
	for _, set := range [][]database.Label{settings.Priorities, settings.Statuses} {
		for _, l := range set {
			if l.ID == "" {
				writeError(w, http.StatusBadRequest, "every label needs an id")
				return
			}
		}
	}

	if err := h.settings.SaveSettings(r.Context(), userID, &settings); err != nil {
		h.logger.Error("failed to save settings", zap.String("user", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	if h.hub != nil {
		h.hub.NotifyUser(userID, "settings.changed", settings)
	}
	writeSuccess(w, http.StatusOK, settings)
}

func (h *SettingsHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades the connection and registers it with the hub.
func (h *SettingsHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user not found")
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: h.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("user", userID), zap.Error(err))
		return
	}

	client := h.hub.Serve(conn, userID)
	h.logger.Debug("websocket client registered", zap.String("user", userID), zap.String("client", client.ID))
}
