package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/CrowderSoup/agenda-app/agenda"
	"go.uber.org/zap"
)

// AgendaHandler serves composed calendar views.
type AgendaHandler struct {
	agenda *agenda.Service
	logger *zap.Logger
}

func NewAgendaHandler(svc *agenda.Service, logger *zap.Logger) *AgendaHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgendaHandler{agenda: svc, logger: logger}
}

// GetView handles GET /api/agenda?view=&date=&types=&q=&client=.
// Failed sources are listed in errors next to the partial view.
func (h *AgendaHandler) GetView(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user not found")
		return
	}

	q := r.URL.Query()
	mode, err := agenda.ParseViewMode(q.Get("view"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var date time.Time
	if d := q.Get("date"); d != "" {
		date, err = time.ParseInLocation("2006-01-02", d, h.agenda.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}

	types, err := agenda.ParseTypes(q["types"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := agenda.Filter{
		Types:  types,
		Search: q.Get("q"),
		Client: strings.TrimSpace(q.Get("client")),
	}

	res := h.agenda.View(r.Context(), userID, mode, date, filter)

	errs := sourceAPIErrors(res.Errors)
	if len(errs) > 0 {
		h.logger.Warn("agenda served with failed sources",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("user", userID),
			zap.Int("failed", len(errs)))
	}
	writeSuccess(w, http.StatusOK, res.View, errs...)
}
