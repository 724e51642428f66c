package handlers

import (
	"errors"
	"net/http"

	"github.com/CrowderSoup/agenda-app/agenda"
	"github.com/CrowderSoup/agenda-app/kanban"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type KanbanHandler struct {
	kanban *kanban.Service
	logger *zap.Logger
}

func NewKanbanHandler(svc *kanban.Service, logger *zap.Logger) *KanbanHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KanbanHandler{kanban: svc, logger: logger}
}

func (h *KanbanHandler) board(w http.ResponseWriter, r *http.Request) (string, kanban.BoardKind, bool) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user not found")
		return "", "", false
	}
	kind, err := kanban.ParseBoardKind(mux.Vars(r)["board"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return "", "", false
	}
	return userID, kind, true
}

// GetBoard handles GET /api/kanban/{board}.
func (h *KanbanHandler) GetBoard(w http.ResponseWriter, r *http.Request) {
	userID, kind, ok := h.board(w, r)
	if !ok {
		return
	}

	b, srcErrs, err := h.kanban.Board(r.Context(), userID, kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, b, sourceAPIErrors(srcErrs)...)
}

func sourceAPIErrors(errs []*agenda.SourceError) []APIError {
	out := make([]APIError, 0, len(errs))
	for _, e := range errs {
		out = append(out, APIError{Source: e.Source, Message: e.Err.Error()})
	}
	return out
}

// Move handles POST /api/kanban/{board}/move. Rejected moves answer 409 and
// unsaved ones 500; both carry the board to display. When the board cannot be
// read the move is not attempted and the failed sources are listed.
func (h *KanbanHandler) Move(w http.ResponseWriter, r *http.Request) {
	userID, kind, ok := h.board(w, r)
	if !ok {
		return
	}

	var mv kanban.Move
	if err := decodeJSON(w, r, &mv); err != nil || mv.Key == "" || mv.To.Column == "" {
		writeError(w, http.StatusBadRequest, "invalid move")
		return
	}

	res, err := h.kanban.Move(r.Context(), userID, kind, mv)
	var errs []APIError
	if res != nil {
		errs = sourceAPIErrors(res.Errors)
	}
	var me *kanban.MoveError
	switch {
	case err == nil:
		writeSuccess(w, http.StatusOK, res, errs...)
	case errors.Is(err, kanban.ErrBoardUnavailable):
		h.logger.Error("kanban move failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("user", userID),
			zap.Error(err))
		errs = append([]APIError{{Message: "the board could not be loaded"}}, errs...)
		writeJSON(w, http.StatusInternalServerError, Envelope{Status: "error", Data: res, Errors: errs})
	case errors.As(err, &me) && errors.Is(err, kanban.ErrMoveRejected):
		writeJSON(w, http.StatusConflict, Envelope{Status: "error", Data: res, Errors: append([]APIError{{Message: me.Notice}}, errs...)})
	case errors.As(err, &me):
		writeJSON(w, http.StatusInternalServerError, Envelope{Status: "error", Data: res, Errors: append([]APIError{{Message: me.Notice}}, errs...)})
	default:
		writeError(w, http.StatusNotFound, err.Error())
	}
}
