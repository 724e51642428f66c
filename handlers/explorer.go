package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/CrowderSoup/agenda-app/database"
	"github.com/CrowderSoup/agenda-app/explorer"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ExplorerHandler exposes table discovery and row CRUD.
type ExplorerHandler struct {
	explorer *explorer.Explorer
	logger   *zap.Logger
}

func NewExplorerHandler(e *explorer.Explorer, logger *zap.Logger) *ExplorerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExplorerHandler{explorer: e, logger: logger}
}

func (h *ExplorerHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var de *explorer.DiscoveryError
	switch {
	case errors.As(err, &de):
		writeJSON(w, http.StatusServiceUnavailable, Envelope{
			Status: "error",
			Data:   map[string]any{"attempts": de.Attempts},
			Errors: []APIError{{Source: "discovery", Message: de.Error(), Instructions: de.Instructions}},
		})
	case errors.Is(err, explorer.ErrUnknownTable), errors.Is(err, explorer.ErrNotFound),
		errors.Is(err, database.ErrTableNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, explorer.ErrUnknownColumn), errors.Is(err, database.ErrInvalidIdentifier):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("explorer request failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "explorer request failed")
	}
}

// Tables handles GET /api/explorer/tables. ?refresh=true bypasses the cache
// and reports every discovery attempt.
func (h *ExplorerHandler) Tables(w http.ResponseWriter, r *http.Request) {
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		d, err := h.explorer.Discover(r.Context())
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, d)
		return
	}

	tables, err := h.explorer.Tables(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"tables": tables})
}

func (h *ExplorerHandler) Columns(w http.ResponseWriter, r *http.Request) {
	cols, err := h.explorer.Columns(r.Context(), mux.Vars(r)["table"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, cols)
}

// Rows handles GET /api/explorer/tables/{table}/rows?page=&pageSize=&sort=&desc=.
// filter=col:value and search=col:term may be repeated.
func (h *ExplorerHandler) Rows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("pageSize"))
	desc, _ := strconv.ParseBool(q.Get("desc"))

	equal, err := columnTerms(q["filter"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	search, err := columnTerms(q["search"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.explorer.Rows(r.Context(), mux.Vars(r)["table"], explorer.PageRequest{
		Page:     page,
		PageSize: size,
		Sort:     q.Get("sort"),
		Desc:     desc,
		Equal:    equal,
		Search:   search,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, p)
}

// columnTerms parses "column:value" pairs.
func columnTerms(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for _, t := range raw {
		col, val, ok := strings.Cut(t, ":")
		if !ok || col == "" {
			return nil, fmt.Errorf("%q is not column:value", t)
		}
		out[col] = val
	}
	return out, nil
}

func (h *ExplorerHandler) GetRow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	row, err := h.explorer.Get(r.Context(), vars["table"], vars["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, row)
}

func (h *ExplorerHandler) CreateRow(w http.ResponseWriter, r *http.Request) {
	var values database.Row
	if err := decodeJSON(w, r, &values); err != nil || len(values) == 0 {
		writeError(w, http.StatusBadRequest, "invalid row")
		return
	}
	row, err := h.explorer.Create(r.Context(), mux.Vars(r)["table"], values)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, row)
}

// UpsertRow handles PUT on the collection: insert, or replace by id.
func (h *ExplorerHandler) UpsertRow(w http.ResponseWriter, r *http.Request) {
	var values database.Row
	if err := decodeJSON(w, r, &values); err != nil || len(values) == 0 {
		writeError(w, http.StatusBadRequest, "invalid row")
		return
	}
	if err := h.explorer.Upsert(r.Context(), mux.Vars(r)["table"], values); err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, values)
}

func (h *ExplorerHandler) UpdateRow(w http.ResponseWriter, r *http.Request) {
	var patch database.Row
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid row")
		return
	}
	vars := mux.Vars(r)
	row, err := h.explorer.Update(r.Context(), vars["table"], vars["id"], patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, row)
}

func (h *ExplorerHandler) DeleteRow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.explorer.Delete(r.Context(), vars["table"], vars["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"deleted": vars["id"]})
}
