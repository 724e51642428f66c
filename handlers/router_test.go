package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/CrowderSoup/agenda-app/agenda"
	"github.com/CrowderSoup/agenda-app/config"
	"github.com/CrowderSoup/agenda-app/database"
	"github.com/CrowderSoup/agenda-app/explorer"
	"github.com/CrowderSoup/agenda-app/kanban"
	"github.com/CrowderSoup/agenda-app/retry"
	"github.com/CrowderSoup/agenda-app/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	router http.Handler
	store  *database.SQLStore
	auth   *services.AuthService
}

type envOptions struct {
	auth config.AuthConfig
	// wrap replaces the store seen by the kanban service.
	wrap func(database.Store) database.Store
}

func newEnv(t *testing.T) *testEnv {
	return newEnvWith(t, envOptions{
		auth: config.AuthConfig{JWTSecret: "test-secret", TokenTTL: "1h", DevLinks: true},
	})
}

func newEnvWith(t *testing.T, o envOptions) *testEnv {
	t.Helper()
	store, err := database.OpenSQLite("sqlite", filepath.Join(t.TempDir(), "api.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	var kanbanStore database.Store = store
	if o.wrap != nil {
		kanbanStore = o.wrap(store)
	}

	settings := database.NewSettingsService(store, nil)
	auth := services.NewAuthService(o.auth, nil)
	policy := retry.Policy{Retries: 0}
	exp, err := explorer.New(store, explorer.Options{Retry: policy})
	require.NoError(t, err)

	router := NewRouter(Deps{
		Auth:           auth,
		Agenda:         agenda.NewService(store, settings, agenda.Options{Location: time.UTC, GeneralOwnerID: "generale", Retry: policy}),
		Kanban:         kanban.NewService(kanbanStore, settings, nil, time.UTC, policy, nil),
		Explorer:       exp,
		Settings:       settings,
		ExplorerAdmins: []string{"Admin@example.com"},
	})
	return &testEnv{router: router, store: store, auth: auth}
}

func (e *testEnv) token(t *testing.T, user string) string {
	t.Helper()
	tok, err := e.auth.CreateJWT(user)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var env Envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestAuthFlow(t *testing.T) {
	e := newEnv(t)

	rec, env := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", env.Status)
	data := env.Data.(map[string]any)
	link, err := url.Parse(data["magicLink"].(string))
	require.NoError(t, err)

	rec, _ = e.do(t, http.MethodGet, link.RequestURI(), "", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	jwtToken := loc.Query().Get("token")
	require.NotEmpty(t, jwtToken)

	rec, env = e.do(t, http.MethodGet, "/api/auth/verify", jwtToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ada@example.com", env.Data.(map[string]any)["email"])

	// magic links are single use
	rec, _ = e.do(t, http.MethodGet, link.RequestURI(), "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginHidesMagicLink(t *testing.T) {
	e := newEnvWith(t, envOptions{auth: config.AuthConfig{JWTSecret: "test-secret", TokenTTL: "1h"}})

	rec, env := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	data := env.Data.(map[string]any)
	assert.NotContains(t, data, "magicLink")
	assert.NotEmpty(t, data["message"])
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/api/agenda", "/api/kanban/scadenze", "/api/explorer/tables", "/api/settings"} {
		rec, env := e.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, "error", env.Status)
	}
	rec, _ := e.do(t, http.MethodGet, "/api/agenda", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAgendaView(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.store.Insert(ctx, database.TableAppointments, database.Row{
		"user_id": "ada", "titolo": "Client call", "data_inizio": "2024-06-05T14:00:00Z", "data_fine": "2024-06-05T15:00:00Z",
	})
	require.NoError(t, err)
	_, err = e.store.Insert(ctx, database.TableTodos, database.Row{
		"user_id": "ada", "titolo": "Prepare slides", "scadenza": "2024-06-05T08:00:00Z",
	})
	require.NoError(t, err)

	rec, env := e.do(t, http.MethodGet, "/api/agenda?view=day&date=2024-06-05", e.token(t, "ada"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Empty(t, env.Errors)

	raw, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var view agenda.View
	require.NoError(t, json.Unmarshal(raw, &view))
	require.Len(t, view.Days, 1)
	require.Len(t, view.Days[0].Items, 2)
	assert.Equal(t, "Prepare slides", view.Days[0].Items[0].Title)
	assert.Equal(t, "Client call", view.Days[0].Items[1].Title)

	rec, env = e.do(t, http.MethodGet, "/api/agenda?view=day&date=2024-06-05&types=appuntamenti&q=CLIENT", e.token(t, "ada"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	raw, _ = json.Marshal(env.Data)
	require.NoError(t, json.Unmarshal(raw, &view))
	require.Len(t, view.Days[0].Items, 1)

	rec, _ = e.do(t, http.MethodGet, "/api/agenda?view=year", e.token(t, "ada"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = e.do(t, http.MethodGet, "/api/agenda?date=05/06/2024", e.token(t, "ada"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, env = e.do(t, http.MethodGet, "/api/agenda?types=appuntamenti,foo", e.token(t, "ada"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.Len(t, env.Errors, 1)
	assert.Contains(t, env.Errors[0].Message, `"foo"`)
}

func TestKanbanRoutes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	row, err := e.store.Insert(ctx, database.TableTodos, database.Row{
		"user_id": "ada", "titolo": "Far away", "scadenza": time.Now().AddDate(0, 1, 0).UTC().Format(time.RFC3339),
	})
	require.NoError(t, err)
	key := "todolist:" + jsonNumber(row["id"])
	tok := e.token(t, "ada")

	rec, env := e.do(t, http.MethodGet, "/api/kanban/scadenze", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", env.Status)

	rec, env = e.do(t, http.MethodPost, "/api/kanban/scadenze/move", tok, kanban.Move{Key: key, To: kanban.Position{Column: kanban.ColumnOverdue}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.Len(t, env.Errors, 1)
	assert.NotEmpty(t, env.Errors[0].Message)

	rec, _ = e.do(t, http.MethodPost, "/api/kanban/scadenze/move", tok, kanban.Move{Key: key, To: kanban.Position{Column: kanban.ColumnCompleted}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = e.do(t, http.MethodGet, "/api/kanban/nope", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// unreadableStore fails every select.
type unreadableStore struct {
	database.Store
}

func (unreadableStore) Select(context.Context, database.Query) ([]database.Row, error) {
	return nil, errors.New("connection reset")
}

func TestKanbanMoveOnUnreadableBoard(t *testing.T) {
	e := newEnvWith(t, envOptions{
		auth: config.AuthConfig{JWTSecret: "test-secret", TokenTTL: "1h"},
		wrap: func(s database.Store) database.Store { return unreadableStore{s} },
	})
	tok := e.token(t, "ada")

	rec, env := e.do(t, http.MethodPost, "/api/kanban/scadenze/move", tok, kanban.Move{Key: "todolist:1", To: kanban.Position{Column: kanban.ColumnToday}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "error", env.Status)
	require.Len(t, env.Errors, 2)
	assert.Equal(t, "todolist", env.Errors[1].Source)
	assert.Contains(t, env.Errors[1].Message, "connection reset")
}

func TestExplorerNeedsAdmin(t *testing.T) {
	e := newEnv(t)
	tok := e.token(t, "ada@example.com")

	for _, path := range []string{"/api/explorer/tables", "/api/explorer/tables/configurazione/rows"} {
		rec, env := e.do(t, http.MethodGet, path, tok, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
		assert.Equal(t, "error", env.Status)
	}
	rec, _ := e.do(t, http.MethodDelete, "/api/explorer/tables/todolist/rows/1", tok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = e.do(t, http.MethodGet, "/api/explorer/tables", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExplorerRoutes(t *testing.T) {
	e := newEnv(t)
	tok := e.token(t, "admin@example.com")

	rec, env := e.do(t, http.MethodGet, "/api/explorer/tables", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, env.Data.(map[string]any)["tables"], "todolist")

	rec, env = e.do(t, http.MethodPost, "/api/explorer/tables/todolist/rows", tok, map[string]any{"user_id": "ada", "titolo": "via explorer"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := jsonNumber(env.Data.(map[string]any)["id"])

	rec, env = e.do(t, http.MethodPut, "/api/explorer/tables/todolist/rows/"+id, tok, map[string]any{"titolo": "renamed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "renamed", env.Data.(map[string]any)["titolo"])

	rec, env = e.do(t, http.MethodGet, "/api/explorer/tables/todolist/rows?pageSize=10&sort=titolo&desc=true", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, env.Data.(map[string]any)["total"])

	rec, _ = e.do(t, http.MethodGet, "/api/explorer/tables/todolist/rows?sort=bogus", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = e.do(t, http.MethodGet, "/api/explorer/tables/todolist/rows?filter=user_id:ada&search=titolo:RENAM", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, env.Data.(map[string]any)["total"])
	rec, env = e.do(t, http.MethodGet, "/api/explorer/tables/todolist/rows?filter=user_id:bob", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, env.Data.(map[string]any)["total"])
	rec, _ = e.do(t, http.MethodGet, "/api/explorer/tables/todolist/rows?filter=user_id", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.do(t, http.MethodGet, "/api/explorer/tables/secrets/columns", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = e.do(t, http.MethodDelete, "/api/explorer/tables/todolist/rows/"+id, tok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = e.do(t, http.MethodGet, "/api/explorer/tables/todolist/rows/"+id, tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettingsRoutes(t *testing.T) {
	e := newEnv(t)
	tok := e.token(t, "ada")

	rec, env := e.do(t, http.MethodGet, "/api/settings", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, env.Data.(map[string]any)["priorita"], 4)

	custom := database.Settings{Priorities: []database.Label{{ID: "p1", Value: "Top", Color: "#000"}}}
	rec, _ = e.do(t, http.MethodPut, "/api/settings", tok, custom)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = e.do(t, http.MethodGet, "/api/settings", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	prios := env.Data.(map[string]any)["priorita"].([]any)
	require.Len(t, prios, 1)
	assert.Equal(t, "Top", prios[0].(map[string]any)["value"])

	rec, _ = e.do(t, http.MethodPut, "/api/settings", tok, database.Settings{Statuses: []database.Label{{Value: "no id"}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func jsonNumber(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
