package handlers

import (
	"net/http"

	"github.com/CrowderSoup/agenda-app/agenda"
	"github.com/CrowderSoup/agenda-app/database"
	"github.com/CrowderSoup/agenda-app/explorer"
	"github.com/CrowderSoup/agenda-app/kanban"
	"github.com/CrowderSoup/agenda-app/services"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Deps are the services behind the HTTP API.
type Deps struct {
	Auth           *services.AuthService
	Agenda         *agenda.Service
	Kanban         *kanban.Service
	Explorer       *explorer.Explorer
	Settings       *database.SettingsService
	Hub            *services.Hub
	ExplorerAdmins []string
	AllowedOrigins []string
	StaticDir      string
	Logger         *zap.Logger
}

// NewRouter wires every route.
func NewRouter(d Deps) *mux.Router {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	authHandler := NewAuthHandler(d.Auth, logger)
	agendaHandler := NewAgendaHandler(d.Agenda, logger)
	kanbanHandler := NewKanbanHandler(d.Kanban, logger)
	explorerHandler := NewExplorerHandler(d.Explorer, logger)
	settingsHandler := NewSettingsHandler(d.Settings, d.Hub, d.AllowedOrigins, logger)
	authMiddleware := NewAuthMiddleware(d.Auth)

	r := mux.NewRouter()
	r.Use(RequestLogger(logger))

	api := r.PathPrefix("/api").Subrouter()
	api.Use(NoCache)

	// Auth routes
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")
	api.HandleFunc("/auth/verify", authHandler.VerifyToken).Methods("GET")
	api.HandleFunc("/auth/magic-link", authHandler.HandleMagicLink).Methods("GET")

	// Protected routes
	p := api.NewRoute().Subrouter()
	p.Use(authMiddleware.Auth)

	p.HandleFunc("/agenda", agendaHandler.GetView).Methods("GET")

	p.HandleFunc("/kanban/{board}", kanbanHandler.GetBoard).Methods("GET")
	p.HandleFunc("/kanban/{board}/move", kanbanHandler.Move).Methods("POST")

	// Explorer routes reach every table, so they are admin only
	x := p.PathPrefix("/explorer").Subrouter()
	x.Use(AdminOnly(d.ExplorerAdmins))
	x.HandleFunc("/tables", explorerHandler.Tables).Methods("GET")
	x.HandleFunc("/tables/{table}/columns", explorerHandler.Columns).Methods("GET")
	x.HandleFunc("/tables/{table}/rows", explorerHandler.Rows).Methods("GET")
	x.HandleFunc("/tables/{table}/rows", explorerHandler.CreateRow).Methods("POST")
	x.HandleFunc("/tables/{table}/rows", explorerHandler.UpsertRow).Methods("PUT")
	x.HandleFunc("/tables/{table}/rows/{id}", explorerHandler.GetRow).Methods("GET")
	x.HandleFunc("/tables/{table}/rows/{id}", explorerHandler.UpdateRow).Methods("PUT")
	x.HandleFunc("/tables/{table}/rows/{id}", explorerHandler.DeleteRow).Methods("DELETE")

	p.HandleFunc("/settings", settingsHandler.GetSettings).Methods("GET")
	p.HandleFunc("/settings", settingsHandler.SaveSettings).Methods("PUT")

	// WebSocket route for real-time updates
	p.HandleFunc("/ws", settingsHandler.HandleWebSocket)

	// Static file server for frontend
	if d.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(d.StaticDir)))
	}
	return r
}
