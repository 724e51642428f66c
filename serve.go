package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/CrowderSoup/agenda-app/agenda"
	"github.com/CrowderSoup/agenda-app/config"
	"github.com/CrowderSoup/agenda-app/database"
	"github.com/CrowderSoup/agenda-app/explorer"
	"github.com/CrowderSoup/agenda-app/handlers"
	"github.com/CrowderSoup/agenda-app/kanban"
	"github.com/CrowderSoup/agenda-app/services"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and websocket server",
	RunE:  runServe,
}

func newExplorer(store database.Store) (*explorer.Explorer, error) {
	return explorer.New(store, explorer.Options{
		Strategies:  cfg.Explorer.Strategies,
		KnownTables: cfg.Explorer.KnownTables,
		CacheTTL:    config.Duration(cfg.Explorer.CacheTTL, 5*time.Minute),
		PageSize:    cfg.Explorer.PageSize,
		MaxPageSize: cfg.Explorer.MaxPageSize,
		Retry:       retryPolicy(),
		Logger:      logger.Named("explorer"),
	})
}

func newAgenda(store database.Store, settings *database.SettingsService) *agenda.Service {
	return agenda.NewService(store, settings, agenda.Options{
		Location:       location(),
		GeneralOwnerID: cfg.Agenda.GeneralOwnerID,
		Colors:         cfg.Agenda.Colors,
		Retry:          retryPolicy(),
		Logger:         logger.Named("agenda"),
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.InsecureSecret() {
		logger.Warn("JWT_SECRET is not set, using the built-in default secret")
	}
	if cfg.Auth.DevLinks {
		logger.Warn("auth.dev_links is on: login responses include the magic link")
	}
	if len(cfg.Explorer.Admins) == 0 {
		logger.Info("explorer.admins is empty, the table explorer is disabled")
	}

	store, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	settings := database.NewSettingsService(store, logger.Named("settings"))
	authService := services.NewAuthService(cfg.Auth, logger.Named("auth"))

	hub := services.NewHub(logger.Named("ws"))
	go hub.Run(ctx)

	exp, err := newExplorer(store)
	if err != nil {
		return err
	}
	go sweepExplorer(ctx, exp, config.Duration(cfg.Explorer.CacheTTL, 5*time.Minute))

	router := handlers.NewRouter(handlers.Deps{
		Auth:           authService,
		Agenda:         newAgenda(store, settings),
		Kanban:         kanban.NewService(store, settings, hub, location(), retryPolicy(), logger.Named("kanban")),
		Explorer:       exp,
		Settings:       settings,
		Hub:            hub,
		ExplorerAdmins: cfg.Explorer.Admins,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		StaticDir:      cfg.Server.StaticDir,
		Logger:         logger,
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      c.Handler(router),
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout, 15*time.Second),
		IdleTimeout:  config.Duration(cfg.Server.IdleTimeout, 60*time.Second),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("port", cfg.Server.Port),
			zap.String("driver", cfg.Database.Driver),
			zap.String("timezone", location().String()))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sweepExplorer drops expired discovery entries until ctx ends.
func sweepExplorer(ctx context.Context, exp *explorer.Explorer, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			exp.Cleanup()
		}
	}
}
