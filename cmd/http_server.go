package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/fleet-recurring/internal/category"
	"github.com/frahmantamala/fleet-recurring/internal/database"
	"github.com/frahmantamala/fleet-recurring/internal/recurring"
	"github.com/frahmantamala/fleet-recurring/internal/transport"
	"github.com/frahmantamala/fleet-recurring/internal/transport/rest"
	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	App    *app
	DB     *sqlx.DB
	Router *chi.Mux
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	setupRoutes(deps)

	cfg := deps.App.cfg
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	if cfg.Database.Driver != database.DriverSQLite {
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	}
	deps.App.close()
	slog.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) {
	a := deps.App
	base := transport.NewBaseHandler(a.logger)
	recurringHandler := recurring.NewHandler(base, a.templates, a.engine, a.corrector)
	categoryHandler := category.NewHandler(base, a.categories)

	if _, err := rest.LoadOpenAPI(context.Background(), rest.OpenAPIPath); err != nil {
		a.logger.Warn("openapi document unavailable, /swagger will not render", "error", err)
	}

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, recurringHandler, categoryHandler, a.logger)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	a, err := newApp(config)
	if err != nil {
		return nil, err
	}

	db, err := database.SQLX(config.Database, a.db)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to open health check connection: %w", err)
	}

	return &Dependencies{
		App:    a,
		DB:     db,
		Router: chi.NewRouter(),
	}, nil
}
