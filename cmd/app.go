package cmd

import (
	"fmt"
	"log/slog"

	"github.com/frahmantamala/fleet-recurring/internal"
	"github.com/frahmantamala/fleet-recurring/internal/audit"
	"github.com/frahmantamala/fleet-recurring/internal/category"
	categoryPostgres "github.com/frahmantamala/fleet-recurring/internal/category/postgres"
	"github.com/frahmantamala/fleet-recurring/internal/core/events"
	"github.com/frahmantamala/fleet-recurring/internal/database"
	"github.com/frahmantamala/fleet-recurring/internal/recurring"
	recurringPostgres "github.com/frahmantamala/fleet-recurring/internal/recurring/postgres"
	"github.com/frahmantamala/fleet-recurring/pkg/logger"
	"gorm.io/gorm"
)

// app holds the services shared by the server, worker and CLI commands.
type app struct {
	cfg        *internal.Config
	db         *gorm.DB
	bus        *events.EventBus
	logger     *slog.Logger
	categories *category.Service
	templates  *recurring.TemplateService
	engine     *recurring.Engine
	corrector  *recurring.Corrector
}

func newApp(cfg *internal.Config) (*app, error) {
	lg := logger.L()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if cfg.Database.Driver == database.DriverSQLite {
		if err := database.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
		}
	}

	bus := events.NewEventBus(lg)
	audit.Subscribe(bus, audit.NewLogSink(lg))

	categories := category.NewService(categoryPostgres.NewCategoryRepository(db), lg)

	templateRepo := recurringPostgres.NewTemplateRepository(db)
	ledgerRepo := recurringPostgres.NewLedgerRepository(db)
	history := recurring.NewHistory(recurringPostgres.NewHistoryRepository(db))
	locks := recurring.NewTemplateLocks()

	return &app{
		cfg:        cfg,
		db:         db,
		bus:        bus,
		logger:     lg,
		categories: categories,
		templates:  recurring.NewTemplateService(templateRepo, history, categories, bus, lg),
		engine: recurring.NewEngine(templateRepo, history, ledgerRepo, locks, bus, lg, recurring.EngineConfig{
			GeneratedMarker: cfg.Recurring.GeneratedMarker,
			BatchWorkers:    cfg.Recurring.BatchWorkers,
		}),
		corrector: recurring.NewCorrector(templateRepo, ledgerRepo, categories, locks, bus, lg, cfg.Recurring.GeneratedMarker),
	}, nil
}

// close drains pending events and releases the database.
func (a *app) close() {
	a.bus.Wait()
	sqlDB, err := a.db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		a.logger.Error("Database close error", "error", err)
	}
}
