package recurring

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"sync"
	"time"

	errors "github.com/frahmantamala/fleet-recurring/internal"
	"github.com/frahmantamala/fleet-recurring/internal/core/events"
	"github.com/frahmantamala/fleet-recurring/internal/core/scope"
	"golang.org/x/sync/errgroup"
)

type EngineConfig struct {
	// GeneratedMarker is appended to the description of every generated entry.
	GeneratedMarker string
	// BatchWorkers bounds how many templates GenerateAll processes at once.
	BatchWorkers int
}

// Engine turns templates into concrete ledger entries up to a horizon date.
// Running it again for the same horizon creates nothing new.
type Engine struct {
	templates TemplateRepositoryAPI
	history   *History
	ledger    LedgerRepositoryAPI
	locks     *TemplateLocks
	notifier  Notifier
	logger    *slog.Logger
	cfg       EngineConfig
}

func NewEngine(templates TemplateRepositoryAPI, history *History, ledger LedgerRepositoryAPI, locks *TemplateLocks, notifier Notifier, logger *slog.Logger, cfg EngineConfig) *Engine {
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = 1
	}
	if locks == nil {
		locks = NewTemplateLocks()
	}
	return &Engine{
		templates: templates,
		history:   history,
		ledger:    ledger,
		locks:     locks,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
	}
}

// GenerateForTemplate materializes every missing occurrence of the template up to
// and including through, and returns how many entries it created.
func (e *Engine) GenerateForTemplate(ctx context.Context, templateID string, through time.Time) (int, error) {
	unlock := e.locks.Lock(templateID)
	defer unlock()

	row, err := e.templates.GetByID(ctx, templateID)
	if err != nil {
		if errors.IsNotFound(err) {
			return 0, errors.ErrTemplateNotFound
		}
		return 0, errors.NewInternalError("Failed to load recurring template", err)
	}
	t := FromDataModel(row)
	if !t.Active {
		e.logger.Debug("skipping inactive recurring template", "template_id", templateID)
		return 0, nil
	}
	if err := t.Validate(); err != nil {
		e.logger.Warn("stored recurring template is invalid", "template_id", templateID, "error", err)
		return 0, err
	}

	through = DateOf(through)
	anchor, includeAnchor := t.StartDate, true
	latest, err := e.history.Latest(ctx, templateID)
	if err != nil {
		return 0, errors.NewInternalError("Failed to read generation history", err)
	}
	if latest != nil {
		anchor, includeAnchor = *latest, false
	}

	candidates := Occurrences(t.Rule(), anchor, includeAnchor, through)
	if len(candidates) == 0 {
		return 0, nil
	}

	covered, err := e.history.Covered(ctx, templateID, candidates[0], candidates[len(candidates)-1])
	if err != nil {
		return 0, errors.NewInternalError("Failed to read generation history", err)
	}

	created := 0
	for _, occurrence := range candidates {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		if _, ok := covered[DateKey(occurrence)]; ok {
			continue
		}
		entry, record := t.Materialize(occurrence, e.cfg.GeneratedMarker)
		err := e.ledger.Materialize(ctx, entry, record)
		if stdErrors.Is(err, ErrAlreadyMaterialized) {
			e.logger.Debug("occurrence materialized concurrently", "template_id", templateID, "occurrence", DateKey(occurrence))
			continue
		}
		if err != nil {
			e.logger.Error("failed to materialize occurrence",
				"template_id", templateID,
				"occurrence", DateKey(occurrence),
				"error", err)
			return created, errors.NewInternalError("Failed to materialize recurring entry", err)
		}
		created++
	}

	if created > 0 {
		e.logger.Info("recurring entries generated",
			"template_id", templateID,
			"through", DateKey(through),
			"created", created)
		e.publish(ctx, events.NewEntriesGeneratedEvent(t.ID, t.OwnerID, created, through))
	}
	return created, nil
}

// GenerateAll runs GenerateForTemplate for every active template in sc. A failing
// template is recorded in the result and never stops the others; only failing to
// list templates is returned as an error.
func (e *Engine) GenerateAll(ctx context.Context, sc scope.Scope, through time.Time) (*BatchResult, error) {
	if sc.IsZero() {
		return nil, errors.ErrMissingScope
	}
	active := true
	q := TemplateQuery{Active: &active}
	if !sc.System {
		q.OwnerID = sc.OwnerID
	}
	rows, err := e.templates.List(ctx, q)
	if err != nil {
		e.logger.Error("failed to list templates for batch generation", "error", err, "scope", sc.String())
		return nil, errors.NewInternalError("Failed to list recurring templates", err)
	}

	through = DateOf(through)
	result := &BatchResult{
		Through:  through,
		Results:  make([]TemplateResult, 0, len(rows)),
		Failures: make([]BatchFailure, 0),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.BatchWorkers)
	for _, row := range rows {
		templateID := row.ID
		g.Go(func() error {
			created, err := e.GenerateForTemplate(gctx, templateID, through)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failure := BatchFailure{TemplateID: templateID, Error: err.Error()}
				if appErr, ok := errors.IsAppError(err); ok {
					failure.Code = appErr.Code
				}
				result.Failures = append(result.Failures, failure)
			}
			if created > 0 || err == nil {
				result.Results = append(result.Results, TemplateResult{TemplateID: templateID, Created: created})
				result.TotalCreated += created
			}
			return nil
		})
	}
	// workers never return an error; Wait only joins them
	_ = g.Wait()

	result.sort()
	logFn := e.logger.Info
	if result.HasFailures() {
		logFn = e.logger.Warn
	}
	logFn("batch generation finished",
		"scope", sc.String(),
		"through", DateKey(through),
		"templates", len(rows),
		"created", result.TotalCreated,
		"failures", len(result.Failures))
	return result, nil
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Publish(ctx, ev); err != nil {
		e.logger.Warn("failed to publish recurring event", "event_type", ev.EventType(), "error", err)
	}
}
