package recurring

import (
	"context"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/fleet-recurring/internal"
	"github.com/frahmantamala/fleet-recurring/internal/core/events"
	"github.com/frahmantamala/fleet-recurring/internal/core/scope"
)

// Notifier receives change events after a mutation has been stored. Publishing
// is fire-and-forget: a failure is logged and never undoes the mutation.
type Notifier interface {
	Publish(ctx context.Context, event events.Event) error
}

// TemplateService owns the template lifecycle. Every call is evaluated against an
// explicit access scope; templates outside the scope look like missing ones.
type TemplateService struct {
	repo       TemplateRepositoryAPI
	history    *History
	categories CategoryCheckerAPI
	notifier   Notifier
	logger     *slog.Logger
}

func NewTemplateService(repo TemplateRepositoryAPI, history *History, categories CategoryCheckerAPI, notifier Notifier, logger *slog.Logger) *TemplateService {
	return &TemplateService{
		repo:       repo,
		history:    history,
		categories: categories,
		notifier:   notifier,
		logger:     logger,
	}
}

func (s *TemplateService) Create(ctx context.Context, sc scope.Scope, dto CreateTemplateDTO) (*Template, error) {
	ownerID, err := ownerFor(sc, dto.OwnerID)
	if err != nil {
		return nil, err
	}

	t, err := NewTemplate(ownerID, sc.ActorID, dto)
	if err != nil {
		s.logger.Warn("recurring template validation failed", "error", err, "owner_id", ownerID)
		return nil, err
	}
	if err := s.checkCategory(ctx, t.CategoryID); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, ToDataModel(t)); err != nil {
		s.logger.Error("failed to create recurring template", "error", err, "owner_id", ownerID)
		return nil, errors.NewInternalError("Failed to create recurring template", err)
	}

	s.logger.Info("recurring template created",
		"template_id", t.ID,
		"owner_id", t.OwnerID,
		"frequency", t.Frequency,
		"amount", t.Amount.String())
	s.publish(ctx, events.NewTemplateEvent(events.EventTypeTemplateCreated, t.ID, t.OwnerID, sc.ActorID))

	return t, nil
}

func (s *TemplateService) Get(ctx context.Context, sc scope.Scope, id string) (*Template, error) {
	if sc.IsZero() {
		return nil, errors.ErrMissingScope
	}
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.ErrTemplateNotFound
		}
		s.logger.Error("failed to get recurring template", "error", err, "template_id", id)
		return nil, errors.NewInternalError("Failed to load recurring template", err)
	}
	if !sc.Allows(row.OwnerID) {
		s.logger.Warn("recurring template outside scope", "template_id", id, "scope", sc.String())
		return nil, errors.ErrTemplateNotFound
	}
	return FromDataModel(row), nil
}

func (s *TemplateService) List(ctx context.Context, sc scope.Scope, filter ListFilter) ([]*Template, error) {
	if sc.IsZero() {
		return nil, errors.ErrMissingScope
	}
	q := TemplateQuery{
		Active: filter.Active,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	if !sc.System {
		q.OwnerID = sc.OwnerID
	}
	rows, err := s.repo.List(ctx, q)
	if err != nil {
		s.logger.Error("failed to list recurring templates", "error", err, "scope", sc.String())
		return nil, errors.NewInternalError("Failed to list recurring templates", err)
	}
	return FromDataModelSlice(rows), nil
}

// Update merges dto into the stored template. Already generated entries keep their
// terms; use the Corrector to rewrite them.
func (s *TemplateService) Update(ctx context.Context, sc scope.Scope, id string, dto UpdateTemplateDTO) (*Template, error) {
	t, err := s.Get(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	if err := t.Apply(dto); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		s.logger.Warn("recurring template update rejected", "error", err, "template_id", id)
		return nil, err
	}
	if dto.CategoryID != nil {
		if err := s.checkCategory(ctx, t.CategoryID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, ToDataModel(t)); err != nil {
		s.logger.Error("failed to update recurring template", "error", err, "template_id", id)
		return nil, errors.NewInternalError("Failed to update recurring template", err)
	}

	s.logger.Info("recurring template updated", "template_id", id, "owner_id", t.OwnerID)
	s.publish(ctx, events.NewTemplateEvent(events.EventTypeTemplateUpdated, t.ID, t.OwnerID, sc.ActorID))
	return t, nil
}

// Delete refuses to orphan history unless cascade is set. Cascade drops the
// history records; ledger entries already generated stay in place.
func (s *TemplateService) Delete(ctx context.Context, sc scope.Scope, id string, cascade bool) error {
	t, err := s.Get(ctx, sc, id)
	if err != nil {
		return err
	}

	if !cascade {
		count, err := s.history.Count(ctx, id)
		if err != nil {
			s.logger.Error("failed to count template history", "error", err, "template_id", id)
			return errors.NewInternalError("Failed to inspect template history", err)
		}
		if count > 0 {
			s.logger.Warn("recurring template delete blocked by history", "template_id", id, "records", count)
			return errors.ErrTemplateHasHistory.WithDetails(map[string]int64{"records": count})
		}
	}

	if err := s.repo.Delete(ctx, id, cascade); err != nil {
		if errors.IsNotFound(err) {
			return errors.ErrTemplateNotFound
		}
		s.logger.Error("failed to delete recurring template", "error", err, "template_id", id)
		return errors.NewInternalError("Failed to delete recurring template", err)
	}

	s.logger.Info("recurring template deleted", "template_id", id, "cascade", cascade)
	s.publish(ctx, events.NewTemplateEvent(events.EventTypeTemplateDeleted, t.ID, t.OwnerID, sc.ActorID))
	return nil
}

func (s *TemplateService) SetActive(ctx context.Context, sc scope.Scope, id string, active bool) (*Template, error) {
	t, err := s.Get(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	if t.Active == active {
		return t, nil
	}

	if err := s.repo.SetActive(ctx, id, active); err != nil {
		s.logger.Error("failed to change template state", "error", err, "template_id", id, "active", active)
		return nil, errors.NewInternalError("Failed to change recurring template state", err)
	}

	eventType := events.EventTypeTemplateDeactivated
	if active {
		t.Activate()
		eventType = events.EventTypeTemplateActivated
	} else {
		t.Deactivate()
	}
	s.logger.Info("recurring template state changed", "template_id", id, "active", active)
	s.publish(ctx, events.NewTemplateEvent(eventType, t.ID, t.OwnerID, sc.ActorID))
	return t, nil
}

// History lists the generation records of a template visible in sc.
func (s *TemplateService) History(ctx context.Context, sc scope.Scope, id string, from *time.Time) ([]*Generation, error) {
	if _, err := s.Get(ctx, sc, id); err != nil {
		return nil, err
	}
	gens, err := s.history.List(ctx, id, from)
	if err != nil {
		s.logger.Error("failed to list template history", "error", err, "template_id", id)
		return nil, errors.NewInternalError("Failed to list template history", err)
	}
	return gens, nil
}

func (s *TemplateService) checkCategory(ctx context.Context, categoryID *string) error {
	if categoryID == nil || s.categories == nil {
		return nil
	}
	if err := s.categories.Validate(ctx, *categoryID); err != nil {
		s.logger.Warn("recurring template references unusable category", "category_id", *categoryID, "error", err)
		return err
	}
	return nil
}

func (s *TemplateService) publish(ctx context.Context, e events.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish recurring event", "event_type", e.EventType(), "error", err)
	}
}

// ownerFor resolves which franchise a new template belongs to. A tenant scope
// always wins; the system scope has to name the owner explicitly.
func ownerFor(sc scope.Scope, requested string) (string, error) {
	switch {
	case sc.IsZero():
		return "", errors.ErrMissingScope
	case !sc.System:
		if requested != "" && requested != sc.OwnerID {
			return "", errors.NewValidationFieldError("owner_id", "owner_id does not match the request scope", errors.ErrCodeInvalidScope)
		}
		return sc.OwnerID, nil
	case requested == "":
		return "", errors.NewValidationFieldError("owner_id", "owner_id is required in system scope", errors.ErrCodeInvalidScope)
	default:
		return requested, nil
	}
}
