package category

import (
	"context"
	"log/slog"

	errors "github.com/frahmantamala/fleet-recurring/internal"
	categoryDatamodel "github.com/frahmantamala/fleet-recurring/internal/core/datamodel/category"
)

type RepositoryAPI interface {
	GetAll(ctx context.Context) ([]*categoryDatamodel.Category, error)
	GetByID(ctx context.Context, id string) (*categoryDatamodel.Category, error)
	GetByName(ctx context.Context, name string) (*categoryDatamodel.Category, error)
	Create(ctx context.Context, category *categoryDatamodel.Category) error
	Update(ctx context.Context, category *categoryDatamodel.Category) error
	Delete(ctx context.Context, id string) error
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) GetAllCategories(ctx context.Context) ([]CategoryResponse, error) {
	dataCategories, err := s.repo.GetAll(ctx)
	if err != nil {
		s.logger.Error("failed to get categories from repository", "error", err)
		return nil, err
	}

	responses := make([]CategoryResponse, 0, len(dataCategories))
	for _, dataCategory := range dataCategories {
		domainCategory := FromDataModel(dataCategory)
		if domainCategory.IsActiveCategory() {
			responses = append(responses, domainCategory.ToResponse())
		}
	}

	s.logger.Debug("retrieved categories", "count", len(responses))
	return responses, nil
}

// Validate accepts only an existing, active category id.
func (s *Service) Validate(ctx context.Context, id string) error {
	dataCategory, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("failed to look up category", "category_id", id, "error", err)
		return errors.NewInternalError("Failed to look up category", err)
	}
	if dataCategory == nil || !dataCategory.IsActive {
		return errors.NewValidationFieldError("category_id", "category does not exist or is inactive", errors.ErrCodeInvalidCategory)
	}
	return nil
}

// Ensure returns the category called name, creating it when missing.
func (s *Service) Ensure(ctx context.Context, name, kind, description string) (*Category, error) {
	existing, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return FromDataModel(existing), nil
	}

	c := NewCategory(name, kind, description)
	if err := s.repo.Create(ctx, ToDataModel(c)); err != nil {
		s.logger.Error("failed to create category", "name", name, "error", err)
		return nil, err
	}
	s.logger.Info("category created", "category_id", c.ID, "name", name)
	return c, nil
}

func (s *Service) Deactivate(ctx context.Context, id string) error {
	dataCategory, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if dataCategory == nil {
		return errors.ErrCategoryNotFound
	}
	return s.repo.Delete(ctx, id)
}
