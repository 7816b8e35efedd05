package batches

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"dataset-platform/core/apperr"
	"dataset-platform/core/auth"
	"dataset-platform/core/models"
	"dataset-platform/core/repository"
)

// Service manages batch lifecycle and ownership.
type Service struct {
	batches repository.Batches
}

// NewService creates a batch service.
func NewService(batches repository.Batches) *Service {
	return &Service{batches: batches}
}

// CreateInput is the payload for creating a batch.
type CreateInput struct {
	Title       string
	Description string
	Classes     []string
}

// Create registers a new draft batch owned by the caller. Labelers cannot
// create batches.
func (s *Service) Create(ctx context.Context, user *models.User, in CreateInput) (*models.Batch, error) {
	if user.Role == models.RoleLabeler {
		return nil, apperr.Forbidden("labelers cannot create batches")
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, apperr.BadRequest("title is required")
	}
	if len(in.Classes) == 0 {
		return nil, apperr.BadRequest("at least one class is required")
	}

	batch := &models.Batch{
		OwnerID:     user.ID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Classes:     in.Classes,
		Status:      models.BatchStatusDraft,
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, eris.Wrap(err, "batches: create")
	}
	return batch, nil
}

// List returns the batches visible to the caller: customers see their own,
// everyone else sees all.
func (s *Service) List(ctx context.Context, user *models.User) ([]*models.Batch, error) {
	if user.Role == models.RoleCustomer {
		return s.batches.ListByOwner(ctx, user.ID)
	}
	return s.batches.ListAll(ctx)
}

// Get returns a single batch after an ownership check.
func (s *Service) Get(ctx context.Context, user *models.User, batchID int64) (*models.Batch, error) {
	return Authorize(ctx, s.batches, user, batchID)
}

// Authorize loads a batch and verifies the caller may manage it. It returns
// NotFound for missing batches and Forbidden for insufficient access, so
// non-owners cannot distinguish hidden batches from absent ones by probing.
func Authorize(ctx context.Context, batches repository.Batches, user *models.User, batchID int64) (*models.Batch, error) {
	batch, err := batches.Get(ctx, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "batches: get")
	}
	if batch == nil {
		return nil, apperr.NotFound("batch not found")
	}
	if !auth.BatchPermission(user, batch).CanManage() {
		return nil, apperr.Forbidden("not allowed to manage this batch")
	}
	return batch, nil
}
