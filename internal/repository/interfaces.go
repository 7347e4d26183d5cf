package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/rpattn/parametric/internal/domain"
)

// ModelRepository defines the persistence boundary for ParametricModel rows.
type ModelRepository interface {
	Create(ctx context.Context, model domain.ParametricModel) (domain.ParametricModel, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.ParametricModel, error)
	ListByProject(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]domain.ParametricModel, error)
	// ListLineage returns every row on the version chain through id:
	// ancestors and descendants, oldest first.
	ListLineage(ctx context.Context, id uuid.UUID) ([]domain.ParametricModel, error)
	// UpdateInPlace persists the model under its existing row id and bumps
	// the revision counter. A non-nil expectedRevision turns the write into
	// a compare-and-swap: mismatch fails with a conflict.
	UpdateInPlace(ctx context.Context, model domain.ParametricModel, expectedRevision *int64) (domain.ParametricModel, error)
	// Delete hard-deletes one row; its share grants go with it. Parent and
	// child rows are untouched.
	Delete(ctx context.Context, id uuid.UUID) error
}

// ShareGrantRepository defines the interface for share grant operations.
type ShareGrantRepository interface {
	Create(ctx context.Context, grant domain.ShareGrant) (domain.ShareGrant, error)
	GetByToken(ctx context.Context, token string) (domain.ShareGrant, error)
	ListByModel(ctx context.Context, modelID uuid.UUID) ([]domain.ShareGrant, error)
	DeleteByModel(ctx context.Context, modelID uuid.UUID) error
}

// ActivityLogRepository stores the audit trail of mutating calls.
type ActivityLogRepository interface {
	Record(ctx context.Context, entry domain.ActivityEntry) error
}
