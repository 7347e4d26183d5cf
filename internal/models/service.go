// Package models is the service facade over parametric model storage,
// mutation, versioning, sharing and optimization.
package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rpattn/parametric/internal/auth"
	"github.com/rpattn/parametric/internal/domain"
	"github.com/rpattn/parametric/internal/optimization"
	"github.com/rpattn/parametric/internal/repository"
	"github.com/rpattn/parametric/internal/sharing"
	"github.com/rpattn/parametric/internal/versioning"
)

// Service wires the model repository, version manager, share issuer and
// optimization orchestrator behind the logical API surface. Every mutating
// call emits a fire-and-forget activity entry.
type Service struct {
	models   repository.ModelRepository
	activity repository.ActivityLogRepository

	versions  *versioning.Manager
	sharing   *sharing.Service
	optimizer *optimization.Orchestrator

	logger          zerolog.Logger
	now             func() time.Time
	activityTimeout time.Duration
}

// Option customizes the service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithActivityTimeout bounds each background activity write.
func WithActivityTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.activityTimeout = timeout
		}
	}
}

// NewService assembles the facade.
func NewService(
	models repository.ModelRepository,
	activity repository.ActivityLogRepository,
	versions *versioning.Manager,
	shares *sharing.Service,
	optimizer *optimization.Orchestrator,
	logger zerolog.Logger,
	opts ...Option,
) *Service {
	service := &Service{
		models:          models,
		activity:        activity,
		versions:        versions,
		sharing:         shares,
		optimizer:       optimizer,
		logger:          logger,
		now:             time.Now,
		activityTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// CreateRequest carries the fields of a new first version.
type CreateRequest struct {
	ProjectID        uuid.UUID
	Name             string
	Description      string
	Objects          []domain.ModelObject
	GlobalParameters []domain.Parameter
	Relationships    []domain.Relationship
	Metadata         map[string]any
}

// Create persists a first version: version 1, no parent.
func (s *Service) Create(ctx context.Context, req CreateRequest) (domain.ParametricModel, error) {
	if err := auth.EnforceProjectScope(ctx, req.ProjectID); err != nil {
		return domain.ParametricModel{}, err
	}

	model := domain.NewParametricModel(req.ProjectID, actorFrom(ctx), req.Name, req.Description,
		req.Objects, req.GlobalParameters, req.Relationships, req.Metadata)
	if err := model.Validate(); err != nil {
		return domain.ParametricModel{}, err
	}

	created, err := s.models.Create(ctx, model)
	if err != nil {
		return domain.ParametricModel{}, err
	}

	s.recordActivity(ctx, "model.created", map[string]any{
		"modelId": created.ID.String(),
		"name":    created.Name,
	}, created.ProjectID)
	return created, nil
}

// Get fetches one model, applying the project authorization filter.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.ParametricModel, error) {
	model, err := s.models.GetByID(ctx, id)
	if err != nil {
		return domain.ParametricModel{}, err
	}
	if err := auth.EnforceProjectScope(ctx, model.ProjectID); err != nil {
		return domain.ParametricModel{}, err
	}
	return model, nil
}

// List returns the authenticated project's models, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]domain.ParametricModel, error) {
	projectID, ok := auth.ProjectIDFromContext(ctx)
	if !ok {
		return nil, domain.ValidationError("project scope is required")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.models.ListByProject(ctx, projectID, limit, offset)
}

// Update applies an in-place patch. Version never moves; the repository bumps
// Revision, compare-and-swapped when the caller supplied an expected one.
func (s *Service) Update(ctx context.Context, id uuid.UUID, update domain.ModelUpdate) (domain.ParametricModel, error) {
	model, err := s.Get(ctx, id)
	if err != nil {
		return domain.ParametricModel{}, err
	}

	patched, err := s.versions.PatchInPlace(ctx, model, func(m domain.ParametricModel) (domain.ParametricModel, error) {
		next := m.Apply(update)
		if err := next.Validate(); err != nil {
			return domain.ParametricModel{}, err
		}
		return next, nil
	}, update.ExpectedRevision)
	if err != nil {
		return domain.ParametricModel{}, err
	}

	s.recordActivity(ctx, "model.updated", map[string]any{
		"modelId": patched.ID.String(),
	}, patched.ProjectID)
	return patched, nil
}

// SetParameter overwrites exactly one named parameter, object-local when
// objectID is non-empty, global otherwise. The patch stays in place.
func (s *Service) SetParameter(ctx context.Context, id uuid.UUID, objectID, name string, value any, expectedRevision *int64) (domain.ParametricModel, error) {
	if name == "" {
		return domain.ParametricModel{}, domain.ValidationError("parameter name is required")
	}

	model, err := s.Get(ctx, id)
	if err != nil {
		return domain.ParametricModel{}, err
	}

	actor := actorFrom(ctx)
	patched, err := s.versions.PatchInPlace(ctx, model, func(m domain.ParametricModel) (domain.ParametricModel, error) {
		return m.SetParameter(objectID, name, value, actor, s.now())
	}, expectedRevision)
	if err != nil {
		return domain.ParametricModel{}, err
	}

	s.recordActivity(ctx, "model.parameter_set", map[string]any{
		"modelId":   patched.ID.String(),
		"objectId":  objectID,
		"parameter": name,
	}, patched.ProjectID)
	return patched, nil
}

// Optimize runs the suggestion engine and returns the resulting branch. A
// collaborator failure creates nothing and leaves the parent authoritative.
func (s *Service) Optimize(ctx context.Context, id uuid.UUID, optimizationType domain.OptimizationType, constraints []string) (domain.ParametricModel, error) {
	model, err := s.Get(ctx, id)
	if err != nil {
		return domain.ParametricModel{}, err
	}

	branch, err := s.optimizer.Optimize(ctx, optimization.Request{
		Model:       model,
		Type:        optimizationType,
		Constraints: constraints,
		Actor:       actorFrom(ctx).String(),
	})
	if err != nil {
		return domain.ParametricModel{}, err
	}

	s.recordActivity(ctx, "model.optimized", map[string]any{
		"modelId":          model.ID.String(),
		"branchId":         branch.ID.String(),
		"optimizationType": string(optimizationType),
	}, branch.ProjectID)
	return branch, nil
}

// Share mints a time-boxed grant for the model.
func (s *Service) Share(ctx context.Context, id uuid.UUID, permissions []domain.Permission, expiresAt *time.Time) (domain.ShareGrant, error) {
	model, err := s.Get(ctx, id)
	if err != nil {
		return domain.ShareGrant{}, err
	}

	grant, err := s.sharing.Issue(ctx, model.ID, permissions, expiresAt, actorFrom(ctx))
	if err != nil {
		return domain.ShareGrant{}, err
	}

	s.recordActivity(ctx, "model.shared", map[string]any{
		"modelId": model.ID.String(),
		"grantId": grant.ID.String(),
	}, model.ProjectID)
	return grant, nil
}

// Delete hard-deletes one row and bulk-revokes its share grants. Parent and
// child rows stay untouched; their parent pointers are never rewritten.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	model, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.sharing.RevokeForModel(ctx, model.ID); err != nil {
		return err
	}
	if err := s.models.Delete(ctx, model.ID); err != nil {
		return err
	}

	s.recordActivity(ctx, "model.deleted", map[string]any{
		"modelId": model.ID.String(),
	}, model.ProjectID)
	return nil
}

// Lineage returns every version on the chain through id, parents before
// children, built from the arena rather than ad hoc pointer chasing.
func (s *Service) Lineage(ctx context.Context, id uuid.UUID) ([]domain.ParametricModel, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.models.ListLineage(ctx, id)
	if err != nil {
		return nil, err
	}
	return versioning.BuildLineage(rows).Ordered(), nil
}

// Diff renders a unified diff between two versions' canonical text.
func (s *Service) Diff(ctx context.Context, id, againstID uuid.UUID) (string, error) {
	base, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	target, err := s.Get(ctx, againstID)
	if err != nil {
		return "", err
	}

	baseSnapshot := domain.NewModelSnapshot(base)
	targetSnapshot := domain.NewModelSnapshot(target)
	return domain.DiffModelSnapshots(
		fmt.Sprintf("%s@v%d", base.ID, base.Version), &baseSnapshot,
		fmt.Sprintf("%s@v%d", target.ID, target.Version), &targetSnapshot,
	), nil
}

// SharedModel is a model resolved through a share token, scoped to the
// grant's permissions rather than the project filter.
type SharedModel struct {
	Model       domain.ParametricModel `json:"model"`
	Permissions []domain.Permission    `json:"permissions"`
	ExpiresAt   time.Time              `json:"expires_at"`
}

// ResolveShared validates a share token and returns the model it grants
// access to. Token possession replaces the project authorization filter.
func (s *Service) ResolveShared(ctx context.Context, token string) (SharedModel, error) {
	grant, err := s.sharing.Validate(ctx, token)
	if err != nil {
		return SharedModel{}, err
	}

	model, err := s.models.GetByID(ctx, grant.ModelID)
	if err != nil {
		return SharedModel{}, err
	}

	return SharedModel{
		Model:       model,
		Permissions: grant.Permissions,
		ExpiresAt:   grant.ExpiresAt,
	}, nil
}

func (s *Service) recordActivity(ctx context.Context, action string, details map[string]any, projectID uuid.UUID) {
	if s.activity == nil {
		return
	}
	entry := domain.NewActivityEntry(action, details, actorFrom(ctx), projectID,
		auth.RequestInfoFromContext(ctx).IP, auth.RequestInfoFromContext(ctx).UserAgent)

	// Best effort: the mutation never waits on, or fails with, the log write.
	go func() {
		logCtx, cancel := context.WithTimeout(context.Background(), s.activityTimeout)
		defer cancel()
		if err := s.activity.Record(logCtx, entry); err != nil {
			s.logger.Warn().Err(err).Str("action", action).Msg("failed to record activity")
		}
	}()
}

func actorFrom(ctx context.Context) uuid.UUID {
	actor, _ := auth.ActorIDFromContext(ctx)
	return actor
}
