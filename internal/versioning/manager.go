// Package versioning decides and executes in-place patch versus branching
// mutation for parametric models, and materializes version lineage.
package versioning

import (
	"context"

	"github.com/rpattn/parametric/internal/domain"
	"github.com/rpattn/parametric/internal/repository"
)

// MutationFunc shapes an in-place edit. It receives the current row and
// returns the content to persist under the same id.
type MutationFunc func(domain.ParametricModel) (domain.ParametricModel, error)

// TransformFunc shapes the content of a new branch. It receives the
// already-derived branch (fresh id, version parent+1, parent pointer set) and
// returns the content to persist; identity fields are pinned afterwards.
type TransformFunc func(domain.ParametricModel) (domain.ParametricModel, error)

// Manager executes the two mutation disciplines. Direct edits patch the
// existing row and never move Version; optimization derives a new row and
// never touches the parent. There is no merge: branches stay independent.
type Manager struct {
	repo repository.ModelRepository
}

// NewManager creates a version manager over the model repository.
func NewManager(repo repository.ModelRepository) *Manager {
	return &Manager{repo: repo}
}

// PatchInPlace applies mutate and persists the result under the same row id.
// Version is unchanged; the repository bumps Revision, guarded by a
// compare-and-swap when expectedRevision is non-nil. A mutation failure
// leaves the persisted row untouched.
func (m *Manager) PatchInPlace(ctx context.Context, model domain.ParametricModel, mutate MutationFunc, expectedRevision *int64) (domain.ParametricModel, error) {
	next := model
	if mutate != nil {
		mutated, err := mutate(model)
		if err != nil {
			return domain.ParametricModel{}, err
		}
		next = mutated
	}

	// A patch can never move the row to another id or version.
	next.ID = model.ID
	next.Version = model.Version
	next.ParentID = model.ParentID

	return m.repo.UpdateInPlace(ctx, next, expectedRevision)
}

// Branch derives a new row from parent: fresh id, version parent+1, parent
// pointer set, contents transformed from a verbatim copy. The parent row is
// never written, so a persistence failure leaves it authoritative.
func (m *Manager) Branch(ctx context.Context, parent domain.ParametricModel, transform TransformFunc, reason string) (domain.ParametricModel, error) {
	extra := map[string]any{}
	if reason != "" {
		extra[domain.MetaBranchReason] = reason
	}
	branch := domain.NewBranch(parent, extra)

	if transform != nil {
		transformed, err := transform(branch)
		if err != nil {
			return domain.ParametricModel{}, err
		}
		// Transforms shape content only; lineage identity is pinned here.
		transformed.ID = branch.ID
		transformed.Version = branch.Version
		transformed.Revision = branch.Revision
		transformed.ParentID = branch.ParentID
		transformed.CreatedAt = branch.CreatedAt
		transformed.UpdatedAt = branch.UpdatedAt
		branch = transformed
	}

	return m.repo.Create(ctx, branch)
}
