package models

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rpattn/parametric/internal/auth"
	"github.com/rpattn/parametric/internal/domain"
	"github.com/rpattn/parametric/internal/optimization"
	"github.com/rpattn/parametric/internal/sharing"
	"github.com/rpattn/parametric/internal/versioning"
)

type fakeModelRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]domain.ParametricModel
}

func newFakeModelRepository() *fakeModelRepository {
	return &fakeModelRepository{rows: make(map[uuid.UUID]domain.ParametricModel)}
}

func (r *fakeModelRepository) Create(_ context.Context, model domain.ParametricModel) (domain.ParametricModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[model.ID] = model
	return model, nil
}

func (r *fakeModelRepository) GetByID(_ context.Context, id uuid.UUID) (domain.ParametricModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	model, ok := r.rows[id]
	if !ok {
		return domain.ParametricModel{}, domain.NotFoundError("model", fmt.Sprintf("model %s not found", id))
	}
	return model, nil
}

func (r *fakeModelRepository) ListByProject(_ context.Context, projectID uuid.UUID, _, _ int) ([]domain.ParametricModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.ParametricModel{}
	for _, model := range r.rows {
		if model.ProjectID == projectID {
			out = append(out, model)
		}
	}
	return out, nil
}

func (r *fakeModelRepository) ListLineage(_ context.Context, id uuid.UUID) ([]domain.ParametricModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return nil, domain.NotFoundError("model", fmt.Sprintf("model %s not found", id))
	}
	out := make([]domain.ParametricModel, 0, len(r.rows))
	for _, model := range r.rows {
		out = append(out, model)
	}
	return out, nil
}

func (r *fakeModelRepository) UpdateInPlace(_ context.Context, model domain.ParametricModel, expectedRevision *int64) (domain.ParametricModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.rows[model.ID]
	if !ok {
		return domain.ParametricModel{}, domain.NotFoundError("model", fmt.Sprintf("model %s not found", model.ID))
	}
	if expectedRevision != nil && current.Revision != *expectedRevision {
		return domain.ParametricModel{}, domain.ConflictError(fmt.Sprintf("model %s was modified concurrently", model.ID))
	}
	model.Revision = current.Revision + 1
	r.rows[model.ID] = model
	return model, nil
}

func (r *fakeModelRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return domain.NotFoundError("model", fmt.Sprintf("model %s not found", id))
	}
	delete(r.rows, id)
	return nil
}

type fakeGrantRepository struct {
	mu      sync.Mutex
	byToken map[string]domain.ShareGrant
}

func newFakeGrantRepository() *fakeGrantRepository {
	return &fakeGrantRepository{byToken: make(map[string]domain.ShareGrant)}
}

func (r *fakeGrantRepository) Create(_ context.Context, grant domain.ShareGrant) (domain.ShareGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byToken[grant.ShareToken] = grant
	return grant, nil
}

func (r *fakeGrantRepository) GetByToken(_ context.Context, token string) (domain.ShareGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	grant, ok := r.byToken[token]
	if !ok {
		return domain.ShareGrant{}, domain.NotFoundError("share_grant", "share token not found")
	}
	return grant, nil
}

func (r *fakeGrantRepository) ListByModel(_ context.Context, modelID uuid.UUID) ([]domain.ShareGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ShareGrant
	for _, grant := range r.byToken {
		if grant.ModelID == modelID {
			out = append(out, grant)
		}
	}
	return out, nil
}

func (r *fakeGrantRepository) DeleteByModel(_ context.Context, modelID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, grant := range r.byToken {
		if grant.ModelID == modelID {
			delete(r.byToken, token)
		}
	}
	return nil
}

type fakeActivityRepository struct {
	mu      sync.Mutex
	entries []domain.ActivityEntry
}

func (r *fakeActivityRepository) Record(_ context.Context, entry domain.ActivityEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

type testEnv struct {
	service  *Service
	models   *fakeModelRepository
	grants   *fakeGrantRepository
	activity *fakeActivityRepository
	provider *optimization.MockProvider
	project  uuid.UUID
	actor    uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	modelRepo := newFakeModelRepository()
	grantRepo := newFakeGrantRepository()
	activityRepo := &fakeActivityRepository{}
	provider := optimization.NewMockProvider()

	manager := versioning.NewManager(modelRepo)
	service := NewService(
		modelRepo,
		activityRepo,
		manager,
		sharing.NewService(grantRepo),
		optimization.NewOrchestrator(provider, manager, zerolog.Nop()),
		zerolog.Nop(),
	)

	return &testEnv{
		service:  service,
		models:   modelRepo,
		grants:   grantRepo,
		activity: activityRepo,
		provider: provider,
		project:  uuid.New(),
		actor:    uuid.New(),
	}
}

func (e *testEnv) ctx() context.Context {
	return auth.ContextWithScope(context.Background(), e.project, e.actor)
}

func (e *testEnv) createTower(t *testing.T) domain.ParametricModel {
	t.Helper()
	created, err := e.service.Create(e.ctx(), CreateRequest{
		ProjectID: e.project,
		Name:      "Tower",
		Objects: []domain.ModelObject{
			{ID: "o1", Parameters: []domain.Parameter{{Name: "height", Value: float64(10)}}},
		},
		GlobalParameters: []domain.Parameter{{Name: "floors", Value: float64(5)}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return created
}

func TestCreateFirstVersion(t *testing.T) {
	env := newTestEnv(t)
	created := env.createTower(t)

	if created.Version != 1 {
		t.Fatalf("first version: got %d, want 1", created.Version)
	}
	if created.ParentID != nil {
		t.Fatalf("first version must have no parent, got %v", created.ParentID)
	}
	if created.OwnerID != env.actor {
		t.Fatalf("owner: got %s, want %s", created.OwnerID, env.actor)
	}
}

func TestCreateRejectsDanglingRelationship(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.service.Create(env.ctx(), CreateRequest{
		ProjectID:     env.project,
		Name:          "Bridge",
		Objects:       []domain.ModelObject{{ID: "deck"}},
		Relationships: []domain.Relationship{{SourceID: "deck", TargetID: "pylon"}},
	})
	if !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetOutsideProjectScopeIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	created := env.createTower(t)

	foreign := auth.ContextWithScope(context.Background(), uuid.New(), env.actor)
	_, err := env.service.Get(foreign, created.ID)
	if !domain.IsKind(err, domain.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestSetParameterReadAfterWrite(t *testing.T) {
	env := newTestEnv(t)
	created := env.createTower(t)

	updated, err := env.service.SetParameter(env.ctx(), created.ID, "", "floors", float64(8), nil)
	if err != nil {
		t.Fatalf("set global parameter: %v", err)
	}
	if updated.Version != 1 {
		t.Fatalf("in-place patch must not move version: got %d", updated.Version)
	}

	fetched, err := env.service.Get(env.ctx(), created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.GlobalParameters[0].Value != float64(8) {
		t.Fatalf("read after write: got %v, want 8", fetched.GlobalParameters[0].Value)
	}
	if fetched.Metadata[domain.MetaUpdatedBy] != env.actor.String() {
		t.Fatalf("updatedBy stamp: got %v", fetched.Metadata[domain.MetaUpdatedBy])
	}
	if _, ok := fetched.Metadata[domain.MetaLastParameterUpdate]; !ok {
		t.Fatal("lastParameterUpdate stamp missing")
	}
}

func TestSetParameterUnknownNameLeavesModelUnchanged(t *testing.T) {
	env := newTestEnv(t)
	created := env.createTower(t)

	_, err := env.service.SetParameter(env.ctx(), created.ID, "o1", "width", float64(3), nil)
	if !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}

	fetched, err := env.service.Get(env.ctx(), created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(fetched, created) {
		t.Fatal("failed setParameter must not mutate the row")
	}
}

func TestSetParameterUnknownObject(t *testing.T) {
	env := newTestEnv(t)
	created := env.createTower(t)

	_, err := env.service.SetParameter(env.ctx(), created.ID, "o9", "height", float64(3), nil)
	if !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected not_found for missing object, got %v", err)
	}
}

func TestUpdateRevisionConflict(t *testing.T) {
	env := newTestEnv(t)
	created := env.createTower(t)

	name := "Tower Mk2"
	if _, err := env.service.Update(env.ctx(), created.ID, domain.ModelUpdate{Name: &name}); err != nil {
		t.Fatalf("first update: %v", err)
	}

	stale := created.Revision
	other := "Tower Mk3"
	_, err := env.service.Update(env.ctx(), created.ID, domain.ModelUpdate{Name: &other, ExpectedRevision: &stale})
	if !domain.IsKind(err, domain.KindConflict) {
		t.Fatalf("expected conflict on stale revision, got %v", err)
	}
}

// TestTowerScenario walks the end-to-end flow: create, direct edit, optimize.
func TestTowerScenario(t *testing.T) {
	env := newTestEnv(t)
	env.provider.WithResponse("reduce window area by 10%")

	created := env.createTower(t)
	if created.Version != 1 {
		t.Fatalf("created version: got %d, want 1", created.Version)
	}

	edited, err := env.service.SetParameter(env.ctx(), created.ID, "o1", "height", float64(12), nil)
	if err != nil {
		t.Fatalf("set height: %v", err)
	}
	if edited.Objects[0].Parameters[0].Value != float64(12) {
		t.Fatalf("height: got %v, want 12", edited.Objects[0].Parameters[0].Value)
	}
	if edited.Version != 1 {
		t.Fatalf("version after direct edit: got %d, want 1", edited.Version)
	}

	branch, err := env.service.Optimize(env.ctx(), created.ID, domain.OptimizationEnergy, nil)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if branch.Version != 2 {
		t.Fatalf("branch version: got %d, want 2", branch.Version)
	}
	if branch.ParentID == nil || *branch.ParentID != created.ID {
		t.Fatalf("branch parent: got %v, want %s", branch.ParentID, created.ID)
	}
	if branch.Metadata[domain.MetaOptimizationResult] != "reduce window area by 10%" {
		t.Fatalf("opinion: got %v", branch.Metadata[domain.MetaOptimizationResult])
	}

	original, err := env.service.Get(env.ctx(), created.ID)
	if err != nil {
		t.Fatalf("get original: %v", err)
	}
	if original.Objects[0].Parameters[0].Value != float64(12) {
		t.Fatalf("original height after branch: got %v, want 12", original.Objects[0].Parameters[0].Value)
	}
	if original.Version != 1 {
		t.Fatalf("original version after branch: got %d, want 1", original.Version)
	}
}

func TestOptimizeFailureLeavesOriginalUntouched(t *testing.T) {
	env := newTestEnv(t)
	env.provider.WithError(errors.New("completion unavailable"))
	created := env.createTower(t)

	_, err := env.service.Optimize(env.ctx(), created.ID, domain.OptimizationCost, nil)
	if !domain.IsKind(err, domain.KindOptimizationFailed) {
		t.Fatalf("expected optimization_failed, got %v", err)
	}

	fetched, err := env.service.Get(env.ctx(), created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(fetched, created) {
		t.Fatal("failed optimization must leave the model byte-for-byte unchanged")
	}
	lineage, err := env.service.Lineage(env.ctx(), created.ID)
	if err != nil {
		t.Fatalf("lineage: %v", err)
	}
	if len(lineage) != 1 {
		t.Fatalf("failed optimization must not branch: %d versions", len(lineage))
	}
}

func TestLineageOrdersRootFirst(t *testing.T) {
	env := newTestEnv(t)
	created := env.createTower(t)

	branch, err := env.service.Optimize(env.ctx(), created.ID, domain.OptimizationEnergy, nil)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	grandchild, err := env.service.Optimize(env.ctx(), branch.ID, domain.OptimizationCost, nil)
	if err != nil {
		t.Fatalf("optimize again: %v", err)
	}

	lineage, err := env.service.Lineage(env.ctx(), branch.ID)
	if err != nil {
		t.Fatalf("lineage: %v", err)
	}
	if len(lineage) != 3 {
		t.Fatalf("lineage length: got %d, want 3", len(lineage))
	}
	if lineage[0].ID != created.ID || lineage[1].ID != branch.ID || lineage[2].ID != grandchild.ID {
		t.Fatalf("lineage order wrong: %s, %s, %s", lineage[0].ID, lineage[1].ID, lineage[2].ID)
	}
}

func TestDiffShowsParameterChange(t *testing.T) {
	env := newTestEnv(t)
	created := env.createTower(t)

	branch, err := env.service.Optimize(env.ctx(), created.ID, domain.OptimizationEnergy, nil)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if _, err := env.service.SetParameter(env.ctx(), branch.ID, "", "floors", float64(7), nil); err != nil {
		t.Fatalf("edit branch: %v", err)
	}

	diff, err := env.service.Diff(env.ctx(), created.ID, branch.ID)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if !strings.Contains(diff, "-  floors: 5") || !strings.Contains(diff, "+  floors: 7") {
		t.Fatalf("diff missing parameter change:\n%s", diff)
	}
}

func TestShareAndResolve(t *testing.T) {
	env := newTestEnv(t)
	created := env.createTower(t)

	grant, err := env.service.Share(env.ctx(), created.ID, []domain.Permission{domain.PermissionView, domain.PermissionComment}, nil)
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	if grant.ModelID != created.ID {
		t.Fatalf("grant model: got %s, want %s", grant.ModelID, created.ID)
	}

	// Token possession grants access without any project scope.
	resolved, err := env.service.ResolveShared(context.Background(), grant.ShareToken)
	if err != nil {
		t.Fatalf("resolve shared: %v", err)
	}
	if resolved.Model.ID != created.ID {
		t.Fatalf("resolved model: got %s", resolved.Model.ID)
	}
	if len(resolved.Permissions) != 2 {
		t.Fatalf("resolved permissions: got %v", resolved.Permissions)
	}
}

func TestDeleteRevokesGrantsAndKeepsLineage(t *testing.T) {
	env := newTestEnv(t)
	created := env.createTower(t)

	branch, err := env.service.Optimize(env.ctx(), created.ID, domain.OptimizationEnergy, nil)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	grant, err := env.service.Share(env.ctx(), created.ID, nil, nil)
	if err != nil {
		t.Fatalf("share: %v", err)
	}

	if err := env.service.Delete(env.ctx(), created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := env.service.Get(env.ctx(), created.ID); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("deleted model should be gone, got %v", err)
	}
	if _, err := env.service.ResolveShared(context.Background(), grant.ShareToken); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("grants must be revoked with the model, got %v", err)
	}

	// The child survives with its parent pointer intact.
	orphan, err := env.service.Get(env.ctx(), branch.ID)
	if err != nil {
		t.Fatalf("get child after parent delete: %v", err)
	}
	if orphan.ParentID == nil || *orphan.ParentID != created.ID {
		t.Fatal("child parent pointer must never be rewritten")
	}
}

func TestActivityEntriesAreRecorded(t *testing.T) {
	env := newTestEnv(t)
	created := env.createTower(t)
	if _, err := env.service.SetParameter(env.ctx(), created.ID, "", "floors", float64(6), nil); err != nil {
		t.Fatalf("set parameter: %v", err)
	}

	// Activity writes are asynchronous; give them a moment to land.
	deadline := time.Now().Add(2 * time.Second)
	for {
		env.activity.mu.Lock()
		count := len(env.activity.entries)
		env.activity.mu.Unlock()
		if count >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 activity entries, got %d", count)
		}
		time.Sleep(10 * time.Millisecond)
	}

	env.activity.mu.Lock()
	defer env.activity.mu.Unlock()
	actions := make(map[string]bool)
	for _, entry := range env.activity.entries {
		actions[entry.Action] = true
		if entry.ActorID != env.actor {
			t.Fatalf("activity actor: got %s, want %s", entry.ActorID, env.actor)
		}
	}
	if !actions["model.created"] || !actions["model.parameter_set"] {
		t.Fatalf("missing activity actions: %v", actions)
	}
}
