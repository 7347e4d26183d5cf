package domain

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
)

func towerModel() ParametricModel {
	return NewParametricModel(uuid.New(), uuid.New(), "Tower", "a test tower",
		[]ModelObject{
			{ID: "o1", Parameters: []Parameter{
				{Name: "height", Value: float64(10), Unit: "m"},
				{Name: "width", Value: float64(4), Unit: "m"},
			}},
		},
		[]Parameter{{Name: "floors", Value: float64(5)}},
		[]Relationship{},
		map[string]any{"source": "test"},
	)
}

func TestNewParametricModelIsFirstVersion(t *testing.T) {
	model := towerModel()
	if model.Version != 1 {
		t.Fatalf("version: got %d, want 1", model.Version)
	}
	if model.ParentID != nil {
		t.Fatalf("parent: got %v, want nil", model.ParentID)
	}
	if model.Revision != 0 {
		t.Fatalf("revision: got %d, want 0", model.Revision)
	}
	if !model.IsActive {
		t.Fatal("new model should be active")
	}
}

func TestSetParameterOnObject(t *testing.T) {
	model := towerModel()
	actor := uuid.New()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	next, err := model.SetParameter("o1", "height", float64(12), actor, now)
	if err != nil {
		t.Fatalf("set parameter: %v", err)
	}

	if next.Objects[0].Parameters[0].Value != float64(12) {
		t.Fatalf("height: got %v, want 12", next.Objects[0].Parameters[0].Value)
	}
	// Exactly one parameter moves.
	if next.Objects[0].Parameters[1].Value != float64(4) {
		t.Fatalf("width must be untouched: got %v", next.Objects[0].Parameters[1].Value)
	}
	if next.GlobalParameters[0].Value != float64(5) {
		t.Fatalf("globals must be untouched: got %v", next.GlobalParameters[0].Value)
	}

	if next.Metadata[MetaUpdatedBy] != actor.String() {
		t.Fatalf("updatedBy: got %v", next.Metadata[MetaUpdatedBy])
	}
	if next.Metadata[MetaLastParameterUpdate] != "2026-04-01T09:00:00Z" {
		t.Fatalf("lastParameterUpdate: got %v", next.Metadata[MetaLastParameterUpdate])
	}

	// The receiver is a value; the original stays as created.
	if model.Objects[0].Parameters[0].Value != float64(10) {
		t.Fatalf("receiver mutated: height %v", model.Objects[0].Parameters[0].Value)
	}
	if _, stamped := model.Metadata[MetaUpdatedBy]; stamped {
		t.Fatal("receiver metadata mutated")
	}
}

func TestSetParameterGlobal(t *testing.T) {
	model := towerModel()
	next, err := model.SetParameter("", "floors", float64(7), uuid.New(), time.Now())
	if err != nil {
		t.Fatalf("set global parameter: %v", err)
	}
	if next.GlobalParameters[0].Value != float64(7) {
		t.Fatalf("floors: got %v, want 7", next.GlobalParameters[0].Value)
	}
}

func TestSetParameterFailures(t *testing.T) {
	model := towerModel()

	if _, err := model.SetParameter("o9", "height", float64(1), uuid.New(), time.Now()); !IsKind(err, KindNotFound) {
		t.Fatalf("missing object: got %v", err)
	}
	if _, err := model.SetParameter("o1", "depth", float64(1), uuid.New(), time.Now()); !IsKind(err, KindNotFound) {
		t.Fatalf("missing object parameter: got %v", err)
	}
	if _, err := model.SetParameter("", "volume", float64(1), uuid.New(), time.Now()); !IsKind(err, KindNotFound) {
		t.Fatalf("missing global parameter: got %v", err)
	}
}

func TestNewBranchCopiesContentVerbatim(t *testing.T) {
	parent := towerModel()
	branch := NewBranch(parent, map[string]any{MetaAIOptimized: true})

	if branch.ID == parent.ID {
		t.Fatal("branch must get a fresh id")
	}
	if branch.Version != parent.Version+1 {
		t.Fatalf("branch version: got %d, want %d", branch.Version, parent.Version+1)
	}
	if branch.ParentID == nil || *branch.ParentID != parent.ID {
		t.Fatalf("branch parent: got %v", branch.ParentID)
	}
	if branch.Revision != 0 {
		t.Fatalf("branch revision resets: got %d", branch.Revision)
	}
	if !reflect.DeepEqual(branch.Objects, parent.Objects) {
		t.Fatal("branch objects must copy verbatim")
	}
	if !reflect.DeepEqual(branch.GlobalParameters, parent.GlobalParameters) {
		t.Fatal("branch globals must copy verbatim")
	}
	if branch.Metadata[MetaAIOptimized] != true {
		t.Fatal("extra metadata not merged")
	}
	if _, leaked := parent.Metadata[MetaAIOptimized]; leaked {
		t.Fatal("branch metadata leaked into parent")
	}

	// Deep copy: editing the branch never reaches the parent.
	branch.Objects[0].Parameters[0].Value = float64(99)
	if parent.Objects[0].Parameters[0].Value != float64(10) {
		t.Fatal("branch shares parameter storage with parent")
	}
}

func TestApplyMergesPartialUpdate(t *testing.T) {
	model := towerModel()
	name := "Tower Mk2"
	next := model.Apply(ModelUpdate{
		Name:     &name,
		Metadata: map[string]any{"reviewed": true},
	})

	if next.Name != "Tower Mk2" {
		t.Fatalf("name: got %q", next.Name)
	}
	if next.Description != model.Description {
		t.Fatal("nil fields must stay untouched")
	}
	if !reflect.DeepEqual(next.Objects, model.Objects) {
		t.Fatal("objects must stay untouched")
	}
	if next.Metadata["reviewed"] != true || next.Metadata["source"] != "test" {
		t.Fatalf("metadata merge wrong: %v", next.Metadata)
	}
}

func TestValidateDuplicateParameterName(t *testing.T) {
	model := towerModel()
	model.GlobalParameters = append(model.GlobalParameters, Parameter{Name: "floors", Value: float64(6)})
	if err := model.Validate(); !IsKind(err, KindValidation) {
		t.Fatalf("duplicate global name: got %v", err)
	}

	model = towerModel()
	model.Objects[0].Parameters = append(model.Objects[0].Parameters, Parameter{Name: "height", Value: float64(1)})
	if err := model.Validate(); !IsKind(err, KindValidation) {
		t.Fatalf("duplicate object parameter name: got %v", err)
	}
}

func TestValidateRelationshipsRequireKnownObjects(t *testing.T) {
	model := towerModel()
	model.Relationships = []Relationship{{SourceID: "o1", TargetID: "ghost"}}
	if err := model.Validate(); !IsKind(err, KindValidation) {
		t.Fatalf("dangling relationship: got %v", err)
	}

	model.Objects = append(model.Objects, ModelObject{ID: "ghost"})
	if err := model.Validate(); err != nil {
		t.Fatalf("valid relationship rejected: %v", err)
	}
}

func TestValidateDuplicateObjectID(t *testing.T) {
	model := towerModel()
	model.Objects = append(model.Objects, ModelObject{ID: "o1"})
	if err := model.Validate(); !IsKind(err, KindValidation) {
		t.Fatalf("duplicate object id: got %v", err)
	}
}

func TestValidOptimizationType(t *testing.T) {
	for _, valid := range []OptimizationType{
		OptimizationPerformance, OptimizationCost, OptimizationEnergy,
		OptimizationStructural, OptimizationAesthetic,
	} {
		if !ValidOptimizationType(valid) {
			t.Fatalf("%q should be valid", valid)
		}
	}
	if ValidOptimizationType("speed") {
		t.Fatal("unknown type accepted")
	}
}
