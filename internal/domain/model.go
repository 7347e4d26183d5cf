package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Parameter is a single named value inside an object's local list or the
// model's global list. Name is unique within its owning list; uniqueness is
// enforced by the mutation logic, not by the schema.
type Parameter struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// ModelObject is one parametric object in a model. ID is unique within a
// model; identity across versions is by convention only.
type ModelObject struct {
	ID          string      `json:"id"`
	Parameters  []Parameter `json:"parameters"`
	Constraints []any       `json:"constraints,omitempty"`
}

// Relationship links two object ids. The link payload is opaque.
type Relationship struct {
	SourceID string `json:"sourceId"`
	TargetID string `json:"targetId"`
	Type     string `json:"type,omitempty"`
}

// OptimizationType names the objective handed to the completion collaborator.
type OptimizationType string

const (
	OptimizationPerformance OptimizationType = "performance"
	OptimizationCost        OptimizationType = "cost"
	OptimizationEnergy      OptimizationType = "energy"
	OptimizationStructural  OptimizationType = "structural"
	OptimizationAesthetic   OptimizationType = "aesthetic"
)

// ValidOptimizationType reports whether t is one of the supported objectives.
func ValidOptimizationType(t OptimizationType) bool {
	switch t {
	case OptimizationPerformance, OptimizationCost, OptimizationEnergy,
		OptimizationStructural, OptimizationAesthetic:
		return true
	}
	return false
}

// Metadata keys stamped by mutations and branches.
const (
	MetaLastParameterUpdate = "lastParameterUpdate"
	MetaUpdatedBy           = "updatedBy"
	MetaOptimizationResult  = "optimizationResult"
	MetaAIOptimized         = "aiOptimized"
	MetaOptimizationType    = "optimizationType"
	MetaParentVersion       = "parentVersion"
	MetaBranchReason        = "branchReason"
)

// ParametricModel is a versioned snapshot of a parametric design. A version
// is a standalone persisted row; history is a singly-linked chain through
// ParentID that is never rewritten after creation. Version strictly increases
// along one parent chain and is not globally unique. Revision counts in-place
// patches on this row and backs optimistic concurrency; it never affects
// Version.
type ParametricModel struct {
	ID               uuid.UUID      `json:"id"`
	ProjectID        uuid.UUID      `json:"project_id"`
	OwnerID          uuid.UUID      `json:"owner_id"`
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	Version          int64          `json:"version"`
	Revision         int64          `json:"revision"`
	ParentID         *uuid.UUID     `json:"parent_id,omitempty"`
	Objects          []ModelObject  `json:"objects"`
	GlobalParameters []Parameter    `json:"global_parameters"`
	Relationships    []Relationship `json:"relationships"`
	Metadata         map[string]any `json:"metadata"`
	IsActive         bool           `json:"is_active"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// NewParametricModel creates a first version: version 1, no parent.
func NewParametricModel(projectID, ownerID uuid.UUID, name, description string, objects []ModelObject, globalParameters []Parameter, relationships []Relationship, metadata map[string]any) ParametricModel {
	now := time.Now()
	return ParametricModel{
		ID:               uuid.New(),
		ProjectID:        projectID,
		OwnerID:          ownerID,
		Name:             name,
		Description:      description,
		Version:          1,
		Revision:         0,
		Objects:          copyObjects(objects),
		GlobalParameters: copyParameters(globalParameters),
		Relationships:    copyRelationships(relationships),
		Metadata:         copyMetadata(metadata),
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ModelUpdate carries the optional fields of an in-place update. Nil fields
// are left untouched.
type ModelUpdate struct {
	Name             *string
	Description      *string
	Objects          []ModelObject
	GlobalParameters []Parameter
	Relationships    []Relationship
	Metadata         map[string]any
	ExpectedRevision *int64
}

// Apply returns a copy of the model with the update folded in. Version is
// unchanged; Revision is bumped by the repository on write.
func (m ParametricModel) Apply(update ModelUpdate) ParametricModel {
	next := m.clone()
	if update.Name != nil {
		next.Name = *update.Name
	}
	if update.Description != nil {
		next.Description = *update.Description
	}
	if update.Objects != nil {
		next.Objects = copyObjects(update.Objects)
	}
	if update.GlobalParameters != nil {
		next.GlobalParameters = copyParameters(update.GlobalParameters)
	}
	if update.Relationships != nil {
		next.Relationships = copyRelationships(update.Relationships)
	}
	if update.Metadata != nil {
		merged := copyMetadata(next.Metadata)
		for k, v := range update.Metadata {
			merged[k] = v
		}
		next.Metadata = merged
	}
	next.UpdatedAt = time.Now()
	return next
}

// SetParameter overwrites the value of exactly one named parameter and stamps
// the mutation metadata. An empty objectID targets the global list. The
// receiver is never mutated; on failure no copy is produced.
func (m ParametricModel) SetParameter(objectID, name string, value any, actor uuid.UUID, now time.Time) (ParametricModel, error) {
	next := m.clone()

	if objectID == "" {
		idx := findParameter(next.GlobalParameters, name)
		if idx < 0 {
			return ParametricModel{}, NotFoundError("parameter", fmt.Sprintf("global parameter %q not found", name))
		}
		next.GlobalParameters[idx].Value = value
	} else {
		objIdx := findObject(next.Objects, objectID)
		if objIdx < 0 {
			return ParametricModel{}, NotFoundError("object", fmt.Sprintf("object %q not found", objectID))
		}
		idx := findParameter(next.Objects[objIdx].Parameters, name)
		if idx < 0 {
			return ParametricModel{}, NotFoundError("parameter", fmt.Sprintf("parameter %q not found on object %q", name, objectID))
		}
		next.Objects[objIdx].Parameters[idx].Value = value
	}

	next.Metadata[MetaLastParameterUpdate] = now.UTC().Format(time.RFC3339)
	next.Metadata[MetaUpdatedBy] = actor.String()
	next.UpdatedAt = now
	return next, nil
}

// NewBranch derives a new version row from a parent: fresh id, version
// parent+1, parent pointer set, contents copied verbatim. The parent value is
// left untouched. Extra metadata from the transform is merged on top.
func NewBranch(parent ParametricModel, extraMetadata map[string]any) ParametricModel {
	now := time.Now()
	parentID := parent.ID

	branch := parent.clone()
	branch.ID = uuid.New()
	branch.Version = parent.Version + 1
	branch.Revision = 0
	branch.ParentID = &parentID
	branch.CreatedAt = now
	branch.UpdatedAt = now
	for k, v := range extraMetadata {
		branch.Metadata[k] = v
	}
	return branch
}

// ValidateParameterNames rejects duplicate names within the global list or
// within any single object's list.
func (m ParametricModel) ValidateParameterNames() error {
	if name, ok := duplicateName(m.GlobalParameters); ok {
		return ValidationError(fmt.Sprintf("duplicate global parameter %q", name))
	}
	for _, obj := range m.Objects {
		if name, ok := duplicateName(obj.Parameters); ok {
			return ValidationError(fmt.Sprintf("duplicate parameter %q on object %q", name, obj.ID))
		}
	}
	return nil
}

// ValidateRelationships rejects relationships that reference object ids
// absent from the model.
func (m ParametricModel) ValidateRelationships() error {
	known := make(map[string]struct{}, len(m.Objects))
	for _, obj := range m.Objects {
		known[obj.ID] = struct{}{}
	}
	for _, rel := range m.Relationships {
		if _, ok := known[rel.SourceID]; !ok {
			return ValidationError(fmt.Sprintf("relationship references unknown object %q", rel.SourceID))
		}
		if _, ok := known[rel.TargetID]; !ok {
			return ValidationError(fmt.Sprintf("relationship references unknown object %q", rel.TargetID))
		}
	}
	return nil
}

// Validate runs the structural checks applied on create and update.
func (m ParametricModel) Validate() error {
	if m.Name == "" {
		return ValidationError("model name is required")
	}
	seen := make(map[string]struct{}, len(m.Objects))
	for _, obj := range m.Objects {
		if obj.ID == "" {
			return ValidationError("object id is required")
		}
		if _, dup := seen[obj.ID]; dup {
			return ValidationError(fmt.Sprintf("duplicate object id %q", obj.ID))
		}
		seen[obj.ID] = struct{}{}
	}
	if err := m.ValidateParameterNames(); err != nil {
		return err
	}
	return m.ValidateRelationships()
}

// ObjectsJSON returns the objects as JSONB for database storage.
func (m ParametricModel) ObjectsJSON() (json.RawMessage, error) {
	if m.Objects == nil {
		return json.Marshal([]ModelObject{})
	}
	return json.Marshal(m.Objects)
}

// GlobalParametersJSON returns the global parameters as JSONB.
func (m ParametricModel) GlobalParametersJSON() (json.RawMessage, error) {
	if m.GlobalParameters == nil {
		return json.Marshal([]Parameter{})
	}
	return json.Marshal(m.GlobalParameters)
}

// RelationshipsJSON returns the relationships as JSONB.
func (m ParametricModel) RelationshipsJSON() (json.RawMessage, error) {
	if m.Relationships == nil {
		return json.Marshal([]Relationship{})
	}
	return json.Marshal(m.Relationships)
}

// MetadataJSON returns the metadata map as JSONB.
func (m ParametricModel) MetadataJSON() (json.RawMessage, error) {
	if m.Metadata == nil {
		return json.Marshal(map[string]any{})
	}
	return json.Marshal(m.Metadata)
}

// FromJSONBObjects decodes the stored objects column.
func FromJSONBObjects(raw json.RawMessage) ([]ModelObject, error) {
	var objects []ModelObject
	err := json.Unmarshal(raw, &objects)
	return objects, err
}

// FromJSONBParameters decodes the stored global parameters column.
func FromJSONBParameters(raw json.RawMessage) ([]Parameter, error) {
	var params []Parameter
	err := json.Unmarshal(raw, &params)
	return params, err
}

// FromJSONBRelationships decodes the stored relationships column.
func FromJSONBRelationships(raw json.RawMessage) ([]Relationship, error) {
	var rels []Relationship
	err := json.Unmarshal(raw, &rels)
	return rels, err
}

// FromJSONBMetadata decodes the stored metadata column.
func FromJSONBMetadata(raw json.RawMessage) (map[string]any, error) {
	var metadata map[string]any
	err := json.Unmarshal(raw, &metadata)
	return metadata, err
}

func (m ParametricModel) clone() ParametricModel {
	next := m
	next.Objects = copyObjects(m.Objects)
	next.GlobalParameters = copyParameters(m.GlobalParameters)
	next.Relationships = copyRelationships(m.Relationships)
	next.Metadata = copyMetadata(m.Metadata)
	return next
}

func findObject(objects []ModelObject, id string) int {
	for i, obj := range objects {
		if obj.ID == id {
			return i
		}
	}
	return -1
}

func findParameter(params []Parameter, name string) int {
	for i, p := range params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func duplicateName(params []Parameter) (string, bool) {
	seen := make(map[string]struct{}, len(params))
	for _, p := range params {
		if _, dup := seen[p.Name]; dup {
			return p.Name, true
		}
		seen[p.Name] = struct{}{}
	}
	return "", false
}

func copyObjects(objects []ModelObject) []ModelObject {
	if objects == nil {
		return nil
	}
	out := make([]ModelObject, len(objects))
	for i, obj := range objects {
		out[i] = ModelObject{
			ID:         obj.ID,
			Parameters: copyParameters(obj.Parameters),
		}
		if obj.Constraints != nil {
			out[i].Constraints = make([]any, len(obj.Constraints))
			copy(out[i].Constraints, obj.Constraints)
		}
	}
	return out
}

func copyParameters(params []Parameter) []Parameter {
	if params == nil {
		return nil
	}
	out := make([]Parameter, len(params))
	copy(out, params)
	return out
}

func copyRelationships(rels []Relationship) []Relationship {
	if rels == nil {
		return nil
	}
	out := make([]Relationship, len(rels))
	copy(out, rels)
	return out
}

func copyMetadata(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
