package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/parametric/internal/domain"
)

const modelColumns = `id, project_id, owner_id, name, description, version, revision,
	parent_id, objects, global_parameters, relationships, metadata, is_active,
	created_at, updated_at`

// modelRepository implements ModelRepository on a pgx pool.
type modelRepository struct {
	pool *pgxpool.Pool
}

// NewModelRepository creates a new parametric model repository.
func NewModelRepository(pool *pgxpool.Pool) ModelRepository {
	return &modelRepository{pool: pool}
}

// Create inserts a new model row (first version or branch alike).
func (r *modelRepository) Create(ctx context.Context, model domain.ParametricModel) (domain.ParametricModel, error) {
	objectsJSON, globalsJSON, relsJSON, metadataJSON, err := marshalModelColumns(model)
	if err != nil {
		return domain.ParametricModel{}, err
	}

	var parent pgtype.UUID
	if model.ParentID != nil {
		parent = pgtype.UUID{Valid: true}
		copy(parent.Bytes[:], model.ParentID[:])
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO parametric_models (
			id, project_id, owner_id, name, description, version, revision,
			parent_id, objects, global_parameters, relationships, metadata, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+modelColumns,
		model.ID, model.ProjectID, model.OwnerID, model.Name, model.Description,
		model.Version, model.Revision, parent, objectsJSON, globalsJSON, relsJSON,
		metadataJSON, model.IsActive,
	)

	created, err := scanModel(row)
	if err != nil {
		return domain.ParametricModel{}, domain.PersistenceError("failed to create model", err)
	}
	return created, nil
}

// GetByID retrieves one model row.
func (r *modelRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ParametricModel, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+modelColumns+` FROM parametric_models WHERE id = $1`, id)

	model, err := scanModel(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ParametricModel{}, domain.NotFoundError("model", fmt.Sprintf("model %s not found", id))
		}
		return domain.ParametricModel{}, fmt.Errorf("failed to get model: %w", err)
	}
	return model, nil
}

// ListByProject returns a project's models, newest first.
func (r *modelRepository) ListByProject(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]domain.ParametricModel, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+modelColumns+` FROM parametric_models
		 WHERE project_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, projectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	return collectModels(rows)
}

// ListLineage walks the parent chain both ways from id in one round trip.
func (r *modelRepository) ListLineage(ctx context.Context, id uuid.UUID) ([]domain.ParametricModel, error) {
	rows, err := r.pool.Query(ctx, `
		WITH RECURSIVE ancestors AS (
			SELECT `+modelColumns+` FROM parametric_models WHERE id = $1
			UNION ALL
			SELECT p.id, p.project_id, p.owner_id, p.name, p.description, p.version,
			       p.revision, p.parent_id, p.objects, p.global_parameters,
			       p.relationships, p.metadata, p.is_active, p.created_at, p.updated_at
			FROM parametric_models p
			JOIN ancestors a ON a.parent_id = p.id
		), descendants AS (
			SELECT `+modelColumns+` FROM parametric_models WHERE id = $1
			UNION ALL
			SELECT c.id, c.project_id, c.owner_id, c.name, c.description, c.version,
			       c.revision, c.parent_id, c.objects, c.global_parameters,
			       c.relationships, c.metadata, c.is_active, c.created_at, c.updated_at
			FROM parametric_models c
			JOIN descendants d ON c.parent_id = d.id
		)
		SELECT * FROM ancestors
		UNION
		SELECT * FROM descendants
		ORDER BY version ASC, created_at ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list lineage: %w", err)
	}
	defer rows.Close()

	models, err := collectModels(rows)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, domain.NotFoundError("model", fmt.Sprintf("model %s not found", id))
	}
	return models, nil
}

// UpdateInPlace persists the row under the same id. Version never changes
// here; revision increments, optionally guarded by a compare-and-swap.
func (r *modelRepository) UpdateInPlace(ctx context.Context, model domain.ParametricModel, expectedRevision *int64) (domain.ParametricModel, error) {
	objectsJSON, globalsJSON, relsJSON, metadataJSON, err := marshalModelColumns(model)
	if err != nil {
		return domain.ParametricModel{}, err
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE parametric_models SET
			name = $2, description = $3, objects = $4, global_parameters = $5,
			relationships = $6, metadata = $7, is_active = $8,
			revision = revision + 1, updated_at = now()
		WHERE id = $1 AND ($9::bigint IS NULL OR revision = $9)
		RETURNING `+modelColumns,
		model.ID, model.Name, model.Description, objectsJSON, globalsJSON,
		relsJSON, metadataJSON, model.IsActive, expectedRevision,
	)

	updated, err := scanModel(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.ParametricModel{}, domain.PersistenceError("failed to update model", err)
	}

	// No row matched: distinguish a missing row from a revision mismatch.
	var exists bool
	if checkErr := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM parametric_models WHERE id = $1)`, model.ID,
	).Scan(&exists); checkErr != nil {
		return domain.ParametricModel{}, domain.PersistenceError("failed to update model", checkErr)
	}
	if exists {
		return domain.ParametricModel{}, domain.ConflictError(
			fmt.Sprintf("model %s was modified concurrently", model.ID))
	}
	return domain.ParametricModel{}, domain.NotFoundError("model", fmt.Sprintf("model %s not found", model.ID))
}

// Delete removes one row; share grants cascade at the schema level.
func (r *modelRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM parametric_models WHERE id = $1`, id)
	if err != nil {
		return domain.PersistenceError("failed to delete model", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundError("model", fmt.Sprintf("model %s not found", id))
	}
	return nil
}

func marshalModelColumns(model domain.ParametricModel) (objects, globals, rels, metadata json.RawMessage, err error) {
	if objects, err = model.ObjectsJSON(); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal objects: %w", err)
	}
	if globals, err = model.GlobalParametersJSON(); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal global parameters: %w", err)
	}
	if rels, err = model.RelationshipsJSON(); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal relationships: %w", err)
	}
	if metadata, err = model.MetadataJSON(); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return objects, globals, rels, metadata, nil
}

func scanModel(row pgx.Row) (domain.ParametricModel, error) {
	var (
		model        domain.ParametricModel
		parent       pgtype.UUID
		objectsJSON  []byte
		globalsJSON  []byte
		relsJSON     []byte
		metadataJSON []byte
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := row.Scan(
		&model.ID, &model.ProjectID, &model.OwnerID, &model.Name, &model.Description,
		&model.Version, &model.Revision, &parent, &objectsJSON, &globalsJSON,
		&relsJSON, &metadataJSON, &model.IsActive, &createdAt, &updatedAt,
	)
	if err != nil {
		return domain.ParametricModel{}, err
	}

	if parent.Valid {
		parentID, convErr := uuid.FromBytes(parent.Bytes[:])
		if convErr != nil {
			return domain.ParametricModel{}, fmt.Errorf("invalid parent identifier: %w", convErr)
		}
		model.ParentID = &parentID
	}

	if model.Objects, err = domain.FromJSONBObjects(objectsJSON); err != nil {
		return domain.ParametricModel{}, fmt.Errorf("failed to unmarshal objects: %w", err)
	}
	if model.GlobalParameters, err = domain.FromJSONBParameters(globalsJSON); err != nil {
		return domain.ParametricModel{}, fmt.Errorf("failed to unmarshal global parameters: %w", err)
	}
	if model.Relationships, err = domain.FromJSONBRelationships(relsJSON); err != nil {
		return domain.ParametricModel{}, fmt.Errorf("failed to unmarshal relationships: %w", err)
	}
	if model.Metadata, err = domain.FromJSONBMetadata(metadataJSON); err != nil {
		return domain.ParametricModel{}, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	model.CreatedAt = createdAt
	model.UpdatedAt = updatedAt
	return model, nil
}

func collectModels(rows pgx.Rows) ([]domain.ParametricModel, error) {
	models := []domain.ParametricModel{}
	for rows.Next() {
		model, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model row: %w", err)
		}
		models = append(models, model)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read model rows: %w", err)
	}
	return models, nil
}
