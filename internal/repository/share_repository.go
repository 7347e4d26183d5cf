package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/parametric/internal/domain"
)

const grantColumns = `id, model_id, share_token, permissions, expires_at, created_by, created_at`

// shareGrantRepository implements ShareGrantRepository on a pgx pool.
type shareGrantRepository struct {
	pool *pgxpool.Pool
}

// NewShareGrantRepository creates a new share grant repository.
func NewShareGrantRepository(pool *pgxpool.Pool) ShareGrantRepository {
	return &shareGrantRepository{pool: pool}
}

func (r *shareGrantRepository) Create(ctx context.Context, grant domain.ShareGrant) (domain.ShareGrant, error) {
	perms := make([]string, len(grant.Permissions))
	for i, p := range grant.Permissions {
		perms[i] = string(p)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO share_grants (id, model_id, share_token, permissions, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+grantColumns,
		grant.ID, grant.ModelID, grant.ShareToken, perms, grant.ExpiresAt, grant.CreatedBy,
	)

	created, err := scanGrant(row)
	if err != nil {
		return domain.ShareGrant{}, domain.PersistenceError("failed to create share grant", err)
	}
	return created, nil
}

func (r *shareGrantRepository) GetByToken(ctx context.Context, token string) (domain.ShareGrant, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+grantColumns+` FROM share_grants WHERE share_token = $1`, token)

	grant, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ShareGrant{}, domain.NotFoundError("share_grant", "share token not found")
		}
		return domain.ShareGrant{}, fmt.Errorf("failed to get share grant: %w", err)
	}
	return grant, nil
}

func (r *shareGrantRepository) ListByModel(ctx context.Context, modelID uuid.UUID) ([]domain.ShareGrant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+grantColumns+` FROM share_grants WHERE model_id = $1 ORDER BY created_at DESC`, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list share grants: %w", err)
	}
	defer rows.Close()

	grants := []domain.ShareGrant{}
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan share grant: %w", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read share grants: %w", err)
	}
	return grants, nil
}

// DeleteByModel is the bulk revocation used on model delete. The schema
// cascade covers the same ground; the explicit delete keeps the transaction
// semantics visible.
func (r *shareGrantRepository) DeleteByModel(ctx context.Context, modelID uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM share_grants WHERE model_id = $1`, modelID); err != nil {
		return domain.PersistenceError("failed to revoke share grants", err)
	}
	return nil
}

func scanGrant(row pgx.Row) (domain.ShareGrant, error) {
	var (
		grant domain.ShareGrant
		perms []string
	)
	if err := row.Scan(&grant.ID, &grant.ModelID, &grant.ShareToken, &perms,
		&grant.ExpiresAt, &grant.CreatedBy, &grant.CreatedAt); err != nil {
		return domain.ShareGrant{}, err
	}
	grant.Permissions = make([]domain.Permission, len(perms))
	for i, p := range perms {
		grant.Permissions[i] = domain.Permission(p)
	}
	return grant, nil
}
