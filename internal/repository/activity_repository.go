package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/parametric/internal/domain"
)

// activityLogRepository implements ActivityLogRepository on a pgx pool.
type activityLogRepository struct {
	pool *pgxpool.Pool
}

// NewActivityLogRepository creates a new activity log repository.
func NewActivityLogRepository(pool *pgxpool.Pool) ActivityLogRepository {
	return &activityLogRepository{pool: pool}
}

func (r *activityLogRepository) Record(ctx context.Context, entry domain.ActivityEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal activity details: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO activity_log (id, action, details, actor_id, project_id, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.Action, details, entry.ActorID, entry.ProjectID, entry.IP, entry.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}
