package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActivityEntry records one mutating call for the audit trail. Entries are
// written fire-and-forget; a failed write never fails the mutation.
type ActivityEntry struct {
	ID        uuid.UUID      `json:"id"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details"`
	ActorID   uuid.UUID      `json:"actor_id"`
	ProjectID uuid.UUID      `json:"project_id"`
	IP        string         `json:"ip"`
	UserAgent string         `json:"user_agent"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewActivityEntry stamps an entry with a fresh id and timestamp.
func NewActivityEntry(action string, details map[string]any, actorID, projectID uuid.UUID, ip, userAgent string) ActivityEntry {
	return ActivityEntry{
		ID:        uuid.New(),
		Action:    action,
		Details:   copyMetadata(details),
		ActorID:   actorID,
		ProjectID: projectID,
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: time.Now(),
	}
}
