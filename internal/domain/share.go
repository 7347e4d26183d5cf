package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Permission scopes what a share grant allows.
type Permission string

const (
	PermissionView    Permission = "view"
	PermissionEdit    Permission = "edit"
	PermissionComment Permission = "comment"
)

// ValidPermission reports whether p is a known permission.
func ValidPermission(p Permission) bool {
	switch p {
	case PermissionView, PermissionEdit, PermissionComment:
		return true
	}
	return false
}

// DefaultShareTTL is applied when the caller does not supply an expiry.
const DefaultShareTTL = 7 * 24 * time.Hour

// ShareGrant is a token-based, time-boxed, permission-scoped access
// credential for one model. Expiry is honored lazily at validation time;
// expired rows stay stored but unusable.
type ShareGrant struct {
	ID          uuid.UUID    `json:"id"`
	ModelID     uuid.UUID    `json:"model_id"`
	ShareToken  string       `json:"share_token"`
	Permissions []Permission `json:"permissions"`
	ExpiresAt   time.Time    `json:"expires_at"`
	CreatedBy   uuid.UUID    `json:"created_by"`
	CreatedAt   time.Time    `json:"created_at"`
}

// NewShareGrant builds a grant around a pre-minted token. Permissions default
// to view when empty.
func NewShareGrant(modelID uuid.UUID, token string, permissions []Permission, expiresAt time.Time, createdBy uuid.UUID) (ShareGrant, error) {
	if len(permissions) == 0 {
		permissions = []Permission{PermissionView}
	}
	for _, p := range permissions {
		if !ValidPermission(p) {
			return ShareGrant{}, ValidationError(fmt.Sprintf("unknown permission %q", p))
		}
	}
	perms := make([]Permission, len(permissions))
	copy(perms, permissions)
	return ShareGrant{
		ID:          uuid.New(),
		ModelID:     modelID,
		ShareToken:  token,
		Permissions: perms,
		ExpiresAt:   expiresAt,
		CreatedBy:   createdBy,
		CreatedAt:   time.Now(),
	}, nil
}

// Expired reports whether the grant is past its expiry at the given instant.
func (g ShareGrant) Expired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

// Allows reports whether the grant carries the given permission.
func (g ShareGrant) Allows(p Permission) bool {
	for _, granted := range g.Permissions {
		if granted == p {
			return true
		}
	}
	return false
}
