package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewShareGrantDefaultsToView(t *testing.T) {
	grant, err := NewShareGrant(uuid.New(), "token", nil, time.Now().Add(time.Hour), uuid.New())
	if err != nil {
		t.Fatalf("new grant: %v", err)
	}
	if len(grant.Permissions) != 1 || grant.Permissions[0] != PermissionView {
		t.Fatalf("default permissions: got %v", grant.Permissions)
	}
}

func TestNewShareGrantRejectsUnknownPermission(t *testing.T) {
	_, err := NewShareGrant(uuid.New(), "token", []Permission{"owner"}, time.Now().Add(time.Hour), uuid.New())
	if !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestShareGrantExpiry(t *testing.T) {
	expiry := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	grant := ShareGrant{ExpiresAt: expiry}

	if grant.Expired(expiry.Add(-time.Second)) {
		t.Fatal("grant expired before its expiry")
	}
	// The boundary instant itself is already expired.
	if !grant.Expired(expiry) {
		t.Fatal("grant live at its expiry instant")
	}
	if !grant.Expired(expiry.Add(time.Second)) {
		t.Fatal("grant live after its expiry")
	}
}

func TestShareGrantAllows(t *testing.T) {
	grant := ShareGrant{Permissions: []Permission{PermissionView, PermissionComment}}
	if !grant.Allows(PermissionView) || !grant.Allows(PermissionComment) {
		t.Fatalf("granted permissions refused: %v", grant.Permissions)
	}
	if grant.Allows(PermissionEdit) {
		t.Fatal("ungranted permission allowed")
	}
}
