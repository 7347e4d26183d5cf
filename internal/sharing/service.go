// Package sharing mints and validates time-boxed, permission-scoped share
// grants for parametric models.
package sharing

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/parametric/internal/domain"
	"github.com/rpattn/parametric/internal/repository"
)

// tokenBytes is the entropy behind a share token. 32 random bytes encode to
// a 43-character URL-safe token that cannot be derived from model or actor.
const tokenBytes = 32

// Service issues and validates share grants. Expiry is lazy: expired rows
// stay stored and are only refused at validation time. The single bulk
// revocation happens on model delete.
type Service struct {
	grants repository.ShareGrantRepository

	defaultTTL time.Duration
	now        func() time.Time
}

// Option customizes the service.
type Option func(*Service)

// WithDefaultTTL overrides the grant lifetime applied when the caller
// supplies no expiry.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a share-grant service over the grant repository.
func NewService(grants repository.ShareGrantRepository, opts ...Option) *Service {
	service := &Service{
		grants:     grants,
		defaultTTL: domain.DefaultShareTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Issue mints a grant for modelID. Permissions default to view; a nil
// expiresAt applies the default TTL. An expiry in the past is rejected.
func (s *Service) Issue(ctx context.Context, modelID uuid.UUID, permissions []domain.Permission, expiresAt *time.Time, actor uuid.UUID) (domain.ShareGrant, error) {
	now := s.now()

	expiry := now.Add(s.defaultTTL)
	if expiresAt != nil {
		if !expiresAt.After(now) {
			return domain.ShareGrant{}, domain.ValidationError("expiresAt must be in the future")
		}
		expiry = *expiresAt
	}

	token, err := mintToken()
	if err != nil {
		return domain.ShareGrant{}, domain.PersistenceError("failed to mint share token", err)
	}

	grant, err := domain.NewShareGrant(modelID, token, permissions, expiry, actor)
	if err != nil {
		return domain.ShareGrant{}, err
	}

	return s.grants.Create(ctx, grant)
}

// Validate resolves a token to its grant. A past expiry fails with Expired
// regardless of the grant's permissions; the row is left in place.
func (s *Service) Validate(ctx context.Context, token string) (domain.ShareGrant, error) {
	if token == "" {
		return domain.ShareGrant{}, domain.ValidationError("share token is required")
	}

	grant, err := s.grants.GetByToken(ctx, token)
	if err != nil {
		return domain.ShareGrant{}, err
	}

	if grant.Expired(s.now()) {
		return domain.ShareGrant{}, domain.ExpiredError(
			fmt.Sprintf("share grant expired at %s", grant.ExpiresAt.UTC().Format(time.RFC3339)))
	}
	return grant, nil
}

// RevokeForModel is the bulk revocation run when a model is hard-deleted.
func (s *Service) RevokeForModel(ctx context.Context, modelID uuid.UUID) error {
	return s.grants.DeleteByModel(ctx, modelID)
}

// ListForModel returns a model's grants, expired ones included.
func (s *Service) ListForModel(ctx context.Context, modelID uuid.UUID) ([]domain.ShareGrant, error) {
	return s.grants.ListByModel(ctx, modelID)
}

func mintToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
