package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/rpattn/parametric/internal/domain"
)

type contextKey string

const (
	projectIDKey   contextKey = "projectID"
	actorIDKey     contextKey = "actorID"
	requestInfoKey contextKey = "requestInfo"
)

// RequestInfo carries transport-level facts forwarded to the activity log.
type RequestInfo struct {
	IP        string
	UserAgent string
}

// ContextWithRequestInfo attaches the caller's transport facts.
func ContextWithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestInfoKey, info)
}

// RequestInfoFromContext retrieves the transport facts, if any.
func RequestInfoFromContext(ctx context.Context) RequestInfo {
	if ctx == nil {
		return RequestInfo{}
	}
	info, _ := ctx.Value(requestInfoKey).(RequestInfo)
	return info
}

// ContextWithScope returns a new context carrying the authenticated project
// scope and acting user.
func ContextWithScope(ctx context.Context, projectID, actorID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, projectIDKey, projectID)
	return context.WithValue(ctx, actorIDKey, actorID)
}

// ProjectIDFromContext retrieves the authenticated project scope, if any.
func ProjectIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(projectIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// ActorIDFromContext retrieves the acting user, if any.
func ActorIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(actorIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// EnforceProjectScope ensures the row's project matches the authenticated
// scope when one is present. A mismatch is the authorization filter firing.
func EnforceProjectScope(ctx context.Context, projectID uuid.UUID) error {
	if projectID == uuid.Nil {
		return domain.ValidationError("projectId is required")
	}
	scopedID, ok := ProjectIDFromContext(ctx)
	if !ok {
		return nil
	}
	if scopedID != projectID {
		return domain.ForbiddenError("model is outside the authenticated project scope")
	}
	return nil
}
