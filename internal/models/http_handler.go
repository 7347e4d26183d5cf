package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/parametric/internal/auth"
	"github.com/rpattn/parametric/internal/domain"
)

// Handler exposes the model service as JSON endpoints.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service with its route set.
func NewHTTPHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts every endpoint on a fresh mux, with request scope extracted
// from headers before any handler runs.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /models", h.create)
	mux.HandleFunc("GET /models", h.list)
	mux.HandleFunc("GET /models/{id}", h.get)
	mux.HandleFunc("PATCH /models/{id}", h.update)
	mux.HandleFunc("DELETE /models/{id}", h.delete)
	mux.HandleFunc("POST /models/{id}/parameters", h.setParameter)
	mux.HandleFunc("POST /models/{id}/optimize", h.optimize)
	mux.HandleFunc("POST /models/{id}/share", h.share)
	mux.HandleFunc("GET /models/{id}/lineage", h.lineage)
	mux.HandleFunc("GET /models/{id}/diff", h.diff)
	mux.HandleFunc("GET /shared/{token}", h.shared)

	return withRequestScope(mux)
}

// withRequestScope lifts the authenticated project and actor plus transport
// facts into the context. Session resolution itself lives upstream.
func withRequestScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		projectID, _ := uuid.Parse(r.Header.Get("X-Project-ID"))
		actorID, _ := uuid.Parse(r.Header.Get("X-Actor-ID"))
		if projectID != uuid.Nil || actorID != uuid.Nil {
			ctx = auth.ContextWithScope(ctx, projectID, actorID)
		}

		ip := r.Header.Get("X-Forwarded-For")
		if ip == "" {
			ip, _, _ = net.SplitHostPort(r.RemoteAddr)
		} else if comma := strings.IndexByte(ip, ','); comma >= 0 {
			ip = strings.TrimSpace(ip[:comma])
		}
		ctx = auth.ContextWithRequestInfo(ctx, auth.RequestInfo{
			IP:        ip,
			UserAgent: r.UserAgent(),
		})

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type createPayload struct {
	ProjectID        uuid.UUID             `json:"project_id"`
	Name             string                `json:"name"`
	Description      string                `json:"description"`
	Objects          []domain.ModelObject  `json:"objects"`
	GlobalParameters []domain.Parameter    `json:"global_parameters"`
	Relationships    []domain.Relationship `json:"relationships"`
	Metadata         map[string]any        `json:"metadata"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var payload createPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	created, err := h.service.Create(r.Context(), CreateRequest{
		ProjectID:        payload.ProjectID,
		Name:             payload.Name,
		Description:      payload.Description,
		Objects:          payload.Objects,
		GlobalParameters: payload.GlobalParameters,
		Relationships:    payload.Relationships,
		Metadata:         payload.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	listed, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": listed})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	model, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model)
}

type updatePayload struct {
	Name             *string               `json:"name"`
	Description      *string               `json:"description"`
	Objects          []domain.ModelObject  `json:"objects"`
	GlobalParameters []domain.Parameter    `json:"global_parameters"`
	Relationships    []domain.Relationship `json:"relationships"`
	Metadata         map[string]any        `json:"metadata"`
	ExpectedRevision *int64                `json:"expected_revision"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var payload updatePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.service.Update(r.Context(), id, domain.ModelUpdate{
		Name:             payload.Name,
		Description:      payload.Description,
		Objects:          payload.Objects,
		GlobalParameters: payload.GlobalParameters,
		Relationships:    payload.Relationships,
		Metadata:         payload.Metadata,
		ExpectedRevision: payload.ExpectedRevision,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type setParameterPayload struct {
	ObjectID         string `json:"object_id"`
	Name             string `json:"name"`
	Value            any    `json:"value"`
	ExpectedRevision *int64 `json:"expected_revision"`
}

func (h *Handler) setParameter(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var payload setParameterPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.service.SetParameter(r.Context(), id, payload.ObjectID, payload.Name, payload.Value, payload.ExpectedRevision)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type optimizePayload struct {
	OptimizationType string   `json:"optimization_type"`
	Constraints      []string `json:"constraints"`
}

func (h *Handler) optimize(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var payload optimizePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	branch, err := h.service.Optimize(r.Context(), id, domain.OptimizationType(payload.OptimizationType), payload.Constraints)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, branch)
}

type sharePayload struct {
	Permissions []domain.Permission `json:"permissions"`
	ExpiresAt   *time.Time          `json:"expires_at"`
}

func (h *Handler) share(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var payload sharePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	grant, err := h.service.Share(r.Context(), id, payload.Permissions, payload.ExpiresAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, grant)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lineage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	versions, err := h.service.Lineage(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (h *Handler) diff(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	against, err := uuid.Parse(r.URL.Query().Get("against"))
	if err != nil {
		writeError(w, domain.ValidationError("against query parameter must be a model id"))
		return
	}

	diff, err := h.service.Diff(r.Context(), id, against)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"diff": diff})
}

func (h *Handler) shared(w http.ResponseWriter, r *http.Request) {
	resolved, err := h.service.ResolveShared(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, domain.ValidationError("model id must be a UUID")
	}
	return id, nil
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return domain.ValidationError(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// writeError maps the discriminated error kind onto a status code. The body
// carries kind and message only; internals never leak.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindForbidden:
		status = http.StatusForbidden
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindConflict:
		status = http.StatusConflict
	case domain.KindExpired:
		status = http.StatusGone
	case domain.KindOptimizationFailed:
		status = http.StatusBadGateway
	}

	// Only taxonomy messages reach callers; anything else stays generic.
	message := "internal error"
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}

	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"kind":    string(domain.KindOf(err)),
			"message": message,
		},
	})
}
