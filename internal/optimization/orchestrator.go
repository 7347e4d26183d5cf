package optimization

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rpattn/parametric/internal/domain"
	"github.com/rpattn/parametric/internal/versioning"
)

// State tracks one optimization run.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Orchestrator performs a single-attempt call to the completion collaborator
// and folds a successful opinion into a new branch. A failed call creates
// nothing: the parent row is never written.
type Orchestrator struct {
	provider Provider
	versions *versioning.Manager
	logger   zerolog.Logger

	timeout     time.Duration
	maxTokens   int
	temperature float64
}

// Option customizes the orchestrator.
type Option func(*Orchestrator)

// WithTimeout bounds the completion call. The collaborator has no circuit
// breaker of its own, so this is the only cap on a hung request.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithCompletionBudget sets the token and temperature settings sent with
// every request.
func WithCompletionBudget(maxTokens int, temperature float64) Option {
	return func(o *Orchestrator) {
		if maxTokens > 0 {
			o.maxTokens = maxTokens
		}
		if temperature >= 0 {
			o.temperature = temperature
		}
	}
}

// NewOrchestrator wires the collaborator port to the version manager.
func NewOrchestrator(provider Provider, versions *versioning.Manager, logger zerolog.Logger, opts ...Option) *Orchestrator {
	orchestrator := &Orchestrator{
		provider:    provider,
		versions:    versions,
		logger:      logger,
		timeout:     60 * time.Second,
		maxTokens:   500,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(orchestrator)
	}
	return orchestrator
}

// Request describes one optimization run against a fetched model.
type Request struct {
	Model       domain.ParametricModel
	Type        domain.OptimizationType
	Constraints []string
	Actor       string
}

// Optimize runs Idle -> Requesting -> {Succeeded, Failed}. On success the
// returned model is a new branch carrying the opinion in its metadata; on
// failure the error is OptimizationFailed and no row was created.
func (o *Orchestrator) Optimize(ctx context.Context, req Request) (domain.ParametricModel, error) {
	if !domain.ValidOptimizationType(req.Type) {
		return domain.ParametricModel{}, domain.ValidationError(fmt.Sprintf("unknown optimization type %q", req.Type))
	}
	if o.provider == nil || !o.provider.IsAvailable() {
		return domain.ParametricModel{}, domain.OptimizationFailedError("completion provider is unavailable", nil)
	}

	state := StateIdle
	prompt := buildPrompt(req.Model, req.Type, req.Constraints)

	state = StateRequesting
	o.logger.Debug().
		Str("model_id", req.Model.ID.String()).
		Str("optimization_type", string(req.Type)).
		Str("state", string(state)).
		Msg("requesting optimization opinion")

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	opinion, err := o.provider.Complete(callCtx, prompt, CompletionOptions{
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
	})
	if err != nil {
		state = StateFailed
		o.logger.Warn().Err(err).
			Str("model_id", req.Model.ID.String()).
			Str("state", string(state)).
			Msg("optimization request failed")
		return domain.ParametricModel{}, domain.OptimizationFailedError("completion collaborator failed", err)
	}
	opinion = strings.TrimSpace(opinion)
	if opinion == "" {
		state = StateFailed
		return domain.ParametricModel{}, domain.OptimizationFailedError("completion collaborator returned an empty opinion", nil)
	}

	// Verbatim copy of the parent's contents; only metadata is stamped.
	branch, err := o.versions.Branch(ctx, req.Model, func(m domain.ParametricModel) (domain.ParametricModel, error) {
		m.Metadata[domain.MetaOptimizationResult] = opinion
		m.Metadata[domain.MetaAIOptimized] = true
		m.Metadata[domain.MetaOptimizationType] = string(req.Type)
		m.Metadata[domain.MetaParentVersion] = req.Model.Version
		if req.Actor != "" {
			m.Metadata[domain.MetaUpdatedBy] = req.Actor
		}
		return m, nil
	}, "ai optimization: "+string(req.Type))
	if err != nil {
		return domain.ParametricModel{}, err
	}

	state = StateSucceeded
	o.logger.Info().
		Str("model_id", req.Model.ID.String()).
		Str("branch_id", branch.ID.String()).
		Int64("branch_version", branch.Version).
		Str("state", string(state)).
		Msg("optimization branch created")
	return branch, nil
}

// buildPrompt flattens the model's global parameters and the caller's
// constraints into the free-text prompt the collaborator expects.
func buildPrompt(model domain.ParametricModel, optimizationType domain.OptimizationType, constraints []string) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "You are a parametric BIM design assistant. Suggest %s optimizations for the model %q (version %d).\n\n",
		optimizationType, model.Name, model.Version)

	builder.WriteString("Global parameters:\n")
	if len(model.GlobalParameters) == 0 {
		builder.WriteString("  (none)\n")
	}
	for _, param := range model.GlobalParameters {
		encoded, err := json.Marshal(param.Value)
		if err != nil {
			encoded = []byte(fmt.Sprintf("%v", param.Value))
		}
		if param.Unit != "" {
			fmt.Fprintf(&builder, "  %s: %s %s\n", param.Name, encoded, param.Unit)
		} else {
			fmt.Fprintf(&builder, "  %s: %s\n", param.Name, encoded)
		}
	}

	fmt.Fprintf(&builder, "\nThe model contains %d objects and %d relationships.\n", len(model.Objects), len(model.Relationships))

	if len(constraints) > 0 {
		builder.WriteString("\nConstraints:\n")
		for _, constraint := range constraints {
			fmt.Fprintf(&builder, "  - %s\n", constraint)
		}
	}

	builder.WriteString("\nRespond with concrete parameter adjustments in plain text.")
	return builder.String()
}
