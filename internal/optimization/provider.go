// Package optimization coordinates the external suggestion engine and folds
// its opinion into a new model branch.
package optimization

import "context"

// Provider is the opaque text-completion collaborator: prompt in, free text
// or error out. Implementations must honor context cancellation.
type Provider interface {
	Complete(ctx context.Context, prompt string, options CompletionOptions) (string, error)
	IsAvailable() bool
}

// CompletionOptions configures a single completion request.
type CompletionOptions struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}
