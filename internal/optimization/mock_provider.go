package optimization

import (
	"context"
	"fmt"
	"strings"
)

// MockProvider is a canned-response provider for development and tests.
type MockProvider struct {
	available bool
	response  string
	err       error
	// Prompts records every prompt received, in order.
	Prompts []string
}

// NewMockProvider creates an available mock returning a generic opinion.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		available: true,
		response:  "reduce material usage on load-bearing members by 5%",
	}
}

// WithResponse pins the opinion the mock returns.
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.response = response
	return m
}

// WithError makes every completion fail with err.
func (m *MockProvider) WithError(err error) *MockProvider {
	m.err = err
	return m
}

// IsAvailable reports whether the mock accepts calls.
func (m *MockProvider) IsAvailable() bool {
	return m.available
}

// Complete returns the canned opinion, echoing the objective when the prompt
// names one so responses stay plausible in development.
func (m *MockProvider) Complete(ctx context.Context, prompt string, _ CompletionOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.Prompts = append(m.Prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	if !m.available {
		return "", fmt.Errorf("mock provider is not available")
	}
	if strings.Contains(prompt, "energy") {
		return "reduce window area by 10%", nil
	}
	return m.response, nil
}
