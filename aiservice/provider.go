package aiservice

import "context"

// Provider is the boundary to an external AI completion service. The
// orchestrator owns retries and circuit breaking; implementations make one
// attempt per call and classify failures into ProviderError kinds.
type Provider interface {
	// Complete sends a system/user prompt pair and returns the raw text
	// response.
	Complete(ctx context.Context, system, user string) (string, error)
	// Model identifies the backing model for generation metadata.
	Model() string
}
