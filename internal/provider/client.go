package provider

import (
	"context"
)

// CompletionRequest is the payload handed to a provider client for one
// attempt. The routing layer has already resolved timeouts into the context.
type CompletionRequest struct {
	Prompt    string
	MaxTokens int
}

// CompletionResponse is what a provider client returns on success.
type CompletionResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// Client is the call surface of one inference backend. Implementations wrap
// a vendor SDK; Complete issues a user request and HealthCheck issues a
// cheap synthetic probe with no side effects on user traffic.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	HealthCheck(ctx context.Context) error
}
