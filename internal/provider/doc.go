// Package provider defines the inference backends the router dispatches to.
// A Provider carries the immutable identity (name, kind, priority, cost,
// capabilities) and the live statistics (EWMA latency, consecutive failure
// and success counts) shared by all concurrent requests for that backend.
// The Client interface abstracts the vendor SDKs; OpenAIClient covers the
// OpenAI API and any OpenAI-compatible local server, AnthropicClient covers
// the Anthropic Messages API.
package provider
