// Package models contains shared data models used across the FinDoc codebase.
package models

import (
	"context"
)

// AIProvider is the core interface that all LLM integrations must implement.
// Never call specific AI providers directly; inject this interface.
type AIProvider interface {
	// Complete runs a single chat completion and returns the assistant text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
	// Model returns the model the provider was configured with.
	Model() string
}

// CompletionRequest is the input to one LLM call.
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
}
