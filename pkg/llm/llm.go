// Package llm unifies language-model providers behind a small capability
// interface: prompt in, optionally constrained structured output out.
// Pipeline code depends only on Client and Embedder; concrete providers
// speak OpenAI-compatible or Ollama HTTP APIs.
package llm

import (
	"context"
	"fmt"
)

// OutputConstraint tells the provider what shape the response must take.
type OutputConstraint string

const (
	// ConstraintNone requests free-form text.
	ConstraintNone OutputConstraint = ""
	// ConstraintJSON requests a single JSON object (provider JSON mode).
	ConstraintJSON OutputConstraint = "json_object"
)

// Request is a single generation call.
type Request struct {
	System      string
	Prompt      string
	Constraint  OutputConstraint
	Temperature float64
	MaxTokens   int
}

// Response is the provider's reply.
type Response struct {
	Content     string
	Model       string
	TotalTokens int
}

// Client generates text from a prompt, honoring the output constraint.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Embedder produces fixed-dimension vectors for texts.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is the length of every vector Embed returns.
	Dimension() int
}

// Config selects and configures a concrete provider.
type Config struct {
	Provider  string  `json:"provider"` // openai, ollama, custom
	Model     string  `json:"model"`
	BaseURL   string  `json:"base_url"`
	APIKey    string  `json:"api_key"`
	Dimension int     `json:"dimension,omitempty"` // embedders only
	RPS       float64 `json:"rps,omitempty"`       // request pacing, 0 = unlimited
}

// NewClient creates a generation client from configuration.
func NewClient(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "openai", "custom":
		return newOpenAI(cfg), nil
	case "ollama":
		return newOllama(cfg), nil
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// NewEmbedder creates an embedding client from configuration.
func NewEmbedder(cfg Config) (Embedder, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}
	switch cfg.Provider {
	case "openai", "custom":
		return newOpenAI(cfg), nil
	case "ollama":
		return newOllama(cfg), nil
	case "":
		return nil, fmt.Errorf("embedding provider not specified")
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
