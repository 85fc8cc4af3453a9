package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ollamaClient speaks Ollama's native HTTP API. It implements both
// Client and Embedder.
type ollamaClient struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

func newOllama(cfg Config) *ollamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return &ollamaClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: 120 * time.Second},
		limiter: limiter,
	}
}

type ollamaGenerateReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Format string `json:"format,omitempty"` // "json" for JSON mode
	Stream bool   `json:"stream"`
	Options struct {
		Temperature float64 `json:"temperature"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

type ollamaGenerateResp struct {
	Model    string `json:"model"`
	Response string `json:"response"`
}

type ollamaEmbedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResp struct {
	Embedding []float64 `json:"embedding"`
}

// Generate implements Client.
func (c *ollamaClient) Generate(ctx context.Context, req Request) (*Response, error) {
	body := ollamaGenerateReq{
		Model:  c.cfg.Model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
	}
	body.Options.Temperature = req.Temperature
	body.Options.NumPredict = req.MaxTokens
	if req.Constraint == ConstraintJSON {
		body.Format = "json"
	}

	respBody, err := c.doPost(ctx, "/api/generate", body)
	if err != nil {
		return nil, err
	}

	var resp ollamaGenerateResp
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("ollama: decode generate response: %w", err)
	}
	return &Response{Content: resp.Response, Model: resp.Model}, nil
}

// Embed implements Embedder. Ollama embeds one prompt per request.
func (c *ollamaClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		respBody, err := c.doPost(ctx, "/api/embeddings", ollamaEmbedReq{
			Model:  c.cfg.Model,
			Prompt: text,
		})
		if err != nil {
			return nil, fmt.Errorf("ollama: embed [%d]: %w", i, err)
		}
		var resp ollamaEmbedResp
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return nil, fmt.Errorf("ollama: decode embedding: %w", err)
		}
		if len(resp.Embedding) != c.cfg.Dimension {
			return nil, fmt.Errorf("ollama: embedding dimension %d, want %d", len(resp.Embedding), c.cfg.Dimension)
		}
		vec := make([]float32, len(resp.Embedding))
		for j, v := range resp.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

// Dimension implements Embedder.
func (c *ollamaClient) Dimension() int { return c.cfg.Dimension }

func (c *ollamaClient) doPost(ctx context.Context, path string, body any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}
	return respBody, nil
}
