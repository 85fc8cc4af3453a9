// Package rag turns a question into an answer: run a retrieval
// strategy, pack the best items into a bounded context window, and ask
// the model to answer from that context alone.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/loreweave/loreweave/engine/domain"
	"github.com/loreweave/loreweave/engine/retrieve"
	"github.com/loreweave/loreweave/pkg/llm"
)

// Options configures the answer pipeline.
type Options struct {
	TopK        int
	Temperature float64
	MaxTokens   int
	// ContextBudget caps the total characters of retrieved context
	// packed into the prompt.
	ContextBudget int
	SystemPrompt  string
	// SearchTimeout bounds the retrieval call, not generation.
	SearchTimeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:          5,
		Temperature:   0.2,
		MaxTokens:     1024,
		ContextBudget: 8000,
		SystemPrompt:  defaultSystemPrompt,
		SearchTimeout: 10 * time.Second,
	}
}

const defaultSystemPrompt = `You answer questions using ONLY the provided context.
If the context does not contain enough information to answer, say so plainly.
Do not invent facts that are not in the context.`

// Service runs retrieval and answer generation.
type Service struct {
	client    llm.Client
	retriever retrieve.Retriever
	opts      Options
	logger    *slog.Logger
}

// New creates an answer service over the given strategy.
func New(client llm.Client, retriever retrieve.Retriever, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = DefaultOptions().ContextBudget
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	return &Service{client: client, retriever: retriever, opts: opts, logger: logger}
}

// Answer is the structured response for one question.
type Answer struct {
	Text      string          `json:"text"`
	Query     string          `json:"query"`
	Strategy  string          `json:"strategy"`
	Items     []retrieve.Item `json:"items,omitempty"`
	Model     string          `json:"model,omitempty"`
	Truncated bool            `json:"truncated,omitempty"`
}

// Ask runs the full pipeline for one question. topK <= 0 falls back to
// the configured default.
func (s *Service) Ask(ctx context.Context, question string, topK int) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrGeneration)
	}
	if topK <= 0 {
		topK = s.opts.TopK
	}

	searchCtx := ctx
	if s.opts.SearchTimeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, s.opts.SearchTimeout)
		defer cancel()
	}
	result, err := s.retriever.Search(searchCtx, question, topK)
	if err != nil {
		return nil, fmt.Errorf("rag: retrieve: %w", err)
	}
	s.logger.Info("retrieval done",
		"strategy", s.retriever.Name(), "items", len(result.Items), "top_k", topK)

	contextText, used, truncated := packContext(result.Items, s.opts.ContextBudget)

	resp, err := s.client.Generate(ctx, llm.Request{
		System:      s.opts.SystemPrompt,
		Prompt:      buildPrompt(contextText, question),
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}

	return &Answer{
		Text:      resp.Content,
		Query:     question,
		Strategy:  s.retriever.Name(),
		Items:     used,
		Model:     resp.Model,
		Truncated: truncated,
	}, nil
}

// packContext fills the budget highest-score first and reports whether
// anything was left out.
func packContext(items []retrieve.Item, budget int) (string, []retrieve.Item, bool) {
	sorted := make([]retrieve.Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	var b strings.Builder
	var used []retrieve.Item
	truncated := false
	for _, item := range sorted {
		if b.Len() > 0 && b.Len()+len(item.Content) > budget {
			truncated = true
			break
		}
		fmt.Fprintf(&b, "[score %.3f] %s\n\n", item.Score, item.Content)
		used = append(used, item)
	}
	return b.String(), used, truncated
}

func buildPrompt(contextText, question string) string {
	if contextText == "" {
		return fmt.Sprintf("No context was retrieved.\n\nQuestion: %s", question)
	}
	return fmt.Sprintf("Context:\n%s\nQuestion: %s", contextText, question)
}
