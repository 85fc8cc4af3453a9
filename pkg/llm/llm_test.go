package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClientSelectsProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantErr  bool
	}{
		{"openai", false},
		{"custom", false},
		{"ollama", false},
		{"", true},
		{"mentat", true},
	}
	for _, tt := range tests {
		_, err := NewClient(Config{Provider: tt.provider, Model: "m"})
		if (err != nil) != tt.wantErr {
			t.Errorf("NewClient(%q) error = %v, wantErr %v", tt.provider, err, tt.wantErr)
		}
	}
}

func TestNewEmbedderRequiresDimension(t *testing.T) {
	if _, err := NewEmbedder(Config{Provider: "openai", Model: "m"}); err == nil {
		t.Fatal("expected error for zero dimension")
	}
	if _, err := NewEmbedder(Config{Provider: "openai", Model: "m", Dimension: 8}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOpenAIGenerateJSONMode(t *testing.T) {
	var gotReq chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("missing auth header, got %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model": "test-model",
			"choices": []map[string]any{
				{"message": map[string]string{"content": `{"entities":[]}`}},
			},
			"usage": map[string]int{"total_tokens": 42},
		})
	}))
	defer srv.Close()

	c := newOpenAI(Config{Model: "test-model", BaseURL: srv.URL, APIKey: "sk-test"})
	resp, err := c.Generate(context.Background(), Request{
		System:     "extract",
		Prompt:     "some text",
		Constraint: ConstraintJSON,
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != `{"entities":[]}` {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.TotalTokens != 42 {
		t.Errorf("tokens = %d", resp.TotalTokens)
	}
	if gotReq.ResponseFormat == nil || gotReq.ResponseFormat.Type != "json_object" {
		t.Error("JSON constraint not forwarded as response_format")
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
}

func TestOpenAIGenerateErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newOpenAI(Config{Model: "m", BaseURL: srv.URL})
	if _, err := c.Generate(context.Background(), Request{Prompt: "hi"}); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestOpenAIEmbedOrdersAndValidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Return out of order on purpose.
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{3, 4}},
				{"index": 0, "embedding": []float32{1, 2}},
			},
		})
	}))
	defer srv.Close()

	c := newOpenAI(Config{Model: "m", BaseURL: srv.URL, Dimension: 2})
	got, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if got[0][0] != 1 || got[1][0] != 3 {
		t.Errorf("embeddings not reordered by index: %v", got)
	}
}

func TestOpenAIEmbedDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{1, 2, 3}}},
		})
	}))
	defer srv.Close()

	c := newOpenAI(Config{Model: "m", BaseURL: srv.URL, Dimension: 2})
	if _, err := c.Embed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestOllamaGenerateJSONFormat(t *testing.T) {
	var gotReq ollamaGenerateReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(ollamaGenerateResp{Model: "llama3", Response: `{}`})
	}))
	defer srv.Close()

	c := newOllama(Config{Model: "llama3", BaseURL: srv.URL})
	resp, err := c.Generate(context.Background(), Request{Prompt: "p", Constraint: ConstraintJSON})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != `{}` {
		t.Errorf("content = %q", resp.Content)
	}
	if gotReq.Format != "json" {
		t.Errorf("format = %q, want json", gotReq.Format)
	}
	if gotReq.Stream {
		t.Error("stream must be disabled")
	}
}
