package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/loreweave/loreweave/engine/domain"
	"github.com/loreweave/loreweave/engine/rag"
	"github.com/loreweave/loreweave/pkg/metrics"
	"github.com/loreweave/loreweave/pkg/mid"
)

// answerer is the service surface the handlers need. *rag.Service
// satisfies it.
type answerer interface {
	Ask(ctx context.Context, question string, topK int) (*rag.Answer, error)
}

// queryRequest is the JSON body for POST /query and POST /webhook.
type queryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// queryResponse is the success envelope.
type queryResponse struct {
	Answer string `json:"answer"`
	Query  string `json:"query"`
	TopK   int    `json:"top_k"`
	Status string `json:"status"`
}

// errorResponse is the failure envelope.
type errorResponse struct {
	Error  string `json:"error"`
	Status string `json:"status"`
}

func newHandler(svc answerer, defaultTopK, webhookTopK int, corsOrigin string, reg *metrics.Registry, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", handleRoot)
	mux.HandleFunc("POST /query", handleQuery(svc, defaultTopK, logger))
	mux.HandleFunc("POST /webhook", handleWebhook(svc, webhookTopK, logger))
	mux.Handle("GET /metrics", reg.Handler())

	return mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.Metrics(reg),
		mid.CORS(corsOrigin),
		mid.OTel("loreweave-api"),
	)
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"endpoints": map[string]string{
			"POST /query":   "answer a question; body {query, top_k}",
			"POST /webhook": "answer a question with a fixed top_k; body {query}",
			"GET /metrics":  "metrics in Prometheus text format",
		},
	})
}

func handleQuery(svc answerer, defaultTopK int, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.TopK <= 0 {
			req.TopK = defaultTopK
		}
		answer(w, r, svc, req.Query, req.TopK, logger)
	}
}

// handleWebhook ignores any client-supplied top_k so external callers
// cannot inflate context size.
func handleWebhook(svc answerer, topK int, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		answer(w, r, svc, req.Query, topK, logger)
	}
}

func answer(w http.ResponseWriter, r *http.Request, svc answerer, query string, topK int, logger *slog.Logger) {
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	ans, err := svc.Ask(r.Context(), query, topK)
	if err != nil {
		logger.Error("query failed", "err", err)
		switch {
		case errors.Is(err, domain.ErrUnsafeQuery), errors.Is(err, domain.ErrQueryGeneration):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Answer: ans.Text,
		Query:  ans.Query,
		TopK:   topK,
		Status: "success",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Status: "error"})
}
