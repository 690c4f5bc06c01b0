package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"lexingest/internal/pipeline"
	"lexingest/internal/rag"
)

type askRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

// handleAsk answers a question over the indexed corpus. Transient LLM
// failures are retried with backoff before giving up.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		jsonError(w, "question is required", http.StatusBadRequest)
		return
	}

	topK := req.TopK
	if topK <= 0 {
		settings, err := s.store.GetSettings()
		if err != nil {
			jsonError(w, "failed to load settings: "+err.Error(), http.StatusInternalServerError)
			return
		}
		topK = settings.TopK
	}

	var answer rag.Answer
	var err error
	for attempt := range pipeline.MaxRetries {
		answer, err = s.rag.Ask(r.Context(), req.Question, topK)
		if err == nil || !pipeline.IsRetryable(err) {
			break
		}
		s.log.Warn("retryable answer error", "attempt", attempt, "error", err)
		select {
		case <-time.After(pipeline.Backoff(attempt)):
		case <-r.Context().Done():
			err = r.Context().Err()
		}
		if r.Context().Err() != nil {
			break
		}
	}
	if err != nil {
		if errors.Is(err, rag.ErrPromptInjection) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		jsonError(w, "failed to answer: "+err.Error(), http.StatusBadGateway)
		return
	}

	if answer.Sources == nil {
		answer.Sources = []rag.Source{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(answer)
}
