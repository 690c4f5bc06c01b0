package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lexingest/internal/store"
)

// handleListDocuments lists all ingested documents, newest first.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocuments()
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if docs == nil {
		docs = []store.Document{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"documents": docs})
}

// handleListChunks returns a document's stored chunks in order.
func (s *Server) handleListChunks(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")

	if _, err := s.store.GetDocument(docID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonError(w, "document not found", http.StatusNotFound)
			return
		}
		jsonError(w, "failed to load document: "+err.Error(), http.StatusInternalServerError)
		return
	}

	chunks, err := s.store.ListChunks(docID)
	if err != nil {
		jsonError(w, "failed to list chunks: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if chunks == nil {
		chunks = []store.Chunk{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"doc_id": docID,
		"chunks": chunks,
	})
}

// handleDeleteDocument removes a document, its chunks and its vectors.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")

	if err := s.store.DeleteDocument(docID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonError(w, "document not found", http.StatusNotFound)
			return
		}
		jsonError(w, "failed to delete document: "+err.Error(), http.StatusInternalServerError)
		return
	}

	indexCleaned := true
	if err := s.index.DeleteByDocument(r.Context(), docID); err != nil {
		s.log.Error("vector cleanup failed", "doc_id", docID, "error", err)
		indexCleaned = false
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"doc_id":        docID,
		"deleted":       true,
		"index_cleaned": indexCleaned,
	})
}
