package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/erabu/internal/models"
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode, err := models.ParseMode(req.Mode)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("query request",
		zap.String("query", req.Query),
		zap.Int("top_k", req.TopK),
		zap.String("mode", string(mode)))

	start := time.Now()
	results, err := s.retriever.Query(r.Context(), req.Query, req.TopK, string(mode))
	if err != nil {
		if errors.Is(err, models.ErrInvalidMode) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("query failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	s.respondJSON(w, http.StatusOK, &models.QueryResponse{
		Results:   results,
		Mode:      mode,
		QueryTime: time.Since(start).Milliseconds(),
		Query:     req.Query,
	})
}

type ingestRequest struct {
	Text           string `json:"text"`
	SourceDocument string `json:"source_document,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		s.respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	s.logger.Debug("ingest request",
		zap.String("source", req.SourceDocument),
		zap.Int("bytes", len(req.Text)))
	summary, err := s.orchestrator.Ingest(r.Context(), req.Text, req.SourceDocument)
	if err != nil {
		s.logger.Error("ingestion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, summary)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.retriever.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
