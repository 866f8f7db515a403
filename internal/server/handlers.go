package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/opencampus/docqa/internal/catalog"
	"github.com/opencampus/docqa/internal/index"
	"github.com/opencampus/docqa/internal/models"
)

func (s *Server) corpus(w http.ResponseWriter, r *http.Request) *Corpus {
	name := chi.URLParam(r, "corpus")
	c, ok := s.corpora[name]
	if !ok {
		s.respondError(w, http.StatusNotFound, "unknown corpus")
		return nil
	}
	return c
}

type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	c := s.corpus(w, r)
	if c == nil {
		return
	}
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("k", req.K))
	result, err := c.Retrieval.Search(r.Context(), req.Query, req.K)
	if err != nil {
		if errors.Is(err, index.ErrNotReady) {
			s.respondError(w, http.StatusServiceUnavailable, "index not ready")
			return
		}
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

type askRequest struct {
	Session  string `json:"session"`
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	c := s.corpus(w, r)
	if c == nil {
		return
	}
	if c.Assistant == nil {
		s.respondError(w, http.StatusNotImplemented, "assistant not configured")
		return
	}
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	if req.Session == "" {
		req.Session = "default"
	}
	answer, err := c.Assistant.Ask(r.Context(), req.Session, req.Question)
	if err != nil {
		if errors.Is(err, index.ErrNotReady) {
			s.respondError(w, http.StatusServiceUnavailable, "index not ready")
			return
		}
		s.logger.Error("ask failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, answer)
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	c := s.corpus(w, r)
	if c == nil {
		return
	}
	if c.Catalog == nil {
		s.respondError(w, http.StatusNotImplemented, "document management not configured")
		return
	}

	maxSize := s.cfg.Extract.MaxFileSize
	if maxSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxSize+1024*1024)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if maxSize > 0 && int64(len(content)) > maxSize {
		s.respondError(w, http.StatusRequestEntityTooLarge, "file exceeds maximum size")
		return
	}

	var tags []string
	if raw := r.FormValue("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	if replaceID := r.FormValue("replace_id"); replaceID != "" {
		if err := c.Manager.DeleteDocument(r.Context(), replaceID); err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				s.respondError(w, http.StatusNotFound, "document to replace not found")
				return
			}
			s.logger.Error("replace delete failed", zap.String("id", replaceID), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	s.logger.Debug("upload request",
		zap.String("name", header.Filename),
		zap.Int("size", len(content)))
	doc, err := c.Manager.AddDocument(r.Context(), models.UploadRequest{
		OriginalName: header.Filename,
		Content:      content,
		Title:        r.FormValue("title"),
		Description:  r.FormValue("description"),
		Tags:         tags,
	})
	if err != nil {
		s.logger.Error("upload failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	c := s.corpus(w, r)
	if c == nil {
		return
	}
	if c.Catalog == nil {
		s.respondError(w, http.StatusNotImplemented, "document management not configured")
		return
	}
	docs, err := c.Catalog.ListActive(r.Context())
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	c := s.corpus(w, r)
	if c == nil {
		return
	}
	if c.Catalog == nil {
		s.respondError(w, http.StatusNotImplemented, "document management not configured")
		return
	}
	id := chi.URLParam(r, "id")
	doc, err := c.Catalog.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	c := s.corpus(w, r)
	if c == nil {
		return
	}
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := c.Manager.DeleteDocument(r.Context(), id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleSearchDocuments(w http.ResponseWriter, r *http.Request) {
	c := s.corpus(w, r)
	if c == nil {
		return
	}
	if c.Catalog == nil {
		s.respondError(w, http.StatusNotImplemented, "document management not configured")
		return
	}
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	docs, err := c.Catalog.SearchMeta(r.Context(), query, limit)
	if err != nil {
		s.logger.Error("document search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	corpora := make(map[string]any, len(s.corpora))
	for name, c := range s.corpora {
		info := map[string]any{
			"state":  c.Manager.State().String(),
			"chunks": c.Manager.Size(),
		}
		if c.Catalog != nil {
			if stats, err := c.Catalog.GetStats(ctx); err == nil {
				info["documents"] = stats
			} else {
				s.logger.Error("status: catalog stats failed",
					zap.String("corpus", name), zap.Error(err))
			}
		}
		corpora[name] = info
	}
	resp := map[string]any{"corpora": corpora}
	if s.cache != nil {
		resp["cache"] = map[string]int64{
			"hits":   s.cache.Hits(),
			"misses": s.cache.Misses(),
		}
	}
	resp["config"] = map[string]any{
		"embedding_dimensions": s.cfg.Embedding.Dimensions,
		"chunk_size":           s.cfg.Chunking.ChunkSize,
		"chunk_overlap":        s.cfg.Chunking.ChunkOverlap,
		"default_k":            s.cfg.Search.DefaultK,
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
