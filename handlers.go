package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"
)

const apiVersion = "1.0.0"

var debugEnabled bool

// SetDebugMode enables or disables debug logging.
func SetDebugMode(enabled bool) {
	debugEnabled = enabled
}

func debugLog(format string, args ...interface{}) {
	if debugEnabled {
		log.Printf("[DEBUG] "+format, args...)
	}
}

// Server owns the HTTP surface and holds the injected service objects.
// No state is shared across requests beyond the clients themselves.
type Server struct {
	search   *SearchClient
	fetcher  *ArticleFetcher
	analyzer *ClaimsAnalyzer
	pipeline *Pipeline
	mux      *http.ServeMux
}

// NewServer wires routes onto the injected clients.
func NewServer(search *SearchClient, fetcher *ArticleFetcher, analyzer *ClaimsAnalyzer, pipeline *Pipeline) *Server {
	s := &Server{
		search:   search,
		fetcher:  fetcher,
		analyzer: analyzer,
		pipeline: pipeline,
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /{$}", s.handleHome)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/search-news", s.handleSearchNews)
	s.mux.HandleFunc("POST /api/analyze-bias", s.handleAnalyzeBias)
	s.mux.HandleFunc("POST /api/fetch-article", s.handleFetchArticle)
	s.mux.HandleFunc("POST /api/fetch-articles", s.handleFetchArticles)
	s.mux.HandleFunc("POST /api/validate-url", s.handleValidateURL)
	s.mux.HandleFunc("POST /api/article-bias-analysis", s.handleArticleBiasAnalysis)
	s.mux.HandleFunc("POST /api/search-and-fetch", s.handleSearchAndFetch)
	s.mux.HandleFunc("POST /api/search-and-fetch-stream", s.handleSearchAndFetchStream)
	s.mux.HandleFunc("/", s.handleNotFound)

	return s
}

// Handler returns the route tree wrapped with CORS headers.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("✗ Writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, errName, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errName,
		"message": message,
	})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &ValidationError{Field: "body", Reason: "invalid JSON"}
	}
	return nil
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message":   "Welcome to News Bias Detector API",
		"status":    "Server is running successfully!",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"api":     "News Bias Detector API",
		"version": apiVersion,
		"status":  "active",
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error":   "Route not found",
		"message": fmt.Sprintf("The route %s does not exist", r.URL.Path),
	})
}

// searchNewsRequest accepts queries as either a string or an array.
type searchNewsRequest struct {
	Queries json.RawMessage `json:"queries"`
	Options map[string]any  `json:"options"`
}

// coerceQueries decodes a string-or-array queries field.
func coerceQueries(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, &ValidationError{Field: "queries", Reason: "Queries parameter is required"}
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many, nil
	}
	return nil, &ValidationError{Field: "queries", Reason: "Queries must be a string or an array of strings"}
}

func (s *Server) handleSearchNews(w http.ResponseWriter, r *http.Request) {
	var req searchNewsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	queries, err := coerceQueries(req.Queries)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "Queries parameter is required")
		return
	}

	results, err := s.search.SearchNews(r.Context(), queries, req.Options)
	if err != nil {
		log.Printf("✗ Searching news: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to search news articles")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(results),
		"data":    results,
	})
}

func (s *Server) handleAnalyzeBias(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic      string `json:"topic"`
		MaxResults int    `json:"maxResults"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Topic == "" {
		writeError(w, http.StatusBadRequest, "Bad Request", "Topic parameter is required")
		return
	}
	if req.MaxResults == 0 {
		req.MaxResults = 50
	}

	results, err := s.search.SearchForBiasAnalysis(r.Context(), req.Topic, req.MaxResults)
	if err != nil {
		log.Printf("✗ Fetching articles for bias analysis: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to fetch articles for bias analysis")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"topic":   req.Topic,
		"count":   len(results),
		"data":    results,
		"message": "Articles retrieved for bias analysis",
	})
}

func (s *Server) handleFetchArticle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "Bad Request", "URL parameter is required")
		return
	}

	validation := s.fetcher.ValidateURL(r.Context(), req.URL)
	if !validation.Valid {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "Invalid URL",
			"message": validation.Error,
			"url":     req.URL,
		})
		return
	}

	record := s.fetcher.FetchOne(r.Context(), req.URL)
	if !record.Success {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "Article Fetch Failed",
			"message": record.Error,
			"url":     req.URL,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    record,
	})
}

func (s *Server) handleFetchArticles(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URLs []string `json:"urls"`
	}
	if err := decodeJSON(r, &req); err != nil || req.URLs == nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "URLs parameter is required")
		return
	}
	if len(req.URLs) > 10 {
		writeError(w, http.StatusBadRequest, "Bad Request", "Maximum 10 URLs allowed per request")
		return
	}

	records := s.fetcher.FetchMany(r.Context(), req.URLs)
	successful, failed := partitionRecords(records)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":             true,
		"total_requested":     len(req.URLs),
		"successful_count":    len(successful),
		"failed_count":        len(failed),
		"successful_articles": successful,
		"failed_articles":     failed,
	})
}

func (s *Server) handleValidateURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "Bad Request", "URL parameter is required")
		return
	}

	writeJSON(w, http.StatusOK, s.fetcher.ValidateURL(r.Context(), req.URL))
}

func (s *Server) handleArticleBiasAnalysis(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "Bad Request", "URL parameter is required")
		return
	}

	article, failedRecord := s.fetcher.FetchForBiasAnalysis(r.Context(), req.URL)
	if failedRecord != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "Article Processing Failed",
			"message": failedRecord.Error,
			"url":     req.URL,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    article,
	})
}

func (s *Server) handleSearchAndFetch(w http.ResponseWriter, r *http.Request) {
	var req SearchAndFetchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	result, err := s.pipeline.Run(r.Context(), req)
	if err != nil {
		log.Printf("✗ Search and fetch: %v", err)
		switch {
		case errors.Is(err, ErrNoSearchResults):
			writeError(w, http.StatusNotFound, "No Results", err.Error())
		case errors.Is(err, ErrNoURLs):
			writeError(w, http.StatusBadRequest, "No URLs", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleSearchAndFetchStream runs the pipeline over Server-Sent Events.
// Each event is one JSON object tagged by type; the connection's context
// stops the pipeline when the client goes away.
func (s *Server) handleSearchAndFetchStream(w http.ResponseWriter, r *http.Request) {
	var req SearchAndFetchRequest
	// An empty body is allowed; every field has a default.
	_ = json.NewDecoder(r.Body).Decode(&req)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx := r.Context()
	emit := func(ev StreamEvent) bool {
		if ctx.Err() != nil {
			return false
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Printf("✗ Marshaling stream event: %v", err)
			return true
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		return true
	}

	s.pipeline.RunStream(ctx, req, emit)
	debugLog("stream finished for %s", r.RemoteAddr)
}
