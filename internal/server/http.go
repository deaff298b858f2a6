package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/alfredjeanlab/discovery/internal/model"
	"github.com/alfredjeanlab/discovery/internal/retrieve"
	"github.com/alfredjeanlab/discovery/internal/search"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthTimeout bounds the upstream check of GET /v1/health.
const healthTimeout = 2 * time.Second

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *DiscoveryServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleCloseSession)
	mux.HandleFunc("POST /v1/sessions/{id}/navigate", s.handleNavigate)
	mux.HandleFunc("POST /v1/sessions/{id}/intents", s.handleIntent)
	mux.HandleFunc("GET /v1/sessions/{id}/stream", s.handleSessionStream)
	mux.HandleFunc("POST /v1/sessions/{id}/lists", s.handleAttachList)
	mux.HandleFunc("PUT /v1/sessions/{id}/lists/{pid}", s.handleReassignList)
	mux.HandleFunc("DELETE /v1/sessions/{id}/lists/{pid}", s.handleRetireList)
	mux.HandleFunc("GET /v1/sessions/{id}/lists/{pid}/options", s.handleListOptions)
	mux.HandleFunc("GET /v1/sessions/{id}/lists/{pid}/results", s.handleListResults)
	mux.HandleFunc("GET /v1/sessions/{id}/lists/{pid}/labels", s.handleListLabels)
	mux.HandleFunc("POST /v1/sessions/{id}/lists/{pid}/refresh", s.handleRefreshList)
	mux.HandleFunc("GET /v1/sessions/{id}/lists/{pid}/panels", s.handleListPanels)
	mux.HandleFunc("POST /v1/sessions/{id}/lists/{pid}/panels/{name}/toggle", s.handleTogglePanel)
	mux.HandleFunc("GET /v1/sessions/roster", s.handleRoster)
	mux.HandleFunc("GET /v1/stats/queries", s.handleTopQueries)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return RequestMiddleware(s.logger, s.metrics, AuthMiddleware(authToken, mux))
}

// handleHealth handles GET /v1/health. The server is healthy even when the
// upstream API is not; its state is reported alongside.
func (s *DiscoveryServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	upstream, err := s.client.Health(ctx)
	if err != nil {
		upstream = "unavailable"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "upstream": upstream})
}

// statusForError maps pipeline errors onto HTTP status codes.
func statusForError(err error) int {
	var inErr inputError
	var valErr *model.ValidationError
	switch {
	case errors.As(err, &inErr), errors.As(err, &valErr):
		return http.StatusBadRequest
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrListNotFound),
		errors.Is(err, search.ErrUnknownPaginationID):
		return http.StatusNotFound
	case errors.Is(err, retrieve.ErrNothingToRefresh):
		return http.StatusConflict
	case errors.Is(err, search.ErrClosed),
		errors.Is(err, retrieve.ErrClosed),
		errors.Is(err, ErrServerClosed):
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

// writeServiceError writes err with the status statusForError assigns it.
func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err.Error())
}

// decodeJSON decodes the request body into v, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
