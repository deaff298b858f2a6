package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/alfredjeanlab/discovery/internal/stats"
	"github.com/alfredjeanlab/discovery/internal/views"
)

// defaultTopQueries is the report size of GET /v1/stats/queries.
const defaultTopQueries = 10

// listSession resolves the session and list path values and marks the
// session active.
func (s *DiscoveryServer) listSession(w http.ResponseWriter, r *http.Request, action string) (*Session, string, bool) {
	sess, err := s.Session(r.PathValue("id"), action)
	if err != nil {
		writeServiceError(w, err)
		return nil, "", false
	}
	return sess, r.PathValue("pid"), true
}

// handleReassignList handles PUT /v1/sessions/{id}/lists/{pid}.
func (s *DiscoveryServer) handleReassignList(w http.ResponseWriter, r *http.Request) {
	sess, pid, ok := s.listSession(w, r, "reassign")
	if !ok {
		return
	}
	var req ListRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PaginationID == "" {
		writeError(w, http.StatusBadRequest, "pagination_id is required")
		return
	}
	if err := sess.Reassign(pid, req.PaginationID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// handleRetireList handles DELETE /v1/sessions/{id}/lists/{pid}.
func (s *DiscoveryServer) handleRetireList(w http.ResponseWriter, r *http.Request) {
	sess, pid, ok := s.listSession(w, r, "retire")
	if !ok {
		return
	}
	if err := sess.Retire(pid); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListOptions handles GET /v1/sessions/{id}/lists/{pid}/options.
func (s *DiscoveryServer) handleListOptions(w http.ResponseWriter, r *http.Request) {
	sess, pid, ok := s.listSession(w, r, "options")
	if !ok {
		return
	}
	opts, err := sess.Options(pid)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

// handleListResults handles GET /v1/sessions/{id}/lists/{pid}/results.
func (s *DiscoveryServer) handleListResults(w http.ResponseWriter, r *http.Request) {
	sess, pid, ok := s.listSession(w, r, "results")
	if !ok {
		return
	}
	out, err := sess.Outcome(pid)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleListLabels handles GET /v1/sessions/{id}/lists/{pid}/labels.
func (s *DiscoveryServer) handleListLabels(w http.ResponseWriter, r *http.Request) {
	sess, pid, ok := s.listSession(w, r, "labels")
	if !ok {
		return
	}
	labels, err := sess.Labels(pid)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if labels == nil {
		labels = []views.Label{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"labels": labels})
}

// handleRefreshList handles POST /v1/sessions/{id}/lists/{pid}/refresh.
func (s *DiscoveryServer) handleRefreshList(w http.ResponseWriter, r *http.Request) {
	sess, pid, ok := s.listSession(w, r, "refresh")
	if !ok {
		return
	}
	if err := sess.Refresh(r.Context(), pid); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleListPanels handles GET /v1/sessions/{id}/lists/{pid}/panels.
func (s *DiscoveryServer) handleListPanels(w http.ResponseWriter, r *http.Request) {
	sess, pid, ok := s.listSession(w, r, "panels")
	if !ok {
		return
	}
	open, err := sess.Panels(pid)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if open == nil {
		open = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"open": open})
}

// handleTogglePanel handles POST /v1/sessions/{id}/lists/{pid}/panels/{name}/toggle.
func (s *DiscoveryServer) handleTogglePanel(w http.ResponseWriter, r *http.Request) {
	sess, pid, ok := s.listSession(w, r, "toggle_panel")
	if !ok {
		return
	}
	name := r.PathValue("name")
	open, err := sess.TogglePanel(pid, name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "open": open})
}

// handleTopQueries handles GET /v1/stats/queries.
func (s *DiscoveryServer) handleTopQueries(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeError(w, http.StatusServiceUnavailable, "search log is not configured")
		return
	}

	window := stats.DefaultWindow
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid window")
			return
		}
		window = d
	}
	limit := defaultTopQueries
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	top, err := s.recorder.TopQueries(r.Context(), window, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"window": window.String(), "queries": top})
}
