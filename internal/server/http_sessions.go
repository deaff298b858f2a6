package server

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alfredjeanlab/discovery/internal/idgen"
	"github.com/alfredjeanlab/discovery/internal/presence"
	"github.com/alfredjeanlab/discovery/internal/views"
)

// NavigateRequest carries query updates. A key mapped to an empty list is
// removed from the route.
type NavigateRequest struct {
	Params map[string][]string `json:"params"`
}

// IntentRequest is a view intent aimed at one list.
type IntentRequest struct {
	PaginationID string `json:"pagination_id"`
	views.Intent
}

// URLResponse is returned by every route write.
type URLResponse struct {
	URL string `json:"url"`
}

// ListRequest names a pagination id.
type ListRequest struct {
	PaginationID string `json:"pagination_id"`
}

// handleCreateSession handles POST /v1/sessions.
func (s *DiscoveryServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := s.CreateSession(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Info())
}

// handleListSessions handles GET /v1/sessions.
func (s *DiscoveryServer) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	infos := make([]SessionInfo, 0)
	for _, id := range s.SessionIDs() {
		sess, err := s.Session(id, "")
		if err != nil {
			continue // closed meanwhile
		}
		infos = append(infos, sess.Info())
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": infos})
}

// handleGetSession handles GET /v1/sessions/{id}.
func (s *DiscoveryServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Session(r.PathValue("id"), "get")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

// handleCloseSession handles DELETE /v1/sessions/{id}.
func (s *DiscoveryServer) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.CloseSession(r.Context(), r.PathValue("id"), "closed"); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleNavigate handles POST /v1/sessions/{id}/navigate.
func (s *DiscoveryServer) handleNavigate(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Session(r.PathValue("id"), "navigate")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req NavigateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Params) == 0 {
		writeError(w, http.StatusBadRequest, "params is required")
		return
	}
	writeJSON(w, http.StatusOK, URLResponse{URL: sess.Navigate(url.Values(req.Params))})
}

// handleIntent handles POST /v1/sessions/{id}/intents.
func (s *DiscoveryServer) handleIntent(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Session(r.PathValue("id"), "intent")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req IntentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PaginationID == "" {
		writeError(w, http.StatusBadRequest, "pagination_id is required")
		return
	}
	u, err := sess.Apply(req.PaginationID, req.Intent)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, URLResponse{URL: u})
}

// handleAttachList handles POST /v1/sessions/{id}/lists. An empty
// pagination id gets a generated one.
func (s *DiscoveryServer) handleAttachList(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Session(r.PathValue("id"), "attach")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req ListRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PaginationID == "" {
		id, err := idgen.PaginationID()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		req.PaginationID = id
	}
	if err := sess.Attach(req.PaginationID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// handleRoster handles GET /v1/sessions/roster.
func (s *DiscoveryServer) handleRoster(w http.ResponseWriter, r *http.Request) {
	var stale time.Duration
	if v := r.URL.Query().Get("stale_secs"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 0 {
			writeError(w, http.StatusBadRequest, "invalid stale_secs")
			return
		}
		stale = time.Duration(secs) * time.Second
	}
	entries := s.Presence.Roster(stale)
	if entries == nil {
		entries = []presence.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": entries})
}
