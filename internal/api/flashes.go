package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/flashcue-core/internal/flash"
)

// flashRequest is a manual test flash. Scene defaults to the active scene
// and DurationMS to the configured flash duration.
type flashRequest struct {
	Scene      string `json:"scene"`
	Element    string `json:"element"`
	DurationMS int    `json:"duration_ms"`
}

// handleFlash runs one flash on the element's lane and waits for it.
//
// The response carries the execution record whatever its status; only
// requests that never ran answer with an error.
func (s *Server) handleFlash(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "session")
	if !ok {
		return
	}

	var req flashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DurationMS < 0 {
		writeBadRequest(w, "duration_ms cannot be negative")
		return
	}

	sess, err := s.sessions.Get(id)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get session")
		return
	}

	scene := strings.TrimSpace(req.Scene)
	if scene == "" {
		scene = sess.ActiveScene()
	}
	duration := s.flashDuration
	if req.DurationMS > 0 {
		duration = time.Duration(req.DurationMS) * time.Millisecond
	}

	exec, err := s.executor.Run(r.Context(), flash.ActionRequest{
		SessionID: id,
		Scene:     scene,
		Element:   strings.TrimSpace(req.Element),
		Duration:  duration,
	})
	if exec != nil {
		writeJSON(w, http.StatusOK, exec)
		return
	}
	s.writeDomainError(w, r, err, "failed to run flash")
}

// handleListFlashes returns a session's recent flash outcomes, newest first.
//
// Query parameters:
//   - limit: maximum records (default 50, max 500)
func (s *Server) handleListFlashes(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "session")
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	if s.history == nil {
		writeJSON(w, http.StatusOK, map[string]any{"flashes": []flash.Execution{}, "count": 0})
		return
	}
	execs, err := s.history.ListBySession(r.Context(), id, limit)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to list flashes")
		return
	}
	if execs == nil {
		execs = []flash.Execution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"flashes": execs, "count": len(execs)})
}
