package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// handleListSessions returns every live session.
func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	infos := s.sessions.List()
	writeJSON(w, http.StatusOK, map[string]any{"sessions": infos, "count": len(infos)})
}

// handleGetSession returns one live session.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "session")
	if !ok {
		return
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

// handleSetActiveScene selects the scene chat triggers resolve against.
// An empty scene clears it.
func (s *Server) handleSetActiveScene(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "session")
	if !ok {
		return
	}

	var req struct {
		Scene string `json:"scene"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.sessions.SetActiveScene(id, strings.TrimSpace(req.Scene)); err != nil {
		s.writeDomainError(w, r, err, "failed to set active scene")
		return
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

// handleListElements lists the elements of a scene on a live session.
//
// Query parameters:
//   - scene: scene to list; defaults to the active scene
func (s *Server) handleListElements(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "session")
	if !ok {
		return
	}
	scene := strings.TrimSpace(r.URL.Query().Get("scene"))
	if len(scene) > maxQueryParamLen {
		writeBadRequest(w, "scene exceeds maximum length")
		return
	}

	sess, err := s.sessions.Get(id)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get session")
		return
	}
	if scene == "" {
		scene = sess.ActiveScene()
	}
	if scene == "" {
		writeJSON(w, http.StatusOK, map[string]any{"scene": "", "elements": []string{}, "count": 0})
		return
	}

	elements, err := sess.ListElements(r.Context(), scene)
	if err != nil {
		s.logger.Warn("listing scene elements failed", "session_id", id, "scene", scene, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, "listing scene elements failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scene": scene, "elements": elements, "count": len(elements)})
}
