package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/flashcue-core/internal/session"
)

// maxQueryParamLen limits query parameter length to prevent DoS via oversized URL params.
const maxQueryParamLen = 100

// targetRequest is the write shape of a target. Password is write-only.
type targetRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
}

// targetView is a redacted target with its connection state.
type targetView struct {
	session.Target
	State       session.State `json:"state"`
	HasPassword bool          `json:"has_password"`
}

func (s *Server) viewTarget(r *http.Request, t session.Target) targetView {
	state, err := s.sessions.Status(r.Context(), t.ID)
	if err != nil {
		state = session.StateConfigured
	}
	return targetView{Target: t.Redacted(), State: state, HasPassword: t.Password != ""}
}

// pathID extracts and bounds the {id} URL parameter.
func pathID(w http.ResponseWriter, r *http.Request, what string) (string, bool) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid "+what+" ID")
		return "", false
	}
	return id, true
}

// handleListTargets returns every configured target.
func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.sessions.ListTargets(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err, "failed to list targets")
		return
	}
	out := make([]targetView, 0, len(targets))
	for _, t := range targets {
		out = append(out, s.viewTarget(r, t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"targets": out, "count": len(out)})
}

// handleCreateTarget persists a new target. It is not connected.
func (s *Server) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	t := session.Target{ID: req.ID, Name: req.Name, Host: req.Host, Port: req.Port, Password: req.Password}
	if err := s.sessions.CreateTarget(r.Context(), &t); err != nil {
		s.writeDomainError(w, r, err, "failed to create target")
		return
	}
	writeJSON(w, http.StatusCreated, s.viewTarget(r, t))
}

// handleGetTarget returns a single target by ID.
func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "target")
	if !ok {
		return
	}
	t, err := s.sessions.GetTarget(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get target")
		return
	}
	writeJSON(w, http.StatusOK, s.viewTarget(r, *t))
}

// handleUpdateTarget replaces a target's settings. An empty password keeps
// the stored one. A live session picks the change up on its next connect.
func (s *Server) handleUpdateTarget(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "target")
	if !ok {
		return
	}

	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	existing, err := s.sessions.GetTarget(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get target")
		return
	}

	existing.Name = req.Name
	existing.Host = req.Host
	existing.Port = req.Port
	if req.Password != "" {
		existing.Password = req.Password
	}
	if err := s.sessions.UpdateTarget(r.Context(), existing); err != nil {
		s.writeDomainError(w, r, err, "failed to update target")
		return
	}
	writeJSON(w, http.StatusOK, s.viewTarget(r, *existing))
}

// handleDeleteTarget disconnects and removes a target and its conditions.
func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "target")
	if !ok {
		return
	}
	if err := s.sessions.DeleteTarget(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err, "failed to delete target")
		return
	}
	s.conditions.ForgetSession(id)
	w.WriteHeader(http.StatusNoContent)
}

// handleConnectTarget opens a live session for the target.
func (s *Server) handleConnectTarget(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "target")
	if !ok {
		return
	}
	sess, err := s.sessions.Connect(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to connect target")
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

// handleDisconnectTarget closes the target's live session.
func (s *Server) handleDisconnectTarget(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "target")
	if !ok {
		return
	}
	if err := s.sessions.Disconnect(id); err != nil {
		s.writeDomainError(w, r, err, "failed to disconnect target")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "state": session.StateConfigured})
}
