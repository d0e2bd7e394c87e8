package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/flashcue-core/internal/platform"
	"github.com/nerrad567/flashcue-core/internal/subscription"
)

// conditionRequest is the write shape of a trigger condition. Category
// accepts either the event type or its label.
type conditionRequest struct {
	Category string         `json:"category"`
	Scene    string         `json:"scene"`
	Element  string         `json:"element"`
	Fields   map[string]any `json:"fields"`
}

// categoryFields lists the type-specific fields a category's conditions use.
func categoryFields(c platform.Category) []string {
	switch c {
	case platform.CategoryGiftSubscription:
		return []string{subscription.FieldQuantityThreshold, subscription.FieldAllowAnonymous, subscription.FieldDurationMS}
	case platform.CategoryChatMessage:
		return []string{subscription.FieldCommandText, subscription.FieldDurationMS}
	}
	return []string{}
}

// handleListConditions returns a session's conditions in insertion order.
//
// Query parameters:
//   - category: event type or label to filter by
func (s *Server) handleListConditions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "session")
	if !ok {
		return
	}
	if _, err := s.sessions.GetTarget(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err, "failed to get target")
		return
	}

	var (
		conds []subscription.Condition
		err   error
	)
	if raw := r.URL.Query().Get("category"); raw != "" {
		if len(raw) > maxQueryParamLen {
			writeBadRequest(w, "category exceeds maximum length")
			return
		}
		cat, perr := platform.ParseCategory(raw)
		if perr != nil {
			writeBadRequest(w, "invalid category")
			return
		}
		conds = s.conditions.ConditionsFor(id, cat)
	} else {
		conds, err = s.conditions.ListConditions(r.Context(), id)
		if err != nil {
			s.writeDomainError(w, r, err, "failed to list conditions")
			return
		}
	}
	if conds == nil {
		conds = []subscription.Condition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conditions": conds, "count": len(conds)})
}

// handleCreateCondition adds a trigger condition to a session and arms
// platform delivery for its category.
//
// A platform registration failure answers 502, but the condition is kept and
// is armed again on the next connect.
func (s *Server) handleCreateCondition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "session")
	if !ok {
		return
	}

	var req conditionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	cat, err := platform.ParseCategory(req.Category)
	if err != nil {
		writeBadRequest(w, "invalid category")
		return
	}

	cond, err := s.conditions.Subscribe(r.Context(), subscription.NewCondition{
		SessionID: id,
		Category:  cat,
		Scene:     req.Scene,
		Element:   req.Element,
		Fields:    req.Fields,
	})
	if err != nil {
		if errors.Is(err, subscription.ErrSubscriptionFailed) && cond != nil {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":     Error{Status: http.StatusBadGateway, Code: ErrCodeUpstream, Message: err.Error()},
				"condition": cond,
			})
			return
		}
		s.writeDomainError(w, r, err, "failed to create condition")
		return
	}
	writeJSON(w, http.StatusCreated, cond)
}

// handleGetCondition returns a single condition by ID.
func (s *Server) handleGetCondition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "condition")
	if !ok {
		return
	}
	cond, err := s.conditions.GetCondition(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get condition")
		return
	}
	writeJSON(w, http.StatusOK, cond)
}

// handleDeleteCondition removes a condition.
func (s *Server) handleDeleteCondition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "condition")
	if !ok {
		return
	}
	if err := s.conditions.DeleteCondition(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err, "failed to delete condition")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
