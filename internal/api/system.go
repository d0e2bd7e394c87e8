package api

import (
	"net/http"

	"github.com/nerrad567/flashcue-core/internal/platform"
	"github.com/nerrad567/flashcue-core/internal/sidecar"
)

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"version": s.version,
	}
	if s.mqtt != nil {
		body["mqtt_connected"] = s.mqtt.IsConnected()
	}
	writeJSON(w, http.StatusOK, body)
}

// categoryView is one supported platform event category.
type categoryView struct {
	Type   platform.Category `json:"type"`
	Label  string            `json:"label"`
	Fields []string          `json:"fields"`
}

// handleListCategories lists the event categories conditions can use, with
// the type-specific fields each expects.
func (s *Server) handleListCategories(w http.ResponseWriter, _ *http.Request) {
	cats := platform.Categories()
	out := make([]categoryView, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryView{Type: c, Label: c.Label(), Fields: categoryFields(c)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": out, "count": len(out)})
}

// handleListSidecars reports the supervised bridge processes.
func (s *Server) handleListSidecars(w http.ResponseWriter, _ *http.Request) {
	stats := []sidecar.Stats{}
	if s.sidecars != nil {
		stats = s.sidecars.Stats()
	}
	writeJSON(w, http.StatusOK, map[string]any{"sidecars": stats, "count": len(stats)})
}
