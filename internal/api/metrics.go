package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/flashcue-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/flashcue-core/internal/platform"
	"github.com/nerrad567/flashcue-core/internal/sidecar"
)

// Metrics is the /metrics response.
type Metrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	Sessions      SessionMetrics   `json:"sessions"`
	Conditions    ConditionMetrics `json:"conditions"`
	WebSocket     HubStats         `json:"websocket"`
	MQTT          *mqtt.Stats      `json:"mqtt,omitempty"`
	Sidecars      SidecarMetrics   `json:"sidecars"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// SessionMetrics counts live scene-control sessions.
type SessionMetrics struct {
	Live      int `json:"live"`
	WithScene int `json:"with_active_scene"`
}

// ConditionMetrics covers live sessions only. Armed counts the
// (session, category) pairs with an active platform registration.
type ConditionMetrics struct {
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"by_category"`
	Armed      int            `json:"armed"`
}

// SidecarMetrics summarises supervised bridge processes.
type SidecarMetrics struct {
	Total    int `json:"total"`
	Running  int `json:"running"`
	Restarts int `json:"restarts"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics reports runtime, session, condition, hub and sidecar state.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	m := Metrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / 1024 / 1024,
			NumGC:         mem.NumGC,
		},
		Conditions: ConditionMetrics{ByCategory: make(map[string]int)},
		WebSocket:  s.hub.Stats(),
	}

	for _, info := range s.sessions.List() {
		m.Sessions.Live++
		if info.ActiveScene != "" {
			m.Sessions.WithScene++
		}
		for _, cat := range platform.Categories() {
			n := len(s.conditions.ConditionsFor(info.ID, cat))
			m.Conditions.Total += n
			m.Conditions.ByCategory[string(cat)] += n
			if s.conditions.IsActive(info.ID, cat) {
				m.Conditions.Armed++
			}
		}
	}

	if s.mqtt != nil {
		st := s.mqtt.Stats()
		m.MQTT = &st
	}

	if s.sidecars != nil {
		for _, st := range s.sidecars.Stats() {
			m.Sidecars.Total++
			m.Sidecars.Restarts += st.Restarts
			if st.Status == sidecar.StatusRunning {
				m.Sidecars.Running++
			}
		}
	}

	if s.db != nil {
		st := s.db.Stats()
		m.Database = &DatabaseMetrics{
			OpenConnections: st.OpenConnections,
			InUse:           st.InUse,
			WaitCount:       st.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, m)
}
