package flash

import "time"

// MeasurementFlash is the time-series measurement for flash outcomes.
const MeasurementFlash = "flash_executions"

// PointWriter writes one time-series point. *influxdb.Client satisfies it.
type PointWriter interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time)
}

// PointTelemetry turns executions into time-series points.
type PointTelemetry struct {
	w PointWriter
}

// NewPointTelemetry creates a Telemetry sink over w.
func NewPointTelemetry(w PointWriter) *PointTelemetry {
	return &PointTelemetry{w: w}
}

// WriteFlash writes one point stamped at the flash start. Element names stay
// in fields to keep tag cardinality bounded.
func (t *PointTelemetry) WriteFlash(exec *Execution) {
	tags := map[string]string{
		"session_id": exec.SessionID,
		"status":     string(exec.Status),
	}
	if exec.FailedStep != "" {
		tags["failed_step"] = string(exec.FailedStep)
	}

	fields := map[string]any{
		"element":     exec.Element,
		"scene":       exec.Scene,
		"duration_ms": int64(exec.DurationMS),
		"elapsed_ms":  exec.Elapsed().Milliseconds(),
		"triggered":   exec.ConditionID != "",
	}

	t.w.WritePointWithTime(MeasurementFlash, tags, fields, exec.StartedAt)
}
