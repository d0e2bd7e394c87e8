// Package influxdb provides InfluxDB connectivity for FlashCue Core.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health checks. FlashCue uses
// it for flash execution telemetry; the optional telemetry sink lives in the
// flash package and writes through WritePointWithTime.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WritePoint("flash_executions",
//	    map[string]string{"session_id": id, "status": "completed"},
//	    map[string]any{"elapsed_ms": 4012})
//
// # Error Handling
//
// Rejected batches are logged through SetLogger wrapped in ErrWriteFailed
// and counted in Stats. Connection and health check errors are returned
// directly.
package influxdb
