package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	// Callers treat it as "telemetry off", not as a failure.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrNotConnected     = errors.New("influxdb: not connected")

	// ErrWriteFailed wraps batch failures reported by the background writer.
	// They reach the logger only; WritePoint never returns them.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
