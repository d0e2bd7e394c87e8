package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/flashcue-core/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// sourceTag is added to every point so FlashCue series can be told apart
// in a shared bucket.
const sourceTag = "flashcue-core"

// Logger is the logging surface the client needs.
type Logger interface {
	Error(msg string, args ...any)
}

// Stats counts points handed to the client.
type Stats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed_batches"`
}

// Client is the flash telemetry sink.
//
// Points are queued on the library's batching writer and never block the
// caller. A zero Client is disconnected and drops every point, which lets
// callers hold one unconditionally.
type Client struct {
	influx influxdb2.Client
	writer api.WriteAPI
	cfg    config.InfluxDBConfig

	open atomic.Bool

	logMu  sync.RWMutex
	logger Logger

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// Connect pings the server and starts the batching writer for cfg.Bucket.
//
// Returns:
//   - *Client: open client
//   - error: ErrDisabled when turned off, ErrConnectionFailed when the
//     server does not answer healthy within connectTimeout
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, influx); err != nil {
		influx.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{
		influx: influx,
		writer: influx.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:    cfg,
	}
	c.open.Store(true)
	go c.watchFailures(c.writer.Errors())
	return c, nil
}

// clientOptions maps the config onto library options. Flash points carry
// millisecond timestamps.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch, flush := writeOptions(cfg)
	// #nosec G115 -- writeOptions returns positive values
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flush)*1000).
		SetPrecision(time.Millisecond).
		AddDefaultTag("source", sourceTag)
}

// writeOptions returns the batch size and flush interval in seconds, with
// defaults for non-positive values.
func writeOptions(cfg config.InfluxDBConfig) (batch, flush int) {
	batch, flush = cfg.BatchSize, cfg.FlushInterval
	if batch <= 0 {
		batch = defaultBatchSize
	}
	if flush <= 0 {
		flush = defaultFlushInterval
	}
	return batch, flush
}

func ping(ctx context.Context, influx influxdb2.Client) error {
	healthy, err := influx.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return errors.New("server reports unhealthy")
	}
	return nil
}

// watchFailures drains the writer's error channel until the library
// closes it.
func (c *Client) watchFailures(errs <-chan error) {
	for err := range errs {
		c.failed.Add(1)
		c.logMu.RLock()
		l := c.logger
		c.logMu.RUnlock()
		if l != nil {
			l.Error("flash telemetry batch rejected", "bucket", c.cfg.Bucket, "error", fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// SetLogger sets where rejected batches are reported.
func (c *Client) SetLogger(l Logger) {
	c.logMu.Lock()
	c.logger = l
	c.logMu.Unlock()
}

// Close flushes queued points and shuts the writer down. Points written
// after Close are dropped.
func (c *Client) Close() error {
	if !c.open.Swap(false) {
		return nil
	}
	c.writer.Flush()
	c.influx.Close()
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.influx); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// IsConnected reports whether the client is open.
func (c *Client) IsConnected() bool {
	return c.open.Load()
}

// Stats returns the point counters.
func (c *Client) Stats() Stats {
	return Stats{
		Written: c.written.Load(),
		Dropped: c.dropped.Load(),
		Failed:  c.failed.Load(),
	}
}

// Flush pushes queued points out now. A no-op once closed.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writer.Flush()
	}
}
