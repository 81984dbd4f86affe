package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/emitter-go/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	fallbackBatchSize     = 100
	fallbackFlushInterval = 10 * time.Second
)

// Source identifies the Emitter connection whose traffic is recorded.
// Non-empty fields become default tags on every point, so several clients
// can share one bucket.
type Source struct {
	// ClientID is the MQTT client identifier, tagged as "client_id".
	ClientID string
	// Broker is the broker URL, tagged as "broker".
	Broker string
}

func (s Source) tags() map[string]string {
	tags := make(map[string]string, 2)
	if s.ClientID != "" {
		tags["client_id"] = s.ClientID
	}
	if s.Broker != "" {
		tags["broker"] = s.Broker
	}
	return tags
}

// Client records Emitter traffic metrics in InfluxDB v2.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Writes are batched and never block the caller.
//   - A nil *Client accepts every write and records nothing.
type Client struct {
	influx influxdb2.Client
	writer api.WriteAPI
	source Source

	mu      sync.RWMutex
	open    bool
	onError func(err error)
}

// Connect opens a batched writer for cfg.Bucket and checks that the server
// answers a ping. Points are tagged with src.
//
// Returns ErrDisabled when cfg.Enabled is false.
func Connect(ctx context.Context, cfg config.InfluxDBConfig, src Source) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg, src))

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := ping(pingCtx, influx); err != nil {
		influx.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		influx: influx,
		writer: influx.WriteAPI(cfg.Org, cfg.Bucket),
		source: src,
		open:   true,
	}
	go c.forwardErrors(c.writer.Errors())

	return c, nil
}

// writeOptions applies batching from cfg, falling back to sane values for
// unset fields, and attaches src as default tags.
func writeOptions(cfg config.InfluxDBConfig, src Source) *influxdb2.Options {
	batch := uint(fallbackBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize) // #nosec G115 -- checked positive
	}
	flush := fallbackFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds())) // #nosec G115 -- positive duration
	for k, v := range src.tags() {
		opts.AddDefaultTag(k, v)
	}
	return opts
}

func ping(ctx context.Context, influx influxdb2.Client) error {
	healthy, err := influx.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !healthy {
		return ErrUnhealthy
	}
	return nil
}

func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()

		if callback != nil {
			callback(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// Source returns the identity points are tagged with.
func (c *Client) Source() Source {
	if c == nil {
		return Source{}
	}
	return c.source
}

// Close flushes buffered points and releases the connection. Safe to call
// on a nil client and more than once.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	wasOpen := c.open
	c.open = false
	c.mu.Unlock()

	if wasOpen {
		c.writer.Flush()
		c.influx.Close()
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return ping(checkCtx, c.influx)
}

// IsConnected reports whether the client is open for writes.
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// SetOnError sets the callback for failed batch writes. Errors passed to
// it wrap ErrWriteFailed.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// Flush blocks until buffered points are written. No-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writer.Flush()
}
