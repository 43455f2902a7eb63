package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-twin/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Client writes points to one InfluxDB bucket.
//
// Thread Safety: All methods are safe for concurrent use. Writes never
// block on the network.
type Client struct {
	conn   influxdb2.Client
	writer api.WriteAPI
	bucket string
	closed atomic.Bool

	mu      sync.RWMutex
	onError func(err error)
}

// clientOptions translates the config section into influxdb2 options.
// Non-positive batch settings fall back to the defaults.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds())). //nolint:gosec // positive by construction
		SetPrecision(time.Millisecond)
}

// Connect pings the server described by cfg and opens a batched write API
// on cfg.Bucket.
//
// Parameters:
//   - cfg: InfluxDB section of the configuration
//
// Returns:
//   - *Client: Ready client; Close flushes and releases it
//   - error: ErrDisabled, or ErrConnectionFailed wrapping the cause
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	conn := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := ping(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		conn:   conn,
		writer: conn.WriteAPI(cfg.Org, cfg.Bucket),
		bucket: cfg.Bucket,
	}
	go c.forwardErrors(c.writer.Errors())
	return c, nil
}

func ping(ctx context.Context, conn influxdb2.Client) error {
	ok, err := conn.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnhealthy
	}
	return nil
}

// forwardErrors drains the write API's error channel until the connection
// is closed. The channel must be drained or the write API stalls.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		cb := c.onError
		c.mu.RUnlock()
		if cb != nil {
			cb(fmt.Errorf("influxdb: writing to %s: %w", c.bucket, err))
		}
	}
}

// SetOnError sets the callback for asynchronous write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	c.onError = callback
	c.mu.Unlock()
}

// Write queues a point. It is dropped silently once the client is closed.
func (c *Client) Write(p *write.Point) {
	if c.writer == nil || c.closed.Load() {
		return
	}
	c.writer.WritePoint(p)
}

// Flush sends queued points and waits for the batch to be handed to the
// server.
func (c *Client) Flush() {
	if c.writer == nil || c.closed.Load() {
		return
	}
	c.writer.Flush()
}

// HealthCheck pings the server.
//
// Returns:
//   - error: ErrNotConnected after Close, the ping failure, or nil
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.conn == nil || c.closed.Load() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.conn); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Close flushes queued points and closes the connection. Later calls do
// nothing.
func (c *Client) Close() error {
	if c == nil || c.conn == nil || c.closed.Swap(true) {
		return nil
	}
	c.writer.Flush()
	c.conn.Close()
	return nil
}
