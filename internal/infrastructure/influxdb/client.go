package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/ak085/bacpipes/internal/infrastructure/config"
)

// Connection constants.
const (
	// pingTimeout bounds the startup and health-check pings.
	pingTimeout = 5 * time.Second
)

// Write option bounds. The batch buffer is in-memory: a runaway batch_size
// would trade reading durability for RAM, so it is capped rather than
// trusted.
const (
	defaultBatchSize     = 100
	maxBatchSize         = 50_000
	defaultFlushSeconds  = 10
	maxFlushSeconds      = 300
	millisecondsPerSecond = 1000
)

// Client is the sink's insert path into InfluxDB: non-blocking, batched
// writes of sensor readings, with async errors surfaced via callback.
//
// Thread Safety: all methods are safe for concurrent use; the MQTT
// dispatcher calls WriteSensorReading from paho goroutines.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	// closed flips once; writes after Close are silently dropped so a
	// slow shutdown never panics the MQTT dispatcher.
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	// onError receives async batch-write failures.
	onError   func(err error)
	onErrorMu sync.Mutex
}

// Connect builds the client and verifies the server before any reading is
// accepted.
//
// The write path is configured non-blocking: WriteSensorReading enqueues,
// the library batches and flushes per the validated options, and failed
// batches come back on the error callback. The sink deliberately does not
// retry failed batches itself — a reading missed is a gap in a series, not
// a lost command.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize, flushSeconds, err := writeOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushSeconds)*millisecondsPerSecond))

	if err := verifyServer(ctx, client); err != nil {
		client.Close()
		return nil, err
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		done:     make(chan struct{}),
	}

	go c.watchWriteErrors(c.writeAPI.Errors())

	return c, nil
}

// writeOptions validates and defaults the batching configuration.
func writeOptions(cfg config.InfluxDBConfig) (batchSize, flushSeconds int, err error) {
	batchSize = cfg.BatchSize
	switch {
	case batchSize <= 0:
		batchSize = defaultBatchSize
	case batchSize > maxBatchSize:
		return 0, 0, fmt.Errorf("%w: batch_size %d exceeds %d", ErrInvalidWriteOptions, batchSize, maxBatchSize)
	}

	flushSeconds = cfg.FlushInterval
	switch {
	case flushSeconds <= 0:
		flushSeconds = defaultFlushSeconds
	case flushSeconds > maxFlushSeconds:
		return 0, 0, fmt.Errorf("%w: flush_interval %ds exceeds %ds", ErrInvalidWriteOptions, flushSeconds, maxFlushSeconds)
	}

	return batchSize, flushSeconds, nil
}

// verifyServer pings with a hard timeout, even under a non-cancellable
// caller context.
func verifyServer(ctx context.Context, client influxdb2.Client) error {
	if ctx == nil {
		ctx = context.Background()
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		return fmt.Errorf("%w: ping answered unhealthy", ErrConnectionFailed)
	}
	return nil
}

// watchWriteErrors forwards async batch failures to the callback until the
// client closes.
func (c *Client) watchWriteErrors(errorsCh <-chan error) {
	for {
		select {
		case <-c.done:
			return
		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			c.onErrorMu.Lock()
			callback := c.onError
			c.onErrorMu.Unlock()
			if callback != nil {
				callback(err)
			}
		}
	}
}

// SetOnError registers the async write-failure callback.
// The sink wires this to its logger; without a callback failures are
// dropped silently.
func (c *Client) SetOnError(callback func(err error)) {
	c.onErrorMu.Lock()
	c.onError = callback
	c.onErrorMu.Unlock()
}

// IsOpen reports whether the client still accepts readings.
func (c *Client) IsOpen() bool {
	return c.client != nil && !c.closed.Load()
}

// Flush forces buffered readings out. Used before shutdown and by tests;
// a no-op on a closed or zero client.
func (c *Client) Flush() {
	if !c.IsOpen() || c.writeAPI == nil {
		return
	}
	c.writeAPI.Flush()
}

// HealthCheck actively pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsOpen() {
		return ErrClosed
	}
	return verifyServer(ctx, c.client)
}

// Close drains and shuts down.
//
// Order matters: the final Flush runs while the error watcher is still
// alive, so failures in the last batch still reach the callback; only
// then does the watcher stop and the connection close.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.client == nil {
			c.closed.Store(true)
			return
		}

		if c.writeAPI != nil {
			c.writeAPI.Flush()
		}
		c.closed.Store(true)

		close(c.done)
		c.client.Close()
	})
	return nil
}
