package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ak085/bacpipes/internal/infrastructure/config"
)

// Connection behaviour constants.
const (
	// connectTimeout bounds the initial broker handshake. Startup blocks
	// on it; reconnects do not.
	connectTimeout = 10 * time.Second

	// opTimeout bounds publish/subscribe acknowledgments. Longer than a
	// tick would let a wedged broker stall the poll loop, so it stays
	// comfortably under the 5 s tick.
	opTimeout = 4 * time.Second

	// keepAlive is the PINGREQ interval; the broker drops us after 1.5×.
	keepAlive = 60 * time.Second

	// disconnectQuiesce is how long Close waits for in-flight messages,
	// in milliseconds (paho's unit).
	disconnectQuiesce = 1000
)

// Logger is the logging surface the client needs.
// Satisfied by *logging.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MessageHandler is the callback signature for received messages.
//
// Paho invokes handlers on its own goroutines; handlers must not block for
// long (the worker's command handler only parses and enqueues). A returned
// error is logged and does not affect acknowledgment.
type MessageHandler func(topic string, payload []byte) error

// subscription remembers one registration so it can be replayed after the
// broker comes back. Clean-session connections (which the worker uses, per
// the polling engine's at-most-once semantics) lose all subscriptions on
// every reconnect, so replay is not optional.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// statusMessage is the retained online/offline announcement on
// bacnet/system/status. The broker publishes the "connection_lost" variant
// as our Last Will when the worker dies without a graceful close.
type statusMessage struct {
	Status    string `json:"status"`
	ClientID  string `json:"clientId"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Client is the worker's MQTT connection: readings out, write commands in,
// a retained status topic for liveness.
//
// Thread Safety: all methods are safe for concurrent use. Each subsystem
// (engine, sink) holds its own Client so their subscriptions and LWTs stay
// independent.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	logger Logger

	mu            sync.Mutex
	subscriptions []subscription
	online        bool
}

// Connect dials the broker and blocks until the first connection succeeds
// or times out.
//
// The connection carries:
//   - clean session (no broker-side state between runs)
//   - auto-reconnect between the configured initial and max delays
//   - a retained LWT on bacnet/system/status so an ungraceful death is
//     visible to every status subscriber
//
// On every (re)connect the client replays its subscriptions and publishes
// a retained "online" status.
func Connect(cfg config.MQTTConfig, logger Logger) (*Client, error) {
	c := &Client{cfg: cfg, logger: logger}

	c.client = pahomqtt.NewClient(c.clientOptions())
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: no answer from %s:%d within %v",
			ErrConnectionFailed, cfg.Broker.Host, cfg.Broker.Port, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously; mark online here so the
	// first publishes of the startup sequence are not rejected.
	c.mu.Lock()
	c.online = true
	c.mu.Unlock()

	return c, nil
}

// clientOptions assembles the paho options for this worker's connection
// profile.
func (c *Client) clientOptions() *pahomqtt.ClientOptions {
	broker := c.cfg.Broker
	scheme := "tcp"
	if broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, broker.Host, broker.Port)).
		SetClientID(broker.ClientID).
		SetCleanSession(true).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(c.cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(c.cfg.Reconnect.MaxDelay) * time.Second)

	if c.cfg.Auth.Username != "" {
		opts.SetUsername(c.cfg.Auth.Username)
		opts.SetPassword(c.cfg.Auth.Password)
	}
	if broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	// Last Will: delivered by the broker when the connection dies without
	// a DISCONNECT. Retained so late subscribers see the crash.
	opts.SetWill(TopicSystemStatus, string(c.statusPayload("offline", "connection_lost")), 1, true)

	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleConnectionLost(err) })

	return opts
}

// handleConnect runs on the initial connection and every reconnect:
// replay subscriptions, then announce ourselves.
func (c *Client) handleConnect() {
	c.mu.Lock()
	c.online = true
	subs := make([]subscription, len(c.subscriptions))
	copy(subs, c.subscriptions)
	c.mu.Unlock()

	for _, sub := range subs {
		token := c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
		if token.WaitTimeout(opTimeout) && token.Error() == nil {
			continue
		}
		// A lost subscription after failover is a real outage for the
		// write pipeline; say so loudly and let the next reconnect retry.
		c.logError("mqtt re-subscription failed", "topic", sub.topic, "error", token.Error())
	}

	c.publishStatus("online", "")

	c.logInfo("mqtt connected",
		"broker", fmt.Sprintf("%s:%d", c.cfg.Broker.Host, c.cfg.Broker.Port),
		"subscriptions_restored", len(subs))
}

// handleConnectionLost marks the client offline and logs the drop; paho's
// auto-reconnect takes it from there.
func (c *Client) handleConnectionLost(err error) {
	c.mu.Lock()
	c.online = false
	c.mu.Unlock()

	c.logWarn("mqtt connection lost, reconnecting", "error", err)
}

// statusPayload renders a status announcement.
func (c *Client) statusPayload(status, reason string) []byte {
	payload, _ := json.Marshal(statusMessage{ //nolint:errcheck // All-string struct cannot fail to marshal
		Status:    status,
		ClientID:  c.cfg.Broker.ClientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return payload
}

// publishStatus sends a retained status announcement at QoS 1.
func (c *Client) publishStatus(status, reason string) {
	token := c.client.Publish(TopicSystemStatus, 1, true, c.statusPayload(status, reason))
	if !token.WaitTimeout(opTimeout) || token.Error() != nil {
		c.logWarn("mqtt status publish failed", "status", status, "error", token.Error())
	}
}

// Close announces a graceful shutdown and disconnects.
//
// The retained "offline"/"shutdown" status replaces the "online" one, so
// subscribers can distinguish an operator stop from the LWT's
// "connection_lost".
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		c.publishStatus("offline", "shutdown")
	}

	c.client.Disconnect(disconnectQuiesce)

	c.mu.Lock()
	c.online = false
	c.mu.Unlock()

	return nil
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	online := c.online
	c.mu.Unlock()
	return online && c.client != nil && c.client.IsConnected()
}

// HealthCheck verifies the connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// wrapHandler guards a MessageHandler: a panicking or erroring handler
// must never take down paho's network loop.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logError("mqtt handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logWarn("mqtt handler rejected message", "topic", msg.Topic(), "error", err)
		}
	}
}

func (c *Client) logInfo(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Client) logWarn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

func (c *Client) logError(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Error(msg, args...)
	}
}
