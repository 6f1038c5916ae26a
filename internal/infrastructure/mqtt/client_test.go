package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/ak085/bacpipes/internal/infrastructure/config"
)

// Tests here run without a broker: validation paths, offline behaviour,
// status payload shape, and handler guarding. Broker-backed round trips
// live in integration_test.go behind the integration build tag.

// recordLogger captures log calls for assertions.
type recordLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordLogger) record(level, msg string) {
	l.mu.Lock()
	l.entries = append(l.entries, level+": "+msg)
	l.mu.Unlock()
}

func (l *recordLogger) Info(msg string, _ ...any)  { l.record("info", msg) }
func (l *recordLogger) Warn(msg string, _ ...any)  { l.record("warn", msg) }
func (l *recordLogger) Error(msg string, _ ...any) { l.record("error", msg) }

func (l *recordLogger) has(fragment string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e == fragment {
			return true
		}
	}
	return false
}

func offlineClient() *Client {
	return &Client{
		cfg: config.MQTTConfig{
			Broker: config.MQTTBrokerConfig{
				Host:     "127.0.0.1",
				Port:     1883,
				ClientID: "bacpipes_worker",
			},
		},
	}
}

func TestCloseZeroClient(t *testing.T) {
	var c Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v, want nil", err)
	}
}

func TestPublishValidation(t *testing.T) {
	c := offlineClient()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{
			name:    "empty topic",
			topic:   "",
			payload: []byte("{}"),
			qos:     1,
			wantErr: ErrInvalidTopic,
		},
		{
			name:    "invalid qos",
			topic:   "klcc/ahu_1/Temp/presentValue",
			payload: []byte("{}"),
			qos:     3,
			wantErr: ErrInvalidQoS,
		},
		{
			name:    "oversized payload",
			topic:   "klcc/ahu_1/batch",
			payload: make([]byte, maxPayloadSize+1),
			qos:     1,
			wantErr: ErrPayloadTooLarge,
		},
		{
			name:    "not connected",
			topic:   "klcc/ahu_1/Temp/presentValue",
			payload: []byte("{}"),
			qos:     1,
			wantErr: ErrNotConnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := offlineClient()
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty topic) error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("bacnet/write/command", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("bacnet/write/command", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("bacnet/write/command", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() while disconnected error = %v, want ErrNotConnected", err)
	}

	// A rejected registration is not remembered for replay.
	if len(c.subscriptions) != 0 {
		t.Errorf("rejected subscriptions tracked: %d", len(c.subscriptions))
	}
}

func TestStatusPayloadShape(t *testing.T) {
	c := offlineClient()

	var status statusMessage
	if err := json.Unmarshal(c.statusPayload("online", ""), &status); err != nil {
		t.Fatalf("online payload is not JSON: %v", err)
	}
	if status.Status != "online" || status.ClientID != "bacpipes_worker" {
		t.Errorf("online payload = %+v", status)
	}
	if status.Reason != "" {
		t.Errorf("online payload carries reason %q", status.Reason)
	}
	if status.Timestamp == "" {
		t.Error("online payload missing timestamp")
	}

	if err := json.Unmarshal(c.statusPayload("offline", "shutdown"), &status); err != nil {
		t.Fatalf("offline payload is not JSON: %v", err)
	}
	if status.Status != "offline" || status.Reason != "shutdown" {
		t.Errorf("offline payload = %+v", status)
	}

	// The LWT variant distinguishes a crash from an operator stop.
	if err := json.Unmarshal(c.statusPayload("offline", "connection_lost"), &status); err != nil {
		t.Fatalf("LWT payload is not JSON: %v", err)
	}
	if status.Reason != "connection_lost" {
		t.Errorf("LWT reason = %q, want connection_lost", status.Reason)
	}
}

// fakeMessage satisfies the paho Message interface surface wrapHandler
// touches.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestWrapHandlerRecoversPanic(t *testing.T) {
	logger := &recordLogger{}
	c := offlineClient()
	c.logger = logger

	wrapped := c.wrapHandler(func(string, []byte) error {
		panic("handler exploded")
	})

	// Must not propagate the panic into (what would be) paho's loop.
	wrapped(nil, fakeMessage{topic: "bacnet/write/command", payload: []byte("{}")})

	if !logger.has("error: mqtt handler panic recovered") {
		t.Errorf("panic not logged: %v", logger.entries)
	}
}

func TestWrapHandlerLogsHandlerError(t *testing.T) {
	logger := &recordLogger{}
	c := offlineClient()
	c.logger = logger

	wrapped := c.wrapHandler(func(string, []byte) error {
		return errors.New("bad json")
	})
	wrapped(nil, fakeMessage{topic: "bacnet/write/command", payload: []byte("{bad")})

	if !logger.has("warn: mqtt handler rejected message") {
		t.Errorf("handler error not logged: %v", logger.entries)
	}
}

func TestConnectionLostMarksOffline(t *testing.T) {
	logger := &recordLogger{}
	c := offlineClient()
	c.logger = logger
	c.online = true

	c.handleConnectionLost(errors.New("EOF"))

	c.mu.Lock()
	online := c.online
	c.mu.Unlock()
	if online {
		t.Error("client still online after connection loss")
	}
	if !logger.has("warn: mqtt connection lost, reconnecting") {
		t.Errorf("connection loss not logged: %v", logger.entries)
	}
}
