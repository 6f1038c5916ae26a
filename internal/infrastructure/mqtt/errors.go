package mqtt

import "errors"

// Domain errors for the MQTT plane. Check with errors.Is():
//
//	if errors.Is(err, mqtt.ErrNotConnected) {
//	    // reading stays unpublished this tick; the poller counts it
//	}
var (
	// ErrConnectionFailed is returned when the broker cannot be reached at
	// startup. Startup connectivity is fatal for the worker (§ startup
	// ordering in cmd/bacpipes); later drops are handled by auto-reconnect
	// instead of surfacing here.
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")

	// ErrNotConnected is returned when a publish or subscribe is attempted
	// between a connection loss and the reconnect. Readings hitting this
	// are dropped for the tick (the point simply does not appear on the
	// bus); write results hitting it are lost to the requester, which is
	// why the executor also logs every outcome.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrPayloadTooLarge is returned for payloads above the broker limit.
	// Equipment batches are the only messages that can plausibly grow this
	// big (hundreds of points on one equipment).
	ErrPayloadTooLarge = errors.New("mqtt: payload exceeds broker limit")

	// ErrInvalidTopic is returned for an empty topic — a point row with
	// mqttPublish set but no mqttTopic configured.
	ErrInvalidTopic = errors.New("mqtt: empty topic")

	// ErrInvalidQoS is returned when a point row carries a QoS outside 0..2.
	ErrInvalidQoS = errors.New("mqtt: qos must be 0, 1, or 2")

	// ErrPublishFailed is returned when the broker does not acknowledge a
	// publish within the operation timeout.
	ErrPublishFailed = errors.New("mqtt: publish not acknowledged")

	// ErrSubscribeFailed is returned when a subscription is not granted.
	// The worker treats a failed command-topic subscription as fatal: an
	// engine that cannot receive write commands is half-deaf.
	ErrSubscribeFailed = errors.New("mqtt: subscribe not granted")
)
