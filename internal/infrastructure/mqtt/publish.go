package mqtt

import "fmt"

// maxPayloadSize caps outgoing messages at 256 KB. Individual readings are
// a few hundred bytes; only a pathological equipment batch could approach
// this, and a broker-side reject would be silent where this is not.
const maxPayloadSize = 256 << 10

// Publish sends one message.
//
// The worker's publishes are never retained except the status topic
// (handled internally): readings are time-series data, and a retained
// stale reading would be worse than no reading.
//
// Parameters:
//   - topic: destination, normally a point's configured mqttTopic
//   - payload: JSON body
//   - qos: the point's configured QoS (0..2); batches and write results
//     use 1
//   - retained: false for all data topics
//
// Returns nil on broker acknowledgment (or immediately at QoS 0), or a
// domain error: ErrInvalidTopic, ErrInvalidQoS, ErrPayloadTooLarge,
// ErrNotConnected, ErrPublishFailed.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > 2 {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes on %s", ErrPayloadTooLarge, len(payload), topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(opTimeout) {
		return fmt.Errorf("%w: no ack for %s within %v", ErrPublishFailed, topic, opTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}
