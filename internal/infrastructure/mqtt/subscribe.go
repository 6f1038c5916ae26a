package mqtt

import "fmt"

// Subscribe registers a handler for a topic pattern and remembers the
// registration for replay after reconnects.
//
// The worker carries exactly three subscription shapes: the fixed write
// command topic (engine) and the two point-value wildcard depths (sink).
// All of them must survive broker failover, which is why registrations are
// tracked before the broker grant — a grant lost to a concurrent
// disconnect is replayed by the next handleConnect.
//
// Parameters:
//   - topic: pattern, may contain + and # wildcards
//   - qos: maximum delivery QoS for matched messages
//   - handler: invoked per message on paho goroutines; keep it short
//
// Returns ErrInvalidTopic, ErrInvalidQoS, ErrSubscribeFailed (nil handler,
// broker refusal, or timeout), or ErrNotConnected.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > 2 {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	// Track first: if the broker connection flaps mid-call, the reconnect
	// replay picks this registration up even when the token below fails.
	c.mu.Lock()
	c.subscriptions = append(c.subscriptions, subscription{topic: topic, qos: qos, handler: handler})
	c.mu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(opTimeout) {
		return fmt.Errorf("%w: no grant for %s within %v", ErrSubscribeFailed, topic, opTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}
