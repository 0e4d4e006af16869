package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (256KB).
// Device commands are tiny; anything near this limit is a bug upstream.
const maxPayloadSize = 256 << 10

// Publish sends a message to the specified MQTT topic.
//
// Publish never blocks the caller on broker unavailability: if the gateway
// is in any state other than connected it returns ErrNotConnected
// immediately. When connected, the broker acknowledgment wait is bounded
// by defaultPublishTimeout.
//
// Parameters:
//   - topic: The topic to publish to (e.g., "lockers/esp32-0a1b2c/commands")
//   - payload: The message payload (JSON)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// Returns:
//   - error: nil on success, ErrNotConnected when degraded, or a wrapped
//     error describing a transmit failure
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	// Fail fast in degraded mode; the dispatcher turns this into a
	// simulated-command outcome
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %w after %v", ErrPublishFailed, ErrTimeout, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishString is a convenience method that publishes a string payload.
func (c *Client) PublishString(topic, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}
