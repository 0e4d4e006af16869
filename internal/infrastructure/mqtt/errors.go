package mqtt

import "errors"

// Domain-specific errors for MQTT gateway operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations while the
	// gateway is not in the connected state. Callers that can tolerate a
	// missing broker (degraded dispatch) treat this as a signal to fall
	// back, not as a failure.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when a connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe operation fails.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty or invalid topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrTimeout marks a bounded broker-acknowledgment wait that expired.
	// Always wrapped inside the failing operation's sentinel, so both
	// errors.Is(err, ErrPublishFailed) and errors.Is(err, ErrTimeout) hold.
	ErrTimeout = errors.New("mqtt: operation timed out")

	// ErrClosed is returned when the gateway has been shut down. A closed
	// gateway never reconnects; a new one must be constructed.
	ErrClosed = errors.New("mqtt: client closed")
)
