package delivery

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/parcelbay/locker-core/internal/infrastructure/mqtt"
)

// Action is a hardware actuation verb.
type Action string

const (
	ActionOpen  Action = "open"
	ActionClose Action = "close"
)

// IsValidAction returns true if the action is recognised.
func IsValidAction(a Action) bool {
	return a == ActionOpen || a == ActionClose
}

// Command is the ephemeral device command sent to a cabinet controller.
// Not persisted; fire-and-forget over the messaging gateway.
type Command struct {
	Action Action `json:"action"`

	// Compartment is the physical actuation address (pin), not the
	// human-facing slot number.
	Compartment int `json:"compartment"`

	Timestamp time.Time `json:"timestamp"`
}

// DispatchResult distinguishes a command that reached the broker from one
// that was synthetically acknowledged because the gateway is degraded.
type DispatchResult string

const (
	// DispatchSent means the command was transmitted to the broker.
	DispatchSent DispatchResult = "sent"

	// DispatchSimulated means the gateway was offline and the command was
	// acknowledged synthetically. A documented degraded-mode outcome, not
	// an error: callers proceed and the occurrence is logged.
	DispatchSimulated DispatchResult = "simulated"
)

// Gateway is the messaging surface the dispatcher needs.
// Satisfied by *mqtt.Client.
type Gateway interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	State() mqtt.ConnState
}

// Dispatcher translates lifecycle transitions into device commands.
// One command topic per cabinet, derived from its hardware identifier.
type Dispatcher struct {
	gateway Gateway
	topics  mqtt.Topics
	qos     byte
	logger  Logger
}

// NewDispatcher creates a command dispatcher over the given gateway.
func NewDispatcher(gateway Gateway, qos byte, logger Logger) *Dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{
		gateway: gateway,
		qos:     qos,
		logger:  logger,
	}
}

// Dispatch sends an actuation command to a cabinet.
//
// Broker unavailability is never an error here: when the gateway is in any
// state other than connected the command is simulated and the caller gets
// DispatchSimulated. Only malformed input produces an error. The publish
// itself is bounded by the gateway's publish timeout, so the caller is
// never blocked on broker I/O beyond that.
func (d *Dispatcher) Dispatch(hardwareID string, action Action, pin int) (DispatchResult, error) {
	if hardwareID == "" {
		return "", fmt.Errorf("dispatch: hardware id required")
	}
	if !IsValidAction(action) {
		return "", fmt.Errorf("dispatch: unknown action %q", action)
	}

	cmd := Command{
		Action:      action,
		Compartment: pin,
		Timestamp:   time.Now().UTC(),
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return "", fmt.Errorf("dispatch: encoding command: %w", err)
	}

	topic := d.topics.CabinetCommands(hardwareID)
	if err := d.gateway.Publish(topic, payload, d.qos, false); err != nil {
		if errors.Is(err, mqtt.ErrNotConnected) {
			d.logger.Warn("gateway degraded, command simulated",
				"topic", topic,
				"action", action,
				"gateway_state", d.gateway.State().String(),
			)
			return DispatchSimulated, nil
		}
		// Transmit failures past the connectivity check (broker ack
		// timeout) are degraded-mode too; the logical transition that
		// triggered the command has already committed.
		d.logger.Error("command transmit failed, treated as simulated",
			"topic", topic,
			"action", action,
			"error", err,
		)
		return DispatchSimulated, nil
	}

	return DispatchSent, nil
}
