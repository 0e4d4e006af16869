package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/parcelbay/locker-core/internal/infrastructure/config"
)

// ConnState is the gateway connection state.
//
// The state machine is:
//
//	disconnected -> connecting -> connected
//	connected    -> disconnected (transport error, re-enters bounded retry)
//	connecting   -> offline      (retry budget exhausted)
//
// Offline is sticky: the gateway stops retrying until Retry() is called.
// Publishing while in any state other than connected fails fast without
// blocking the caller.
type ConnState int32

const (
	// StateDisconnected is the initial state before any attempt.
	StateDisconnected ConnState = iota

	// StateConnecting means an attempt sequence is in progress.
	StateConnecting

	// StateConnected means the broker link is up.
	StateConnected

	// StateOffline means the retry budget is exhausted; the gateway no
	// longer auto-retries. Commands are simulated by callers until an
	// explicit Retry().
	StateOffline
)

// String returns the lowercase state name used in logs and the health payload.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Logger is the logging interface used by the Client.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all records.
type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked in separate goroutines by the paho library and
// should not block for extended periods.
type MessageHandler func(topic string, payload []byte) error

// subscription holds subscription details for restoration on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// Client is the messaging gateway between Locker Core and cabinet hardware.
//
// It wraps paho.mqtt.golang with a bounded connection attempt sequence and a
// sticky offline mode: broker unavailability degrades command dispatch, it
// never blocks or fails the delivery flow.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	cfg    config.MQTTConfig
	client pahomqtt.Client

	state   ConnState
	stateMu sync.RWMutex

	// retryArm guards against overlapping attempt sequences.
	retrying bool
	retryMu  sync.Mutex

	subscriptions map[string]subscription
	subMu         sync.RWMutex

	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex

	// closed stops the retry loop permanently.
	closed  chan struct{}
	closeMu sync.Once
}

// New creates a gateway client for the given configuration.
// No connection attempt is made until Connect is called.
func New(cfg config.MQTTConfig) *Client {
	c := &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
		logger:        noopLogger{},
		closed:        make(chan struct{}),
	}

	opts := buildClientOptions(cfg)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})
	c.client = pahomqtt.NewClient(opts)

	return c
}

// Connect starts the bounded connection attempt sequence in the background.
//
// The caller is never blocked on broker I/O: the sequence runs in its own
// goroutine, making up to reconnect.max_attempts attempts with a fixed
// reconnect.delay between them. If all attempts fail the gateway settles
// into offline mode and stays there until Retry().
//
// Connect itself only errors if the client is already closed.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	c.startAttemptSequence(ctx)
	return nil
}

// Retry re-arms the connection attempt sequence from offline mode.
// This is the explicit operational trigger documented for degraded mode;
// it is a no-op while connected or while a sequence is already running.
func (c *Client) Retry(ctx context.Context) {
	if c.State() == StateConnected {
		return
	}
	c.startAttemptSequence(ctx)
}

// startAttemptSequence launches the retry loop unless one is already running.
func (c *Client) startAttemptSequence(ctx context.Context) {
	c.retryMu.Lock()
	if c.retrying {
		c.retryMu.Unlock()
		return
	}
	c.retrying = true
	c.retryMu.Unlock()

	c.setState(StateConnecting)
	go c.attemptLoop(ctx)
}

// attemptLoop runs the bounded attempt sequence.
// It exits on success, on exhaustion (settling into offline), on context
// cancellation, or on Close().
func (c *Client) attemptLoop(ctx context.Context) {
	defer func() {
		c.retryMu.Lock()
		c.retrying = false
		c.retryMu.Unlock()
	}()

	maxAttempts := c.cfg.Reconnect.MaxAttempts
	delay := time.Duration(c.cfg.Reconnect.Delay) * time.Second
	timeout := time.Duration(c.cfg.Reconnect.ConnectTimeout) * time.Second

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			c.setState(StateOffline)
			return
		case <-c.closed:
			return
		default:
		}

		c.getLogger().Info("connecting to MQTT broker",
			"attempt", attempt,
			"max_attempts", maxAttempts,
		)

		token := c.client.Connect()
		if token.WaitTimeout(timeout) && token.Error() == nil {
			// handleConnect (paho OnConnect callback) sets connected state
			// and restores subscriptions; setting it here as well closes the
			// window where IsConnected is queried before the callback runs.
			c.setState(StateConnected)
			return
		}

		var cause error
		if err := token.Error(); err != nil {
			cause = err
		} else {
			cause = fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, timeout)
		}
		c.getLogger().Warn("MQTT connection attempt failed",
			"attempt", attempt,
			"error", cause,
		)

		if attempt < maxAttempts {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				c.setState(StateOffline)
				return
			case <-c.closed:
				return
			}
		}
	}

	c.getLogger().Warn("MQTT broker unavailable, entering offline mode",
		"attempts", maxAttempts,
	)
	c.setState(StateOffline)
}

// handleConnect is called by paho when a connection is established.
func (c *Client) handleConnect() {
	c.setState(StateConnected)
	c.restoreSubscriptions()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleConnectionLost is called by paho when an established connection drops.
// The gateway re-enters the bounded attempt sequence; if the broker stays
// away it settles into offline mode as usual.
func (c *Client) handleConnectionLost(err error) {
	c.setState(StateDisconnected)

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}

	select {
	case <-c.closed:
		return
	default:
	}
	c.startAttemptSequence(context.Background())
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		// Errors during restoration are ignored; the broker just came back
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

// Close shuts the gateway down permanently.
// Any in-flight attempt sequence stops; no further retries occur.
func (c *Client) Close() error {
	c.closeMu.Do(func() {
		close(c.closed)
	})

	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(defaultDisconnectQuiesce)
	}
	c.setState(StateDisconnected)
	return nil
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// IsConnected reports whether the broker link is up.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected && c.client.IsConnected()
}

// HealthCheck verifies the gateway connection is alive.
// An offline gateway is a degraded-mode condition, reported as an error here
// for operational visibility but tolerated by the delivery flow.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return fmt.Errorf("%w: state=%s", ErrNotConnected, c.State())
	}
	return nil
}

// SetOnConnect sets a callback invoked on every successful (re)connection.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when an established connection drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for connection and handler diagnostics.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger.
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) setState(s ConnState) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// wrapHandler wraps a MessageHandler with panic recovery and logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.getLogger().Error("MQTT handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.getLogger().Warn("MQTT handler returned error",
				"topic", msg.Topic(),
				"error", err,
			)
		}
	}
}
