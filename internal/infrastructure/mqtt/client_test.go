package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/parcelbay/locker-core/internal/infrastructure/config"
)

// testConfig returns an MQTT configuration pointing at a port nothing
// listens on, so connection attempts fail fast with a refusal. These tests
// exercise the state machine and validation paths without a broker.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     18099,
			ClientID: "lockercore-test",
			TLS:      false,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			Delay:          0,
			MaxAttempts:    2,
			ConnectTimeout: 1,
		},
	}
}

// waitForState polls until the client reaches the wanted state or the
// deadline passes.
func waitForState(t *testing.T, c *Client, want ConnState, deadline time.Duration) {
	t.Helper()

	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if c.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("State() = %v after %v, want %v", c.State(), deadline, want)
}

// =============================================================================
// State Machine Tests
// =============================================================================

func TestInitialState(t *testing.T) {
	client := New(testConfig())
	defer client.Close()

	if got := client.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want StateDisconnected", got)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true before Connect(), want false")
	}
}

func TestConnectNonBlocking(t *testing.T) {
	client := New(testConfig())
	defer client.Close()

	start := time.Now()
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Connect() blocked for %v, want immediate return", elapsed)
	}
}

func TestConnectEntersOfflineAfterExhaustion(t *testing.T) {
	client := New(testConfig())
	defer client.Close()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	waitForState(t, client, StateOffline, 5*time.Second)

	// Offline is sticky: no background churn without an explicit Retry()
	time.Sleep(200 * time.Millisecond)
	if got := client.State(); got != StateOffline {
		t.Errorf("State() = %v after settling offline, want StateOffline", got)
	}
}

func TestRetryReArmsFromOffline(t *testing.T) {
	client := New(testConfig())
	defer client.Close()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitForState(t, client, StateOffline, 5*time.Second)

	client.Retry(context.Background())

	// The broker is still unreachable, so the sequence must run and
	// settle back into offline rather than erroring out.
	waitForState(t, client, StateOffline, 5*time.Second)
}

func TestConnectAfterClose(t *testing.T) {
	client := New(testConfig())

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	err := client.Connect(context.Background())
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Connect() after Close() error = %v, want ErrClosed", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	client := New(testConfig())

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestConnStateString(t *testing.T) {
	cases := []struct {
		state ConnState
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{StateOffline, "offline"},
		{ConnState(99), "unknown"},
	}

	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("ConnState(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}

// =============================================================================
// HealthCheck Tests
// =============================================================================

func TestHealthCheckDisconnected(t *testing.T) {
	client := New(testConfig())
	defer client.Close()

	err := client.HealthCheck(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	client := New(testConfig())
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.HealthCheck(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublishEmptyTopic(t *testing.T) {
	client := New(testConfig())
	defer client.Close()

	err := client.Publish("", []byte("payload"), 1, false)
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish() error = %v, want ErrInvalidTopic", err)
	}
}

func TestPublishInvalidQoS(t *testing.T) {
	client := New(testConfig())
	defer client.Close()

	err := client.Publish("lockers/test/commands", []byte("payload"), 3, false)
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish() error = %v, want ErrInvalidQoS", err)
	}
}

func TestPublishOversizedPayload(t *testing.T) {
	client := New(testConfig())
	defer client.Close()

	payload := make([]byte, maxPayloadSize+1)
	err := client.Publish("lockers/test/commands", payload, 1, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishFailsFastWhenDisconnected(t *testing.T) {
	client := New(testConfig())
	defer client.Close()

	start := time.Now()
	err := client.Publish("lockers/test/commands", []byte(`{"command":"open"}`), 1, false)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	if elapsed > 100*time.Millisecond {
		t.Errorf("Publish() took %v while disconnected, want immediate failure", elapsed)
	}

	if err := client.PublishString("lockers/test/commands", "open", 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishString() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Subscribe Tests
// =============================================================================

func TestSubscribeEmptyTopic(t *testing.T) {
	client := New(testConfig())
	defer client.Close()

	err := client.Subscribe("", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestSubscribeNilHandler(t *testing.T) {
	client := New(testConfig())
	defer client.Close()

	err := client.Subscribe("lockers/+/status", 1, nil)
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
}

func TestSubscribeTrackedWhileDisconnected(t *testing.T) {
	client := New(testConfig())
	defer client.Close()

	topic := Topics{}.AllCabinetStatus()
	err := client.Subscribe(topic, 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}

	// The subscription is still tracked so it gets restored when the
	// broker comes back.
	if !client.HasSubscription(topic) {
		t.Error("HasSubscription() = false, want subscription tracked for restore")
	}
	if got := client.SubscriptionCount(); got != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", got)
	}
}

func TestUnsubscribeRemovesTracking(t *testing.T) {
	client := New(testConfig())
	defer client.Close()

	topic := Topics{}.CabinetStatus("esp32-0a1b2c")
	client.Subscribe(topic, 1, func(string, []byte) error { return nil })

	err := client.Unsubscribe(topic)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
	if client.HasSubscription(topic) {
		t.Error("HasSubscription() = true after Unsubscribe(), want false")
	}
}

// =============================================================================
// Topic Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	cases := []struct {
		name string
		got  string
		want string
	}{
		{"commands", topics.CabinetCommands("esp32-0a1b2c"), "lockers/esp32-0a1b2c/commands"},
		{"status", topics.CabinetStatus("esp32-0a1b2c"), "lockers/esp32-0a1b2c/status"},
		{"all status", topics.AllCabinetStatus(), "lockers/+/status"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %q, want %q", tc.got, tc.want)
			}
		})
	}
}

func TestHardwareIDFromStatusTopic(t *testing.T) {
	cases := []struct {
		topic  string
		wantID string
		wantOK bool
	}{
		{"lockers/esp32-0a1b2c/status", "esp32-0a1b2c", true},
		{"lockers/cab-1/status", "cab-1", true},
		{"lockers/esp32-0a1b2c/commands", "", false},
		{"lockers//status", "", false},
		{"lockers/status", "", false},
		{"other/esp32-0a1b2c/status", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		id, ok := HardwareIDFromStatusTopic(tc.topic)
		if id != tc.wantID || ok != tc.wantOK {
			t.Errorf("HardwareIDFromStatusTopic(%q) = (%q, %v), want (%q, %v)",
				tc.topic, id, ok, tc.wantID, tc.wantOK)
		}
	}
}
