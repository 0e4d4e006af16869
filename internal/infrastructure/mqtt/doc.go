// Package mqtt provides MQTT connectivity for the locker hardware gateway.
//
// This package manages:
//   - Connection to the broker with a bounded, explicit retry sequence
//   - Message publishing with QoS guarantees and fail-fast offline behaviour
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Connection state reporting for health checks and degraded dispatch
//
// # Architecture
//
// The core talks to locker cabinets (ESP32 controllers) over MQTT. Each
// cabinet owns a command topic and a status topic derived from its
// hardware identifier:
//
//	Locker Core ↔ MQTT Broker ↔ Cabinet Controllers
//
//	lockers/{hardware_id}/commands  — actuation commands (open, locate)
//	lockers/{hardware_id}/status    — door and compartment feedback
//
// # Connection Lifecycle
//
// Unlike a typical always-reconnecting client, the gateway moves through
// an explicit state machine:
//
//	disconnected → connecting → connected
//	                    ↓ (attempts exhausted)
//	                 offline
//
// Connect starts a bounded attempt sequence (cfg.Reconnect.MaxAttempts,
// fixed delay between attempts) and returns immediately; it never blocks
// the caller. When the sequence is exhausted the client parks in the
// offline state and stays there until Retry is called — it does not churn
// in the background against a broker that is known to be down. A drop of
// an established connection re-enters the same bounded sequence.
//
// Offline is not an error condition for the rest of the system: delivery
// dispatch degrades to simulated results and the API keeps serving.
//
// # Usage
//
//	client, err := mqtt.New(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.Connect(ctx) // non-blocking, observe via client.State()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCabinetStatus(), 1,
//	    func(topic string, payload []byte) error {
//	        // handle cabinet feedback
//	        return nil
//	    })
//
//	topic := mqtt.Topics{}.CabinetCommands("esp32-0a1b2c")
//	client.Publish(topic, []byte(`{"command":"open","compartment":3}`), 1, false)
package mqtt
