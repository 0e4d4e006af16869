// Package delivery implements the delivery lifecycle: compartment
// allocation, one-time pickup credentials, and hardware command dispatch.
//
// # State Machine
//
// Each delivery moves through pending → delivered → picked_up, with
// delivered → expired (time-triggered sweep) and delivered → returned
// (administrative) as alternate terminal states. Records are never
// deleted.
//
// # Atomicity
//
// The Store owns the two multi-table operations everything else leans on:
//
//   - CreateDelivered claims a compartment (guarded UPDATE, available →
//     occupied) and inserts the delivery as delivered in one transaction.
//   - CompletePickup consumes the active delivery (delivered → picked_up)
//     and releases the compartment (occupied → available) in one
//     transaction, deciding expiry before any mutation.
//
// Concurrent callers serialize on the database's single write connection;
// the guarded UPDATEs make exactly one winner, and losers observe
// ErrNoCapacity or ErrNotFound respectively. There is no separate rollback
// path: an abandoned request simply never commits.
//
// # Degraded Dispatch
//
// The Dispatcher turns lifecycle transitions into cabinet commands over
// MQTT. Broker unavailability is a documented degraded mode, not an error:
// the command is simulated, the result says so, and the committed state
// transition stands. The same isolation applies to notifications — a
// bounced email never unwinds a delivery.
//
// # Single Write Path
//
// The Manager is the only component that mutates delivery or compartment
// state. The API layer, the expiry sweep, and inbound device status
// messages all flow through it; the gateway never touches domain state
// directly.
package delivery
