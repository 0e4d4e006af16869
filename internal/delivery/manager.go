package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/parcelbay/locker-core/internal/auth"
	"github.com/parcelbay/locker-core/internal/locker"
)

// Logger is the logging interface used across the delivery package.
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

// EventSink receives lifecycle events for the realtime feed.
// Satisfied by the API layer's WebSocket hub. The company identifier is
// the event's visibility scope: the sink must only deliver the event to
// consumers allowed to see that company.
type EventSink interface {
	Emit(event, companyID string, data any)
}

// noopSink discards all events.
type noopSink struct{}

func (noopSink) Emit(string, string, any) {}

// Telemetry records delivery events as time-series points.
// Satisfied by *influxdb.Client; best-effort, never blocks the flow.
type Telemetry interface {
	WriteDeliveryEvent(event string, cabinetID string, compartment int, dispatched bool)
}

// noopTelemetry discards all points.
type noopTelemetry struct{}

func (noopTelemetry) WriteDeliveryEvent(string, string, int, bool) {}

// Config tunes the delivery lifecycle.
type Config struct {
	// TTL is the pickup window measured from creation.
	TTL time.Duration

	// PickupCodeLength is the issued code length in characters.
	PickupCodeLength int

	// CodeRetries bounds re-issuance attempts on pickup-code collision.
	CodeRetries int
}

// Deps are the manager's injected collaborators. Store and Registry are
// required; the rest default to logging/no-op implementations.
type Deps struct {
	Store      *Store
	Registry   locker.Repository
	Dispatcher *Dispatcher
	Notifier   Notifier
	Events     EventSink
	Telemetry  Telemetry
	Logger     Logger
}

// Manager is the delivery lifecycle state machine. All mutation of
// delivery and compartment state flows through it: the API layer, the
// sweep, and the device status feed all call in here, never into the
// stores directly.
type Manager struct {
	cfg        Config
	store      *Store
	registry   locker.Repository
	dispatcher *Dispatcher
	notifier   Notifier
	events     EventSink
	telemetry  Telemetry
	logger     Logger
}

// Default lifecycle tuning, matching the documented 72-hour pickup window.
const (
	defaultTTL              = 72 * time.Hour
	defaultPickupCodeLength = 8
	defaultCodeRetries      = 3
)

// NewManager wires a lifecycle manager from its collaborators.
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("delivery: store is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("delivery: registry is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.PickupCodeLength <= 0 {
		cfg.PickupCodeLength = defaultPickupCodeLength
	}
	if cfg.CodeRetries <= 0 {
		cfg.CodeRetries = defaultCodeRetries
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.Notifier == nil {
		deps.Notifier = NewLogNotifier(deps.Logger)
	}
	if deps.Events == nil {
		deps.Events = noopSink{}
	}
	if deps.Telemetry == nil {
		deps.Telemetry = noopTelemetry{}
	}

	return &Manager{
		cfg:        cfg,
		store:      deps.Store,
		registry:   deps.Registry,
		dispatcher: deps.Dispatcher,
		notifier:   deps.Notifier,
		events:     deps.Events,
		telemetry:  deps.Telemetry,
		logger:     deps.Logger,
	}, nil
}

// CreateDelivery allocates a compartment, issues credentials, and records
// the delivery as delivered in one atomic step.
//
// Scope rules: courier and admin actors create within their own company;
// the platform operator must pin the delivery to a cabinet, from which the
// company is derived. On pickup-code collision among active deliveries the
// issuance is retried a bounded number of times.
//
// The notification side effect is non-fatal: a failed notice is logged and
// the created delivery stands.
func (m *Manager) CreateDelivery(ctx context.Context, req CreateRequest, actor auth.Actor) (*CreateResult, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	companyID := actor.CompanyID
	if req.CabinetID != "" {
		cabinet, err := m.registry.GetCabinet(ctx, req.CabinetID)
		if err != nil {
			return nil, err
		}
		if !actor.CanAccessCompany(cabinet.CompanyID) {
			return nil, auth.ErrForbidden
		}
		companyID = cabinet.CompanyID
	}
	if companyID == "" {
		// Platform operator without a cabinet pin: nothing scopes the
		// allocation.
		return nil, fmt.Errorf("%w: cabinet_id required for unscoped actors", ErrInvalidRequest)
	}

	var d *Delivery
	for attempt := 0; ; attempt++ {
		code, err := IssuePickupCode(m.cfg.PickupCodeLength)
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		d = &Delivery{
			TrackingNumber: IssueTrackingNumber(),
			PickupCode:     code,
			RecipientName:  req.RecipientName,
			RecipientEmail: req.RecipientEmail,
			CompanyID:      companyID,
			CreatedBy:      actor.ID,
			Notes:          req.Notes,
			CreatedAt:      now,
			ExpiresAt:      now.Add(m.cfg.TTL),
		}

		err = m.store.CreateDelivered(ctx, d, req.CabinetID, locker.Size(req.Size))
		if err == nil {
			break
		}
		if errors.Is(err, ErrCodeCollision) && attempt < m.cfg.CodeRetries {
			m.logger.Warn("pickup code collision, reissuing",
				"attempt", attempt+1,
			)
			continue
		}
		return nil, err
	}

	m.logger.Info("delivery created",
		"delivery_id", d.ID,
		"tracking_number", d.TrackingNumber,
		"cabinet_id", d.CabinetID,
		"compartment", d.CompartmentNumber,
		"expires_at", d.ExpiresAt,
	)

	if err := m.notifier.NotifyDelivered(ctx, DeliveredNotice{
		TrackingNumber:    d.TrackingNumber,
		PickupCode:        d.PickupCode,
		RecipientName:     d.RecipientName,
		RecipientEmail:    d.RecipientEmail,
		CompartmentNumber: d.CompartmentNumber,
		ExpiresAt:         d.ExpiresAt,
	}); err != nil {
		m.logger.Error("delivery notification failed",
			"tracking_number", d.TrackingNumber,
			"error", err,
		)
	}

	m.events.Emit("delivery.created", d.CompanyID, map[string]any{
		"delivery_id": d.ID,
		"cabinet_id":  d.CabinetID,
		"compartment": d.CompartmentNumber,
	})
	m.telemetry.WriteDeliveryEvent("created", d.CabinetID, d.CompartmentNumber, true)

	return &CreateResult{
		DeliveryID:        d.ID,
		TrackingNumber:    d.TrackingNumber,
		PickupCode:        d.PickupCode,
		CabinetID:         d.CabinetID,
		CompartmentNumber: d.CompartmentNumber,
		ExpiresAt:         d.ExpiresAt,
		Payload:           EncodePickupPayload(d.TrackingNumber, d.PickupCode, d.RecipientEmail),
	}, nil
}

// Pickup validates credentials, transitions delivery and compartment
// atomically, then asks the hardware to open the door.
//
// Once the transition commits, "authorized and recorded" is the durable
// fact; the physical open is best-effort. A failed or simulated dispatch is
// reported in the result and logged, never rolled back.
func (m *Manager) Pickup(ctx context.Context, trackingNumber, pickupCode string) (*PickupResult, error) {
	if trackingNumber == "" || pickupCode == "" {
		return nil, ErrNotFound
	}

	res, err := m.store.CompletePickup(ctx, trackingNumber, pickupCode, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	res.Dispatch = m.dispatchOpen(res.hardwareID, res.pin, res.CabinetID, res.CompartmentNumber)

	m.logger.Info("pickup completed",
		"delivery_id", res.DeliveryID,
		"cabinet_id", res.CabinetID,
		"compartment", res.CompartmentNumber,
		"dispatch", res.Dispatch,
	)

	if err := m.notifier.NotifyPickedUp(ctx, PickupNotice{
		TrackingNumber: res.trackingNumber,
		RecipientEmail: res.recipientEmail,
		PickedUpAt:     time.Now().UTC(),
	}); err != nil {
		m.logger.Error("pickup notification failed",
			"tracking_number", res.trackingNumber,
			"error", err,
		)
	}

	m.events.Emit("delivery.picked_up", res.companyID, map[string]any{
		"delivery_id": res.DeliveryID,
		"cabinet_id":  res.CabinetID,
		"compartment": res.CompartmentNumber,
		"dispatch":    res.Dispatch,
	})
	m.telemetry.WriteDeliveryEvent("picked_up", res.CabinetID, res.CompartmentNumber, res.Dispatch == DispatchSent)

	return res, nil
}

// PickupByPayload decodes a scanned payload and delegates to Pickup.
// Malformed payloads fail with ErrInvalidPayload before any lookup.
func (m *Manager) PickupByPayload(ctx context.Context, payload string) (*PickupResult, error) {
	trackingNumber, pickupCode, err := DecodePickupPayload(payload)
	if err != nil {
		return nil, err
	}
	return m.Pickup(ctx, trackingNumber, pickupCode)
}

// ControlCompartment is the administrative open/close path, independent of
// any delivery. It shares the dispatch path with pickup but never touches
// delivery or occupancy state. Actions are recorded in the audit trail.
func (m *Manager) ControlCompartment(ctx context.Context, cabinetID, compartmentID string, action Action, actor auth.Actor) (DispatchResult, error) {
	if !IsValidAction(action) {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, action)
	}

	cabinet, err := m.registry.GetCabinet(ctx, cabinetID)
	if err != nil {
		return "", err
	}
	if !actor.CanAccessCompany(cabinet.CompanyID) {
		return "", auth.ErrForbidden
	}

	compartment, err := m.registry.GetCompartment(ctx, compartmentID)
	if err != nil {
		return "", err
	}
	if compartment.CabinetID != cabinetID {
		// Compartment exists but under another cabinet; same answer as
		// not existing at all.
		return "", locker.ErrCompartmentNotFound
	}

	result := DispatchSimulated
	if m.dispatcher != nil {
		result, err = m.dispatcher.Dispatch(cabinet.HardwareID, action, compartment.Pin)
		if err != nil {
			return "", err
		}
	}

	if err := m.store.LogActivity(ctx, actor.ID, string(action), cabinetID, compartmentID); err != nil {
		m.logger.Error("activity log write failed",
			"cabinet_id", cabinetID,
			"compartment_id", compartmentID,
			"error", err,
		)
	}

	m.logger.Info("compartment control dispatched",
		"cabinet_id", cabinetID,
		"compartment", compartment.Number,
		"action", action,
		"dispatch", result,
		"actor", actor.ID,
	)
	return result, nil
}

// ExpireStale sweeps deliveries past their pickup window, releasing their
// compartments. Driven by the sweep runner on a fixed interval.
func (m *Manager) ExpireStale(ctx context.Context) (int, error) {
	expired, err := m.store.ExpireStale(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	for _, d := range expired {
		m.events.Emit("delivery.expired", d.CompanyID, map[string]any{
			"delivery_id": d.ID,
			"cabinet_id":  d.CabinetID,
			"compartment": d.CompartmentNumber,
		})
		m.telemetry.WriteDeliveryEvent("expired", d.CabinetID, d.CompartmentNumber, false)
	}
	if len(expired) > 0 {
		m.logger.Info("expired stale deliveries", "count", len(expired))
	}
	return len(expired), nil
}

// ListDeliveries retrieves deliveries visible to the actor.
func (m *Manager) ListDeliveries(ctx context.Context, actor auth.Actor, status Status) ([]Delivery, error) {
	scope := actor.CompanyID
	if actor.IsPlatformOperator() {
		scope = ""
	}
	return m.store.List(ctx, scope, status)
}

// statusMessage is the cabinet controller's feedback shape.
type statusMessage struct {
	// Compartment is the physical pin address, matching the command field.
	Compartment int `json:"compartment"`

	// Event is one of door_open, door_closed, fault.
	Event string `json:"event"`
}

// ReconcileStatus is the single write path for device status feedback.
//
// The gateway's subscription handler forwards raw messages here; the
// gateway itself never mutates domain state. Door events are surfaced on
// the realtime feed; a fault takes the compartment out of service unless it
// currently holds a parcel (occupancy never flips without its delivery).
func (m *Manager) ReconcileStatus(ctx context.Context, hardwareID string, payload []byte) error {
	var msg statusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("parsing status payload: %w", err)
	}

	cabinet, err := m.registry.GetCabinetByHardwareID(ctx, hardwareID)
	if err != nil {
		return fmt.Errorf("status from unknown cabinet %q: %w", hardwareID, err)
	}

	compartments, err := m.registry.ListCompartments(ctx, cabinet.ID)
	if err != nil {
		return err
	}
	var target *locker.Compartment
	for i := range compartments {
		if compartments[i].Pin == msg.Compartment {
			target = &compartments[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("status for unknown pin %d on cabinet %s", msg.Compartment, cabinet.ID)
	}

	switch strings.ToLower(msg.Event) {
	case "door_open", "door_closed":
		m.events.Emit("cabinet.status", cabinet.CompanyID, map[string]any{
			"cabinet_id":  cabinet.ID,
			"compartment": target.Number,
			"event":       msg.Event,
		})
	case "fault":
		err := m.registry.SetMaintenance(ctx, target.ID)
		switch {
		case err == nil:
			m.logger.Warn("compartment faulted, taken out of service",
				"cabinet_id", cabinet.ID,
				"compartment", target.Number,
			)
			m.events.Emit("cabinet.fault", cabinet.CompanyID, map[string]any{
				"cabinet_id":  cabinet.ID,
				"compartment": target.Number,
			})
		case errors.Is(err, locker.ErrOccupied):
			// A parcel is inside; flag it for operators but leave the
			// occupancy coupling intact.
			m.logger.Error("fault reported on occupied compartment",
				"cabinet_id", cabinet.ID,
				"compartment", target.Number,
			)
		default:
			return err
		}
	default:
		m.logger.Warn("unrecognised cabinet event",
			"cabinet_id", cabinet.ID,
			"event", msg.Event,
		)
	}
	return nil
}

// dispatchOpen sends the open command if a dispatcher is wired, degrading
// to simulated when it is not.
func (m *Manager) dispatchOpen(hardwareID string, pin int, cabinetID string, number int) DispatchResult {
	if m.dispatcher == nil {
		return DispatchSimulated
	}
	result, err := m.dispatcher.Dispatch(hardwareID, ActionOpen, pin)
	if err != nil {
		m.logger.Error("open dispatch failed",
			"cabinet_id", cabinetID,
			"compartment", number,
			"error", err,
		)
		return DispatchSimulated
	}
	return result
}

// validateCreateRequest checks delivery creation input.
func validateCreateRequest(req CreateRequest) error {
	if req.RecipientName == "" {
		return fmt.Errorf("%w: recipient_name is required", ErrInvalidRequest)
	}
	if req.RecipientEmail == "" || !strings.Contains(req.RecipientEmail, "@") {
		return fmt.Errorf("%w: valid recipient_email is required", ErrInvalidRequest)
	}
	if req.Size != "" && !locker.IsValidSize(locker.Size(req.Size)) {
		return fmt.Errorf("%w: unknown size %q", ErrInvalidRequest, req.Size)
	}
	return nil
}
