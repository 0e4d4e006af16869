package delivery

import (
	"context"
	"time"
)

// DeliveredNotice carries everything a notification channel needs to tell a
// recipient their package arrived.
type DeliveredNotice struct {
	TrackingNumber    string
	PickupCode        string
	RecipientName     string
	RecipientEmail    string
	CompartmentNumber int
	ExpiresAt         time.Time
}

// PickupNotice confirms a completed pickup.
type PickupNotice struct {
	TrackingNumber string
	RecipientEmail string
	PickedUpAt     time.Time
}

// Notifier is the outbound notification hook. The actual transport (email,
// SMS) lives outside this core; implementations are injected at bootstrap.
//
// Notification failure is reported but never fatal: a delivery that exists
// but whose email bounced is still a delivery.
type Notifier interface {
	NotifyDelivered(ctx context.Context, n DeliveredNotice) error
	NotifyPickedUp(ctx context.Context, n PickupNotice) error
}

// LogNotifier is the default Notifier: it records the notice in the service
// log and succeeds. Used until a real transport is wired in, and in tests.
type LogNotifier struct {
	logger Logger
}

// NewLogNotifier creates a Notifier that only logs.
func NewLogNotifier(logger Logger) *LogNotifier {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LogNotifier{logger: logger}
}

// NotifyDelivered logs the arrival notice.
func (n *LogNotifier) NotifyDelivered(_ context.Context, notice DeliveredNotice) error {
	n.logger.Info("delivery notification",
		"tracking_number", notice.TrackingNumber,
		"recipient", notice.RecipientEmail,
		"compartment", notice.CompartmentNumber,
		"expires_at", notice.ExpiresAt,
	)
	return nil
}

// NotifyPickedUp logs the pickup confirmation.
func (n *LogNotifier) NotifyPickedUp(_ context.Context, notice PickupNotice) error {
	n.logger.Info("pickup confirmation",
		"tracking_number", notice.TrackingNumber,
		"recipient", notice.RecipientEmail,
	)
	return nil
}
