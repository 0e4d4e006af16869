package delivery

import "time"

// Delivery is the record of one package's lifecycle from drop-off to pickup.
// Rows are never deleted; terminal deliveries remain as history.
type Delivery struct {
	ID string `json:"id"`

	// Credentials. The tracking number is globally unique; the pickup code
	// is unique among currently-active (delivered) rows only.
	TrackingNumber string `json:"tracking_number"`
	PickupCode     string `json:"-"` // never listed; returned once at creation

	// Recipient contact info.
	RecipientName  string `json:"recipient_name"`
	RecipientEmail string `json:"recipient_email"`

	// Placement.
	CompanyID         string `json:"company_id"`
	CabinetID         string `json:"cabinet_id"`
	CompartmentID     string `json:"compartment_id"`
	CompartmentNumber int    `json:"compartment_number"`

	Status Status `json:"status"`

	// CreatedBy is the actor (courier) that dropped the package off.
	CreatedBy string `json:"created_by,omitempty"`
	Notes     string `json:"notes,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	PickedUpAt *time.Time `json:"picked_up_at,omitempty"`
}

// Status is a delivery's lifecycle state.
//
// The state machine is pending → delivered → picked_up, with delivered →
// expired (time-triggered sweep) and delivered → returned (administrative)
// as alternate terminal states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusPickedUp  Status = "picked_up"
	StatusExpired   Status = "expired"
	StatusReturned  Status = "returned"
)

// AllStatuses returns every valid delivery status.
func AllStatuses() []Status {
	return []Status{StatusPending, StatusDelivered, StatusPickedUp, StatusExpired, StatusReturned}
}

// IsValidStatus returns true if the status is recognised.
func IsValidStatus(s Status) bool {
	for _, v := range AllStatuses() {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusPickedUp || s == StatusExpired || s == StatusReturned
}

// CreateRequest is the typed input for delivery creation.
type CreateRequest struct {
	RecipientName  string `json:"recipient_name"`
	RecipientEmail string `json:"recipient_email"`

	// CabinetID optionally pins the delivery to one cabinet; empty means
	// any cabinet in the caller's company.
	CabinetID string `json:"cabinet_id,omitempty"`

	// Size optionally constrains the compartment size; empty means any.
	Size string `json:"size,omitempty"`

	Notes string `json:"notes,omitempty"`
}

// CreateResult is returned once at creation: the only time the pickup code
// leaves the system.
type CreateResult struct {
	DeliveryID        string    `json:"delivery_id"`
	TrackingNumber    string    `json:"tracking_number"`
	PickupCode        string    `json:"pickup_code"`
	CabinetID         string    `json:"cabinet_id"`
	CompartmentNumber int       `json:"compartment_number"`
	ExpiresAt         time.Time `json:"expires_at"`

	// Payload is the encoded pickup credential, rendered as a QR code by
	// clients.
	Payload string `json:"payload"`
}

// PickupResult is returned on successful pickup.
type PickupResult struct {
	DeliveryID        string `json:"delivery_id"`
	CabinetID         string `json:"cabinet_id"`
	CompartmentNumber int    `json:"compartment_number"`

	// Dispatch reports whether the open command reached the broker or was
	// simulated in degraded mode.
	Dispatch DispatchResult `json:"dispatch"`

	// internal routing and notification fields, not serialised
	companyID      string
	trackingNumber string
	recipientEmail string
	hardwareID     string
	pin            int
}
