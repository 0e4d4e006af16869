package locker

import "time"

// Cabinet represents one physical locker unit: a bank of compartments
// behind a single hardware controller.
// This matches the database schema in migrations/20260815_090000_initial_schema.up.sql.
type Cabinet struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Ownership and placement
	CompanyID string `json:"company_id"`
	Location  string `json:"location"`

	// HardwareID addresses the cabinet controller on the messaging layer.
	// Command and status topics are derived deterministically from it.
	HardwareID string `json:"hardware_id"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Compartment represents a single lockable slot inside a cabinet.
type Compartment struct {
	ID        string `json:"id"`
	CabinetID string `json:"cabinet_id"`

	// Number is the human-facing slot number, unique within the cabinet.
	Number int `json:"number"`

	// Pin is the physical actuation address (GPIO pin/channel) used in
	// hardware commands. Never shown to end users.
	Pin int `json:"pin"`

	Size   Size   `json:"size"`
	Status Status `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Size classifies a compartment's physical dimensions.
type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

// AllSizes returns every valid compartment size.
func AllSizes() []Size {
	return []Size{SizeSmall, SizeMedium, SizeLarge}
}

// Status is a compartment's occupancy state.
//
// Occupancy is coupled to the delivery lifecycle: a compartment becomes
// occupied only as part of a successful delivery creation and available
// again only as part of a successful pickup or expiry sweep. Maintenance
// and reserved are administrative states that never touch an occupied slot.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusOccupied    Status = "occupied"
	StatusMaintenance Status = "maintenance"
	StatusReserved    Status = "reserved"
)

// AllStatuses returns every valid compartment status.
func AllStatuses() []Status {
	return []Status{StatusAvailable, StatusOccupied, StatusMaintenance, StatusReserved}
}

// CompartmentSpec describes one compartment to create during cabinet
// provisioning.
type CompartmentSpec struct {
	Number int  `json:"number"`
	Pin    int  `json:"pin"`
	Size   Size `json:"size"`
}

// SizeDistribution is the provisioning request shape: how many
// compartments of each size a new cabinet gets.
type SizeDistribution struct {
	Small  int `json:"small"`
	Medium int `json:"medium"`
	Large  int `json:"large"`
}

// Total returns the number of compartments the distribution describes.
func (d SizeDistribution) Total() int {
	return d.Small + d.Medium + d.Large
}

// FanOut expands a size distribution into concrete compartment specs.
// Numbers start at 1; pins are assigned sequentially from basePin in the
// same order, so the physical wiring follows the slot numbering.
func (d SizeDistribution) FanOut(basePin int) []CompartmentSpec {
	specs := make([]CompartmentSpec, 0, d.Total())
	number := 1
	add := func(count int, size Size) {
		for i := 0; i < count; i++ {
			specs = append(specs, CompartmentSpec{
				Number: number,
				Pin:    basePin + number - 1,
				Size:   size,
			})
			number++
		}
	}
	add(d.Small, SizeSmall)
	add(d.Medium, SizeMedium)
	add(d.Large, SizeLarge)
	return specs
}

// Occupancy summarises a cabinet's compartment states for list views.
type Occupancy struct {
	Total       int `json:"total"`
	Available   int `json:"available"`
	Occupied    int `json:"occupied"`
	Maintenance int `json:"maintenance"`
	Reserved    int `json:"reserved"`
}

// CabinetSummary pairs a cabinet with its occupancy counts.
type CabinetSummary struct {
	Cabinet
	Occupancy Occupancy `json:"occupancy"`
}
