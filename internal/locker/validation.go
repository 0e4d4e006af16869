package locker

import (
	"fmt"
	"regexp"
)

// Validation constants.
const (
	maxNameLength     = 100
	maxLocationLength = 200

	// hardwareIDPattern matches controller identifiers as flashed onto the
	// ESP32 boards: alphanumeric with dots, hyphens, underscores.
	hardwareIDPattern = `^[a-zA-Z0-9._-]{1,64}$`

	// maxCompartments bounds a single cabinet's provisioning fan-out.
	maxCompartments = 128
)

var hardwareIDRegex = regexp.MustCompile(hardwareIDPattern)

// Pre-computed validation sets for O(1) lookups.
var (
	validSizes    map[Size]struct{}
	validStatuses map[Status]struct{}
)

func init() {
	validSizes = make(map[Size]struct{}, len(AllSizes()))
	for _, s := range AllSizes() {
		validSizes[s] = struct{}{}
	}

	validStatuses = make(map[Status]struct{}, len(AllStatuses()))
	for _, s := range AllStatuses() {
		validStatuses[s] = struct{}{}
	}
}

// IsValidSize returns true if the size is recognised.
func IsValidSize(s Size) bool {
	_, ok := validSizes[s]
	return ok
}

// IsValidStatus returns true if the status is recognised.
func IsValidStatus(s Status) bool {
	_, ok := validStatuses[s]
	return ok
}

// ValidateCabinet checks a cabinet ahead of provisioning.
// Returns an error describing the first validation failure found.
func ValidateCabinet(c *Cabinet) error {
	if c == nil {
		return ErrInvalidCabinet
	}
	if c.Name == "" || len(c.Name) > maxNameLength {
		return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidCabinet, maxNameLength)
	}
	if c.CompanyID == "" {
		return fmt.Errorf("%w: company_id is required", ErrInvalidCabinet)
	}
	if len(c.Location) > maxLocationLength {
		return fmt.Errorf("%w: location exceeds %d characters", ErrInvalidCabinet, maxLocationLength)
	}
	if !hardwareIDRegex.MatchString(c.HardwareID) {
		return fmt.Errorf("%w: hardware_id must match %s", ErrInvalidCabinet, hardwareIDPattern)
	}
	return nil
}

// ValidateDistribution checks a provisioning size distribution.
func ValidateDistribution(d SizeDistribution) error {
	if d.Small < 0 || d.Medium < 0 || d.Large < 0 {
		return fmt.Errorf("%w: negative compartment count", ErrInvalidCompartment)
	}
	total := d.Total()
	if total == 0 {
		return fmt.Errorf("%w: cabinet needs at least one compartment", ErrInvalidCompartment)
	}
	if total > maxCompartments {
		return fmt.Errorf("%w: cabinet exceeds %d compartments", ErrInvalidCompartment, maxCompartments)
	}
	return nil
}

// ValidateSpecs checks explicit compartment specs for duplicate numbers or
// pins and unknown sizes.
func ValidateSpecs(specs []CompartmentSpec) error {
	if len(specs) == 0 {
		return fmt.Errorf("%w: cabinet needs at least one compartment", ErrInvalidCompartment)
	}
	if len(specs) > maxCompartments {
		return fmt.Errorf("%w: cabinet exceeds %d compartments", ErrInvalidCompartment, maxCompartments)
	}

	numbers := make(map[int]struct{}, len(specs))
	pins := make(map[int]struct{}, len(specs))
	for _, spec := range specs {
		if spec.Number <= 0 {
			return fmt.Errorf("%w: compartment number must be positive", ErrInvalidCompartment)
		}
		if spec.Pin < 0 {
			return fmt.Errorf("%w: pin must be non-negative", ErrInvalidCompartment)
		}
		if !IsValidSize(spec.Size) {
			return fmt.Errorf("%w: %q", ErrInvalidSize, spec.Size)
		}
		if _, dup := numbers[spec.Number]; dup {
			return fmt.Errorf("%w: duplicate compartment number %d", ErrInvalidCompartment, spec.Number)
		}
		if _, dup := pins[spec.Pin]; dup {
			return fmt.Errorf("%w: duplicate pin %d", ErrInvalidCompartment, spec.Pin)
		}
		numbers[spec.Number] = struct{}{}
		pins[spec.Pin] = struct{}{}
	}
	return nil
}
