package locker

import "errors"

// Domain errors for the locker package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, locker.ErrConflict) {
//	    // lost a compare-and-set race
//	}
var (
	// ErrCabinetNotFound is returned when a cabinet ID does not exist.
	ErrCabinetNotFound = errors.New("locker: cabinet not found")

	// ErrCompartmentNotFound is returned when a compartment ID does not
	// exist, or no compartment matches an availability query.
	ErrCompartmentNotFound = errors.New("locker: compartment not found")

	// ErrHardwareIDExists is returned when provisioning a cabinet with a
	// hardware identifier that is already registered.
	ErrHardwareIDExists = errors.New("locker: hardware id already exists")

	// ErrConflict is returned when a status compare-and-set fails because
	// the compartment is not in the expected state. Allocation callers
	// surface this as NoCapacity; it is logged as a conflict for diagnosis.
	ErrConflict = errors.New("locker: status conflict")

	// ErrOccupied is returned when an administrative transition targets a
	// compartment that currently holds a parcel.
	ErrOccupied = errors.New("locker: compartment occupied")

	// ErrInvalidCabinet is returned when cabinet validation fails.
	ErrInvalidCabinet = errors.New("locker: invalid cabinet")

	// ErrInvalidCompartment is returned when compartment validation fails.
	ErrInvalidCompartment = errors.New("locker: invalid compartment")

	// ErrInvalidSize is returned when a size value is not recognised.
	ErrInvalidSize = errors.New("locker: invalid size")

	// ErrInvalidStatus is returned when a status value is not recognised.
	ErrInvalidStatus = errors.New("locker: invalid status")
)
