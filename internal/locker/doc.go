// Package locker is the compartment registry: the single source of truth
// for cabinet and compartment identity and occupancy.
//
// A Cabinet is one physical unit (an ESP32-controlled bank of slots); a
// Compartment is one lockable slot with a physical pin address and a size
// class. Compartment status moves through available, occupied, maintenance,
// and reserved.
//
// # Occupancy Invariant
//
// Occupancy is coupled to the delivery lifecycle. A compartment becomes
// occupied only as part of a successful delivery creation and returns to
// available only through a successful pickup or the expiry sweep — never
// through a path that leaves the matching delivery record behind. The
// repository enforces the mechanics with compare-and-set transitions: every
// status change is a conditional UPDATE guarded by the expected current
// status, so racing writers cannot both win (the loser sees ErrConflict).
//
// Allocation during delivery creation does not use MarkOccupied directly:
// the delivery store combines compartment selection and the occupied
// transition inside one transaction, which is what makes "find available,
// then claim" safe under concurrency. The FindAvailable method here is the
// read path for display only.
//
// Administrative transitions (maintenance in/out) refuse occupied
// compartments so an in-flight delivery can never be orphaned.
package locker
