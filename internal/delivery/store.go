package delivery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parcelbay/locker-core/internal/locker"
)

// Store owns delivery persistence and the two atomic multi-table operations
// of the core: allocation (claim a compartment + insert the delivery) and
// pickup (consume the delivery + release the compartment).
//
// Both run inside a single transaction so a caller that disappears mid-way
// leaves nothing half-transitioned: the state change and its persistence are
// the same operation. Combined with the database layer's single write
// connection, two racing allocations or pickups serialize and exactly one
// wins; the loser's guarded UPDATE matches no rows.
type Store struct {
	db *sql.DB
}

// NewStore creates a delivery store on an open SQLite connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateDelivered allocates a compartment and inserts the delivery as
// delivered in one transaction.
//
// The compartment selection and the occupied transition are combined: the
// UPDATE is guarded by status = 'available', so even if another writer
// claimed the selected compartment between SELECT and UPDATE the guard
// fails and the allocation reports ErrNoCapacity rather than
// double-booking.
//
// On success d is filled in with the assigned compartment and timestamps.
// Returns ErrNoCapacity when nothing matches, ErrCodeCollision when the
// pickup code clashes with another active delivery (caller retries with a
// fresh code).
func (s *Store) CreateDelivered(ctx context.Context, d *Delivery, cabinetScope string, size locker.Size) error {
	if d.TrackingNumber == "" || d.PickupCode == "" {
		return fmt.Errorf("%w: missing credentials", ErrInvalidRequest)
	}
	if d.CompanyID == "" {
		return fmt.Errorf("%w: missing company", ErrInvalidRequest)
	}

	now := time.Now().UTC()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: missing expiry", ErrInvalidRequest)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning allocation transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	// Select any available compartment within the company, optionally
	// scoped to one cabinet and size class.
	query := `
		SELECT p.id, p.cabinet_id, p.number
		FROM compartments p
		JOIN cabinets c ON c.id = p.cabinet_id
		WHERE p.status = 'available' AND c.company_id = ?`
	args := []any{d.CompanyID}
	if cabinetScope != "" {
		query += ` AND p.cabinet_id = ?`
		args = append(args, cabinetScope)
	}
	if size != "" {
		query += ` AND p.size = ?`
		args = append(args, string(size))
	}
	query += ` LIMIT 1`

	var compartmentID, cabinetID string
	var number int
	err = tx.QueryRowContext(ctx, query, args...).Scan(&compartmentID, &cabinetID, &number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoCapacity
		}
		return fmt.Errorf("selecting compartment: %w", err)
	}

	// Claim it. The status guard is the compare-and-set that makes the
	// select-then-claim safe; a failed guard means we lost a race.
	result, err := tx.ExecContext(ctx, `
		UPDATE compartments
		SET status = 'occupied', updated_at = ?
		WHERE id = ? AND status = 'available'`,
		now.Format(time.RFC3339), compartmentID)
	if err != nil {
		return fmt.Errorf("claiming compartment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking compartment claim: %w", err)
	}
	if affected == 0 {
		return ErrNoCapacity
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO deliveries (
			id, tracking_number, pickup_code,
			recipient_name, recipient_email,
			company_id, cabinet_id, compartment_id,
			status, created_by, notes, created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.TrackingNumber, d.PickupCode,
		d.RecipientName, d.RecipientEmail,
		d.CompanyID, cabinetID, compartmentID,
		string(StatusDelivered), d.CreatedBy, d.Notes,
		d.CreatedAt.Format(time.RFC3339),
		d.ExpiresAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			// The partial unique index over active pickup codes, or the
			// global tracking number index. Both warrant fresh credentials.
			return ErrCodeCollision
		}
		return fmt.Errorf("inserting delivery: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing allocation: %w", err)
	}

	d.Status = StatusDelivered
	d.CabinetID = cabinetID
	d.CompartmentID = compartmentID
	d.CompartmentNumber = number
	return nil
}

// CompletePickup consumes an active delivery and releases its compartment
// in one transaction.
//
// Expiry is decided before any mutation, inside the same transaction as the
// transition, so a sweep racing a legitimate late pickup resolves
// deterministically in favour of whichever commits first. Losers of a
// pickup race observe ErrNotFound: by the time they run, no row with
// status delivered matches.
func (s *Store) CompletePickup(ctx context.Context, trackingNumber, pickupCode string, now time.Time) (*PickupResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning pickup transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var (
		deliveryID, compartmentID, cabinetID string
		companyID                            string
		hardwareID, recipientEmail           string
		number, pin                          int
		expiresAt                            string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT d.id, d.compartment_id, d.cabinet_id, d.company_id, d.expires_at,
			d.recipient_email, p.number, p.pin, c.hardware_id
		FROM deliveries d
		JOIN compartments p ON p.id = d.compartment_id
		JOIN cabinets c ON c.id = d.cabinet_id
		WHERE d.tracking_number = ? AND d.pickup_code = ? AND d.status = 'delivered'`,
		trackingNumber, pickupCode,
	).Scan(&deliveryID, &compartmentID, &cabinetID, &companyID, &expiresAt, &recipientEmail, &number, &pin, &hardwareID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Wrong credentials or already consumed; indistinguishable on
			// purpose.
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("looking up delivery: %w", err)
	}

	expiry, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	// A pickup at exactly the expiry instant is already too late.
	if !now.Before(expiry) {
		return nil, ErrExpired
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE deliveries
		SET status = 'picked_up', picked_up_at = ?
		WHERE id = ? AND status = 'delivered'`,
		now.UTC().Format(time.RFC3339), deliveryID)
	if err != nil {
		return nil, fmt.Errorf("transitioning delivery: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking delivery transition: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE compartments
		SET status = 'available', updated_at = ?
		WHERE id = ? AND status = 'occupied'`,
		now.UTC().Format(time.RFC3339), compartmentID)
	if err != nil {
		return nil, fmt.Errorf("releasing compartment: %w", err)
	}
	affected, err = result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking compartment release: %w", err)
	}
	if affected == 0 {
		// Occupancy invariant broken: an active delivery pointed at a
		// compartment that was not occupied. Abort rather than paper over.
		return nil, fmt.Errorf("%w: compartment %s not occupied for delivery %s",
			locker.ErrConflict, compartmentID, deliveryID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing pickup: %w", err)
	}

	return &PickupResult{
		DeliveryID:        deliveryID,
		CabinetID:         cabinetID,
		CompartmentNumber: number,
		companyID:         companyID,
		trackingNumber:    trackingNumber,
		recipientEmail:    recipientEmail,
		hardwareID:        hardwareID,
		pin:               pin,
	}, nil
}

// ExpireStale converts every delivered row past its expiry to expired and
// releases the compartments, all in one transaction.
//
// The same guarded UPDATEs as pickup are used, so a pickup that commits
// between selection and transition simply makes the sweep skip that row.
// Returns the deliveries it expired, for events and telemetry.
func (s *Store) ExpireStale(ctx context.Context, now time.Time) ([]Delivery, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning sweep transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	rows, err := tx.QueryContext(ctx, `
		SELECT d.id, d.tracking_number, d.cabinet_id, d.compartment_id, p.number
		FROM deliveries d
		JOIN compartments p ON p.id = d.compartment_id
		WHERE d.status = 'delivered' AND d.expires_at <= ?`,
		now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("selecting stale deliveries: %w", err)
	}

	var stale []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.TrackingNumber, &d.CabinetID, &d.CompartmentID, &d.CompartmentNumber); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning stale delivery: %w", err)
		}
		stale = append(stale, d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating stale deliveries: %w", err)
	}
	rows.Close()

	expired := make([]Delivery, 0, len(stale))
	for _, d := range stale {
		result, err := tx.ExecContext(ctx, `
			UPDATE deliveries
			SET status = 'expired'
			WHERE id = ? AND status = 'delivered'`, d.ID)
		if err != nil {
			return nil, fmt.Errorf("expiring delivery %s: %w", d.ID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("checking expiry of %s: %w", d.ID, err)
		}
		if affected == 0 {
			// Picked up while the sweep was running; leave it alone.
			continue
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE compartments
			SET status = 'available', updated_at = ?
			WHERE id = ? AND status = 'occupied'`,
			now.UTC().Format(time.RFC3339), d.CompartmentID); err != nil {
			return nil, fmt.Errorf("releasing compartment %s: %w", d.CompartmentID, err)
		}

		d.Status = StatusExpired
		expired = append(expired, d)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing sweep: %w", err)
	}
	return expired, nil
}

// List retrieves deliveries, newest first.
// An empty companyScope lists across companies (platform operator view);
// an empty status lists every status.
func (s *Store) List(ctx context.Context, companyScope string, status Status) ([]Delivery, error) {
	if status != "" && !IsValidStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, status)
	}

	query := `
		SELECT d.id, d.tracking_number, d.recipient_name, d.recipient_email,
			d.company_id, d.cabinet_id, d.compartment_id, p.number,
			d.status, d.created_by, d.notes, d.created_at, d.expires_at, d.picked_up_at
		FROM deliveries d
		JOIN compartments p ON p.id = d.compartment_id`

	var conds []string
	var args []any
	if companyScope != "" {
		conds = append(conds, "d.company_id = ?")
		args = append(args, companyScope)
	}
	if status != "" {
		conds = append(conds, "d.status = ?")
		args = append(args, string(status))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY d.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := []Delivery{}
	for rows.Next() {
		var d Delivery
		var status, createdAt, expiresAt string
		var createdBy, notes sql.NullString
		var pickedUpAt sql.NullString

		err := rows.Scan(
			&d.ID, &d.TrackingNumber, &d.RecipientName, &d.RecipientEmail,
			&d.CompanyID, &d.CabinetID, &d.CompartmentID, &d.CompartmentNumber,
			&status, &createdBy, &notes, &createdAt, &expiresAt, &pickedUpAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}

		d.Status = Status(status)
		d.CreatedBy = createdBy.String
		d.Notes = notes.String
		if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if d.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt); err != nil {
			return nil, fmt.Errorf("parsing expires_at: %w", err)
		}
		if pickedUpAt.Valid {
			t, err := time.Parse(time.RFC3339, pickedUpAt.String)
			if err != nil {
				return nil, fmt.Errorf("parsing picked_up_at: %w", err)
			}
			d.PickedUpAt = &t
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deliveries: %w", err)
	}
	return deliveries, nil
}

// LogActivity records an administrative action in the audit trail.
// Audit failures are surfaced to the caller but are logged, not fatal.
func (s *Store) LogActivity(ctx context.Context, actorID, action, cabinetID, compartmentID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, actor_id, action, cabinet_id, compartment_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), actorID, action, cabinetID, compartmentID,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording activity: %w", err)
	}
	return nil
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
