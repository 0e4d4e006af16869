package locker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for locker persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// CreateCabinet provisions a cabinet and fans out its compartments in
	// one transaction. Returns ErrHardwareIDExists if the hardware
	// identifier is already registered.
	CreateCabinet(ctx context.Context, cabinet *Cabinet, specs []CompartmentSpec) error

	// GetCabinet retrieves a cabinet by ID.
	// Returns ErrCabinetNotFound if the cabinet does not exist.
	GetCabinet(ctx context.Context, id string) (*Cabinet, error)

	// GetCabinetByHardwareID retrieves a cabinet by its controller identifier.
	GetCabinetByHardwareID(ctx context.Context, hardwareID string) (*Cabinet, error)

	// ListCabinets retrieves cabinets with occupancy counts.
	// An empty companyScope lists every cabinet (platform operator view).
	ListCabinets(ctx context.Context, companyScope string) ([]CabinetSummary, error)

	// ListCompartments retrieves all compartments of a cabinet ordered by number.
	ListCompartments(ctx context.Context, cabinetID string) ([]Compartment, error)

	// GetCompartment retrieves a compartment by ID.
	// Returns ErrCompartmentNotFound if the compartment does not exist.
	GetCompartment(ctx context.Context, id string) (*Compartment, error)

	// FindAvailable selects any available compartment matching the optional
	// cabinet scope and size. This is the display/read path only: the
	// allocation performed during delivery creation combines selection and
	// occupancy in a single transaction elsewhere.
	FindAvailable(ctx context.Context, cabinetScope string, size Size) (*Compartment, error)

	// MarkOccupied transitions available → occupied.
	// Returns ErrConflict if the compartment is not currently available.
	MarkOccupied(ctx context.Context, id string) error

	// MarkAvailable transitions occupied → available.
	// Returns ErrConflict if the compartment is not currently occupied.
	MarkAvailable(ctx context.Context, id string) error

	// SetMaintenance takes a compartment out of service.
	// Returns ErrOccupied if a parcel is inside.
	SetMaintenance(ctx context.Context, id string) error

	// ClearMaintenance returns a compartment to service.
	// Returns ErrConflict if the compartment is not in maintenance.
	ClearMaintenance(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateCabinet provisions a cabinet and its compartments in one transaction.
func (r *SQLiteRepository) CreateCabinet(ctx context.Context, cabinet *Cabinet, specs []CompartmentSpec) error {
	if err := ValidateCabinet(cabinet); err != nil {
		return err
	}
	if err := ValidateSpecs(specs); err != nil {
		return err
	}

	if cabinet.ID == "" {
		cabinet.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cabinet.CreatedAt.IsZero() {
		cabinet.CreatedAt = now
	}
	cabinet.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning cabinet transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cabinets (id, name, company_id, location, hardware_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cabinet.ID,
		cabinet.Name,
		cabinet.CompanyID,
		cabinet.Location,
		cabinet.HardwareID,
		cabinet.CreatedAt.Format(time.RFC3339),
		cabinet.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrHardwareIDExists
		}
		return fmt.Errorf("inserting cabinet: %w", err)
	}

	for _, spec := range specs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO compartments (id, cabinet_id, number, pin, size, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(),
			cabinet.ID,
			spec.Number,
			spec.Pin,
			string(spec.Size),
			string(StatusAvailable),
			now.Format(time.RFC3339),
			now.Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("inserting compartment %d: %w", spec.Number, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing cabinet transaction: %w", err)
	}
	return nil
}

// GetCabinet retrieves a cabinet by ID.
func (r *SQLiteRepository) GetCabinet(ctx context.Context, id string) (*Cabinet, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, company_id, location, hardware_id, created_at, updated_at
		FROM cabinets
		WHERE id = ?`, id)

	cabinet, err := scanCabinet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCabinetNotFound
		}
		return nil, fmt.Errorf("querying cabinet by id: %w", err)
	}
	return cabinet, nil
}

// GetCabinetByHardwareID retrieves a cabinet by its controller identifier.
func (r *SQLiteRepository) GetCabinetByHardwareID(ctx context.Context, hardwareID string) (*Cabinet, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, company_id, location, hardware_id, created_at, updated_at
		FROM cabinets
		WHERE hardware_id = ?`, hardwareID)

	cabinet, err := scanCabinet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCabinetNotFound
		}
		return nil, fmt.Errorf("querying cabinet by hardware id: %w", err)
	}
	return cabinet, nil
}

// ListCabinets retrieves cabinets with occupancy counts.
func (r *SQLiteRepository) ListCabinets(ctx context.Context, companyScope string) ([]CabinetSummary, error) {
	query := `
		SELECT c.id, c.name, c.company_id, c.location, c.hardware_id, c.created_at, c.updated_at,
			COUNT(p.id),
			COALESCE(SUM(CASE WHEN p.status = 'available' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN p.status = 'occupied' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN p.status = 'maintenance' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN p.status = 'reserved' THEN 1 ELSE 0 END), 0)
		FROM cabinets c
		LEFT JOIN compartments p ON p.cabinet_id = c.id`

	var args []any
	if companyScope != "" {
		query += ` WHERE c.company_id = ?`
		args = append(args, companyScope)
	}
	query += `
		GROUP BY c.id
		ORDER BY c.name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing cabinets: %w", err)
	}
	defer rows.Close()

	summaries := []CabinetSummary{}
	for rows.Next() {
		var s CabinetSummary
		var createdAt, updatedAt string
		err := rows.Scan(
			&s.ID, &s.Name, &s.CompanyID, &s.Location, &s.HardwareID,
			&createdAt, &updatedAt,
			&s.Occupancy.Total,
			&s.Occupancy.Available,
			&s.Occupancy.Occupied,
			&s.Occupancy.Maintenance,
			&s.Occupancy.Reserved,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning cabinet summary: %w", err)
		}
		if s.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if s.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cabinets: %w", err)
	}
	return summaries, nil
}

// ListCompartments retrieves all compartments of a cabinet ordered by number.
func (r *SQLiteRepository) ListCompartments(ctx context.Context, cabinetID string) ([]Compartment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, cabinet_id, number, pin, size, status, created_at, updated_at
		FROM compartments
		WHERE cabinet_id = ?
		ORDER BY number`, cabinetID)
	if err != nil {
		return nil, fmt.Errorf("listing compartments: %w", err)
	}
	defer rows.Close()

	compartments := []Compartment{}
	for rows.Next() {
		c, err := scanCompartmentRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning compartment: %w", err)
		}
		compartments = append(compartments, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating compartments: %w", err)
	}
	return compartments, nil
}

// GetCompartment retrieves a compartment by ID.
func (r *SQLiteRepository) GetCompartment(ctx context.Context, id string) (*Compartment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, cabinet_id, number, pin, size, status, created_at, updated_at
		FROM compartments
		WHERE id = ?`, id)

	c, err := scanCompartmentRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCompartmentNotFound
		}
		return nil, fmt.Errorf("querying compartment by id: %w", err)
	}
	return c, nil
}

// FindAvailable selects any available compartment matching the constraints.
func (r *SQLiteRepository) FindAvailable(ctx context.Context, cabinetScope string, size Size) (*Compartment, error) {
	query := `
		SELECT id, cabinet_id, number, pin, size, status, created_at, updated_at
		FROM compartments
		WHERE status = 'available'`

	var args []any
	if cabinetScope != "" {
		query += ` AND cabinet_id = ?`
		args = append(args, cabinetScope)
	}
	if size != "" {
		if !IsValidSize(size) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSize, size)
		}
		query += ` AND size = ?`
		args = append(args, string(size))
	}
	query += ` LIMIT 1`

	row := r.db.QueryRowContext(ctx, query, args...)
	c, err := scanCompartmentRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCompartmentNotFound
		}
		return nil, fmt.Errorf("querying available compartment: %w", err)
	}
	return c, nil
}

// MarkOccupied transitions available → occupied.
func (r *SQLiteRepository) MarkOccupied(ctx context.Context, id string) error {
	return r.transition(ctx, id, []Status{StatusAvailable}, StatusOccupied)
}

// MarkAvailable transitions occupied → available.
func (r *SQLiteRepository) MarkAvailable(ctx context.Context, id string) error {
	return r.transition(ctx, id, []Status{StatusOccupied}, StatusAvailable)
}

// SetMaintenance takes a compartment out of service.
// Occupied compartments are refused so an in-flight delivery is never orphaned.
func (r *SQLiteRepository) SetMaintenance(ctx context.Context, id string) error {
	err := r.transition(ctx, id, []Status{StatusAvailable, StatusReserved}, StatusMaintenance)
	if errors.Is(err, ErrConflict) {
		c, getErr := r.GetCompartment(ctx, id)
		if getErr == nil && c.Status == StatusOccupied {
			return ErrOccupied
		}
	}
	return err
}

// ClearMaintenance returns a compartment to service.
func (r *SQLiteRepository) ClearMaintenance(ctx context.Context, id string) error {
	return r.transition(ctx, id, []Status{StatusMaintenance}, StatusAvailable)
}

// transition performs a compare-and-set status update.
//
// The guard is part of the UPDATE itself, so two concurrent transitions on
// the same compartment can never both succeed: the loser's guard no longer
// matches and it observes ErrConflict.
func (r *SQLiteRepository) transition(ctx context.Context, id string, from []Status, to Status) error {
	placeholders := make([]string, len(from))
	args := []any{string(to), time.Now().UTC().Format(time.RFC3339), id}
	for i, s := range from {
		placeholders[i] = "?"
		args = append(args, string(s))
	}

	query := fmt.Sprintf(`
		UPDATE compartments
		SET status = ?, updated_at = ?
		WHERE id = ? AND status IN (%s)`, strings.Join(placeholders, ", "))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating compartment status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking compartment update: %w", err)
	}
	if affected == 0 {
		exists, err := r.compartmentExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return ErrCompartmentNotFound
		}
		return ErrConflict
	}
	return nil
}

// compartmentExists checks if a compartment with the given ID exists.
func (r *SQLiteRepository) compartmentExists(ctx context.Context, id string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM compartments WHERE id = ?", id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking compartment exists: %w", err)
	}
	return count > 0, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanCabinet scans a single row into a Cabinet.
func scanCabinet(scanner rowScanner) (*Cabinet, error) {
	var c Cabinet
	var createdAt, updatedAt string

	err := scanner.Scan(
		&c.ID, &c.Name, &c.CompanyID, &c.Location, &c.HardwareID,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &c, nil
}

// scanCompartmentRow scans a row or rows result into a Compartment.
func scanCompartmentRow(scanner rowScanner) (*Compartment, error) {
	var c Compartment
	var size, status string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&c.ID, &c.CabinetID, &c.Number, &c.Pin, &size, &status,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Size = Size(size)
	c.Status = Status(status)

	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &c, nil
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
