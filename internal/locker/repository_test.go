package locker

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the locker tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE cabinets (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			company_id TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			hardware_id TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;

		CREATE TABLE compartments (
			id TEXT PRIMARY KEY,
			cabinet_id TEXT NOT NULL REFERENCES cabinets(id),
			number INTEGER NOT NULL,
			pin INTEGER NOT NULL,
			size TEXT NOT NULL CHECK (size IN ('small', 'medium', 'large')),
			status TEXT NOT NULL DEFAULT 'available'
				CHECK (status IN ('available', 'occupied', 'maintenance', 'reserved')),
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (cabinet_id, number),
			UNIQUE (cabinet_id, pin)
		) STRICT;
		CREATE INDEX idx_compartments_cabinet ON compartments(cabinet_id);
		CREATE INDEX idx_compartments_status ON compartments(status);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// testCabinet creates a cabinet for testing.
func testCabinet(hardwareID string) *Cabinet {
	return &Cabinet{
		Name:       "Lobby Cabinet",
		CompanyID:  "comp-01",
		Location:   "Main lobby, ground floor",
		HardwareID: hardwareID,
	}
}

func TestCreateCabinet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	t.Run("provisions cabinet with compartment fan-out", func(t *testing.T) {
		cabinet := testCabinet("esp32-0a1b2c")
		dist := SizeDistribution{Small: 2, Medium: 3, Large: 1}

		err := repo.CreateCabinet(ctx, cabinet, dist.FanOut(4))
		if err != nil {
			t.Fatalf("CreateCabinet() error = %v", err)
		}
		if cabinet.ID == "" {
			t.Fatal("CreateCabinet() did not assign an ID")
		}

		compartments, err := repo.ListCompartments(ctx, cabinet.ID)
		if err != nil {
			t.Fatalf("ListCompartments() error = %v", err)
		}
		if len(compartments) != 6 {
			t.Fatalf("got %d compartments, want 6", len(compartments))
		}

		// Fan-out assigns numbers 1..N and sequential pins from the base
		for i, c := range compartments {
			if c.Number != i+1 {
				t.Errorf("compartment %d: Number = %d, want %d", i, c.Number, i+1)
			}
			if c.Pin != 4+i {
				t.Errorf("compartment %d: Pin = %d, want %d", i, c.Pin, 4+i)
			}
			if c.Status != StatusAvailable {
				t.Errorf("compartment %d: Status = %q, want available", i, c.Status)
			}
		}
		if compartments[0].Size != SizeSmall || compartments[2].Size != SizeMedium || compartments[5].Size != SizeLarge {
			t.Error("fan-out size ordering wrong, want small then medium then large")
		}
	})

	t.Run("rejects duplicate hardware id", func(t *testing.T) {
		first := testCabinet("esp32-dup")
		if err := repo.CreateCabinet(ctx, first, SizeDistribution{Medium: 1}.FanOut(1)); err != nil {
			t.Fatalf("CreateCabinet() error = %v", err)
		}

		second := testCabinet("esp32-dup")
		err := repo.CreateCabinet(ctx, second, SizeDistribution{Medium: 1}.FanOut(1))
		if !errors.Is(err, ErrHardwareIDExists) {
			t.Errorf("CreateCabinet() error = %v, want ErrHardwareIDExists", err)
		}
	})

	t.Run("rejects invalid cabinet", func(t *testing.T) {
		cabinet := testCabinet("esp32-bad")
		cabinet.CompanyID = ""

		err := repo.CreateCabinet(ctx, cabinet, SizeDistribution{Medium: 1}.FanOut(1))
		if !errors.Is(err, ErrInvalidCabinet) {
			t.Errorf("CreateCabinet() error = %v, want ErrInvalidCabinet", err)
		}
	})

	t.Run("rejects empty distribution", func(t *testing.T) {
		cabinet := testCabinet("esp32-empty")

		err := repo.CreateCabinet(ctx, cabinet, nil)
		if !errors.Is(err, ErrInvalidCompartment) {
			t.Errorf("CreateCabinet() error = %v, want ErrInvalidCompartment", err)
		}
	})
}

func TestGetCabinet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	cabinet := testCabinet("esp32-get")
	if err := repo.CreateCabinet(ctx, cabinet, SizeDistribution{Medium: 2}.FanOut(1)); err != nil {
		t.Fatalf("CreateCabinet() error = %v", err)
	}

	got, err := repo.GetCabinet(ctx, cabinet.ID)
	if err != nil {
		t.Fatalf("GetCabinet() error = %v", err)
	}
	if got.HardwareID != "esp32-get" {
		t.Errorf("HardwareID = %q, want %q", got.HardwareID, "esp32-get")
	}

	byHW, err := repo.GetCabinetByHardwareID(ctx, "esp32-get")
	if err != nil {
		t.Fatalf("GetCabinetByHardwareID() error = %v", err)
	}
	if byHW.ID != cabinet.ID {
		t.Errorf("GetCabinetByHardwareID() ID = %q, want %q", byHW.ID, cabinet.ID)
	}

	_, err = repo.GetCabinet(ctx, "missing")
	if !errors.Is(err, ErrCabinetNotFound) {
		t.Errorf("GetCabinet(missing) error = %v, want ErrCabinetNotFound", err)
	}
}

func TestListCabinets(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	first := testCabinet("esp32-list-1")
	if err := repo.CreateCabinet(ctx, first, SizeDistribution{Medium: 3}.FanOut(1)); err != nil {
		t.Fatalf("CreateCabinet() error = %v", err)
	}

	second := testCabinet("esp32-list-2")
	second.CompanyID = "comp-02"
	if err := repo.CreateCabinet(ctx, second, SizeDistribution{Small: 1}.FanOut(1)); err != nil {
		t.Fatalf("CreateCabinet() error = %v", err)
	}

	compartments, err := repo.ListCompartments(ctx, first.ID)
	if err != nil {
		t.Fatalf("ListCompartments() error = %v", err)
	}
	if err := repo.MarkOccupied(ctx, compartments[0].ID); err != nil {
		t.Fatalf("MarkOccupied() error = %v", err)
	}

	t.Run("unscoped lists everything", func(t *testing.T) {
		all, err := repo.ListCabinets(ctx, "")
		if err != nil {
			t.Fatalf("ListCabinets() error = %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("got %d cabinets, want 2", len(all))
		}
	})

	t.Run("company scope filters and counts occupancy", func(t *testing.T) {
		scoped, err := repo.ListCabinets(ctx, "comp-01")
		if err != nil {
			t.Fatalf("ListCabinets() error = %v", err)
		}
		if len(scoped) != 1 {
			t.Fatalf("got %d cabinets, want 1", len(scoped))
		}

		occ := scoped[0].Occupancy
		if occ.Total != 3 || occ.Occupied != 1 || occ.Available != 2 {
			t.Errorf("Occupancy = %+v, want total 3, occupied 1, available 2", occ)
		}
	})
}

func TestStatusTransitions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	cabinet := testCabinet("esp32-cas")
	if err := repo.CreateCabinet(ctx, cabinet, SizeDistribution{Medium: 1}.FanOut(1)); err != nil {
		t.Fatalf("CreateCabinet() error = %v", err)
	}
	compartments, err := repo.ListCompartments(ctx, cabinet.ID)
	if err != nil {
		t.Fatalf("ListCompartments() error = %v", err)
	}
	id := compartments[0].ID

	t.Run("occupy then release", func(t *testing.T) {
		if err := repo.MarkOccupied(ctx, id); err != nil {
			t.Fatalf("MarkOccupied() error = %v", err)
		}

		// Second occupy loses the compare-and-set
		if err := repo.MarkOccupied(ctx, id); !errors.Is(err, ErrConflict) {
			t.Errorf("second MarkOccupied() error = %v, want ErrConflict", err)
		}

		if err := repo.MarkAvailable(ctx, id); err != nil {
			t.Fatalf("MarkAvailable() error = %v", err)
		}
		if err := repo.MarkAvailable(ctx, id); !errors.Is(err, ErrConflict) {
			t.Errorf("second MarkAvailable() error = %v, want ErrConflict", err)
		}
	})

	t.Run("maintenance refuses occupied compartment", func(t *testing.T) {
		if err := repo.MarkOccupied(ctx, id); err != nil {
			t.Fatalf("MarkOccupied() error = %v", err)
		}

		if err := repo.SetMaintenance(ctx, id); !errors.Is(err, ErrOccupied) {
			t.Errorf("SetMaintenance() on occupied error = %v, want ErrOccupied", err)
		}

		if err := repo.MarkAvailable(ctx, id); err != nil {
			t.Fatalf("MarkAvailable() error = %v", err)
		}
	})

	t.Run("maintenance round trip", func(t *testing.T) {
		if err := repo.SetMaintenance(ctx, id); err != nil {
			t.Fatalf("SetMaintenance() error = %v", err)
		}

		c, err := repo.GetCompartment(ctx, id)
		if err != nil {
			t.Fatalf("GetCompartment() error = %v", err)
		}
		if c.Status != StatusMaintenance {
			t.Errorf("Status = %q, want maintenance", c.Status)
		}

		if err := repo.ClearMaintenance(ctx, id); err != nil {
			t.Fatalf("ClearMaintenance() error = %v", err)
		}
		if err := repo.ClearMaintenance(ctx, id); !errors.Is(err, ErrConflict) {
			t.Errorf("second ClearMaintenance() error = %v, want ErrConflict", err)
		}
	})

	t.Run("unknown compartment", func(t *testing.T) {
		if err := repo.MarkOccupied(ctx, "missing"); !errors.Is(err, ErrCompartmentNotFound) {
			t.Errorf("MarkOccupied(missing) error = %v, want ErrCompartmentNotFound", err)
		}
	})
}

func TestFindAvailable(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	cabinet := testCabinet("esp32-find")
	if err := repo.CreateCabinet(ctx, cabinet, SizeDistribution{Small: 1, Large: 1}.FanOut(1)); err != nil {
		t.Fatalf("CreateCabinet() error = %v", err)
	}

	t.Run("filters by size", func(t *testing.T) {
		c, err := repo.FindAvailable(ctx, cabinet.ID, SizeLarge)
		if err != nil {
			t.Fatalf("FindAvailable() error = %v", err)
		}
		if c.Size != SizeLarge {
			t.Errorf("Size = %q, want large", c.Size)
		}
	})

	t.Run("any size when unconstrained", func(t *testing.T) {
		c, err := repo.FindAvailable(ctx, cabinet.ID, "")
		if err != nil {
			t.Fatalf("FindAvailable() error = %v", err)
		}
		if c.CabinetID != cabinet.ID {
			t.Errorf("CabinetID = %q, want %q", c.CabinetID, cabinet.ID)
		}
	})

	t.Run("no match reports not found", func(t *testing.T) {
		_, err := repo.FindAvailable(ctx, cabinet.ID, SizeMedium)
		if !errors.Is(err, ErrCompartmentNotFound) {
			t.Errorf("FindAvailable() error = %v, want ErrCompartmentNotFound", err)
		}
	})

	t.Run("rejects unknown size", func(t *testing.T) {
		_, err := repo.FindAvailable(ctx, "", Size("gigantic"))
		if !errors.Is(err, ErrInvalidSize) {
			t.Errorf("FindAvailable() error = %v, want ErrInvalidSize", err)
		}
	})
}

func TestValidateCabinet(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Cabinet)
		wantErr bool
	}{
		{"valid", func(*Cabinet) {}, false},
		{"empty name", func(c *Cabinet) { c.Name = "" }, true},
		{"empty company", func(c *Cabinet) { c.CompanyID = "" }, true},
		{"bad hardware id", func(c *Cabinet) { c.HardwareID = "has spaces" }, true},
		{"empty hardware id", func(c *Cabinet) { c.HardwareID = "" }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cabinet := testCabinet("esp32-valid")
			tc.mutate(cabinet)

			err := ValidateCabinet(cabinet)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateCabinet() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateSpecs(t *testing.T) {
	t.Run("duplicate number", func(t *testing.T) {
		specs := []CompartmentSpec{
			{Number: 1, Pin: 1, Size: SizeSmall},
			{Number: 1, Pin: 2, Size: SizeSmall},
		}
		if err := ValidateSpecs(specs); !errors.Is(err, ErrInvalidCompartment) {
			t.Errorf("ValidateSpecs() error = %v, want ErrInvalidCompartment", err)
		}
	})

	t.Run("duplicate pin", func(t *testing.T) {
		specs := []CompartmentSpec{
			{Number: 1, Pin: 1, Size: SizeSmall},
			{Number: 2, Pin: 1, Size: SizeSmall},
		}
		if err := ValidateSpecs(specs); !errors.Is(err, ErrInvalidCompartment) {
			t.Errorf("ValidateSpecs() error = %v, want ErrInvalidCompartment", err)
		}
	})

	t.Run("unknown size", func(t *testing.T) {
		specs := []CompartmentSpec{{Number: 1, Pin: 1, Size: Size("huge")}}
		if err := ValidateSpecs(specs); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("ValidateSpecs() error = %v, want ErrInvalidSize", err)
		}
	})
}
