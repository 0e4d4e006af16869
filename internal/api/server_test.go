package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	_ "github.com/mattn/go-sqlite3"

	"github.com/parcelbay/locker-core/internal/auth"
	"github.com/parcelbay/locker-core/internal/delivery"
	"github.com/parcelbay/locker-core/internal/infrastructure/config"
	"github.com/parcelbay/locker-core/internal/infrastructure/logging"
	"github.com/parcelbay/locker-core/internal/infrastructure/mqtt"
	"github.com/parcelbay/locker-core/internal/locker"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// offlineGateway satisfies delivery.Gateway without a broker, reporting
// permanent degraded mode so every dispatch is simulated.
type offlineGateway struct{}

func (offlineGateway) Publish(string, []byte, byte, bool) error { return mqtt.ErrNotConnected }
func (offlineGateway) State() mqtt.ConnState                    { return mqtt.StateOffline }

// testServer creates a Server with a real manager backed by in-memory SQLite.
func testServer(t *testing.T) (*Server, *sql.DB) {
	t.Helper()

	db := setupTestDB(t)
	registry := locker.NewSQLiteRepository(db)
	store := delivery.NewStore(db)

	manager, err := delivery.NewManager(delivery.Config{TTL: time.Hour}, delivery.Deps{
		Store:      store,
		Registry:   registry,
		Dispatcher: delivery.NewDispatcher(offlineGateway{}, 1, nil),
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testSecret},
		},
		Logger:   log,
		Manager:  manager,
		Registry: registry,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	srv.hub = NewHub(srv.wsCfg, log)
	go srv.hub.Run(context.Background())

	return srv, db
}

// setupTestDB creates an in-memory SQLite database with the full schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

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

		CREATE TABLE deliveries (
			id TEXT PRIMARY KEY,
			tracking_number TEXT NOT NULL UNIQUE,
			pickup_code TEXT NOT NULL,
			recipient_name TEXT NOT NULL,
			recipient_email TEXT NOT NULL,
			company_id TEXT NOT NULL,
			cabinet_id TEXT NOT NULL REFERENCES cabinets(id),
			compartment_id TEXT NOT NULL REFERENCES compartments(id),
			status TEXT NOT NULL
				CHECK (status IN ('pending', 'delivered', 'picked_up', 'expired', 'returned')),
			created_by TEXT,
			notes TEXT,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			picked_up_at TEXT
		) STRICT;
		CREATE UNIQUE INDEX idx_deliveries_active_code
			ON deliveries(pickup_code) WHERE status = 'delivered';
		CREATE UNIQUE INDEX idx_deliveries_active_compartment
			ON deliveries(compartment_id) WHERE status = 'delivered';

		CREATE TABLE activity_log (
			id TEXT PRIMARY KEY,
			actor_id TEXT NOT NULL,
			action TEXT NOT NULL,
			cabinet_id TEXT NOT NULL,
			compartment_id TEXT NOT NULL,
			created_at TEXT NOT NULL
		) STRICT;
	`

	if _, execErr := db.Exec(schema); execErr != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// tokenFor mints a bearer token the way the account service would.
func tokenFor(t *testing.T, subject string, role auth.Role, companyID string) string {
	t.Helper()

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
		Role:      role,
		CompanyID: companyID,
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return signed
}

// doJSON performs a request against the router and decodes the JSON response.
func doJSON(t *testing.T, router http.Handler, method, path, token, body string) (int, map[string]any) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response %q: %v", w.Body.String(), err)
		}
	}
	return w.Code, resp
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	code, resp := doJSON(t, router, http.MethodGet, "/api/v1/health", "", "")
	if code != http.StatusOK {
		t.Errorf("health status = %d, want %d", code, http.StatusOK)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	// No gateway wired in tests
	if resp["gateway"] != "disabled" {
		t.Errorf("gateway = %v, want disabled", resp["gateway"])
	}
}

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestAuthRequired(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	protected := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/deliveries"},
		{http.MethodPost, "/api/v1/deliveries"},
		{http.MethodGet, "/api/v1/lockers"},
		{http.MethodPost, "/api/v1/lockers"},
	}

	for _, route := range protected {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			code, _ := doJSON(t, router, route.method, route.path, "", "{}")
			if code != http.StatusUnauthorized {
				t.Errorf("status without token = %d, want %d", code, http.StatusUnauthorized)
			}

			code, _ = doJSON(t, router, route.method, route.path, "garbage-token", "{}")
			if code != http.StatusUnauthorized {
				t.Errorf("status with bad token = %d, want %d", code, http.StatusUnauthorized)
			}
		})
	}

	t.Run("expired token says so", func(t *testing.T) {
		now := time.Now()
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.CustomClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "usr-stale",
				IssuedAt:  jwt.NewNumericDate(now.Add(-time.Hour)),
				ExpiresAt: jwt.NewNumericDate(now.Add(-30 * time.Minute)),
			},
			Role:      auth.RoleCourier,
			CompanyID: "comp-01",
		})
		signed, err := token.SignedString([]byte(testSecret))
		if err != nil {
			t.Fatalf("signing test token: %v", err)
		}

		code, resp := doJSON(t, router, http.MethodGet, "/api/v1/deliveries", signed, "")
		if code != http.StatusUnauthorized {
			t.Fatalf("status with expired token = %d, want %d", code, http.StatusUnauthorized)
		}
		if resp["message"] != "token expired" {
			t.Errorf("message = %v, want %q", resp["message"], "token expired")
		}
	})
}

// provisionCabinet creates a cabinet over the API and returns its ID.
func provisionCabinet(t *testing.T, router http.Handler, adminToken, hardwareID string, medium int) string {
	t.Helper()

	code, resp := doJSON(t, router, http.MethodPost, "/api/v1/lockers", adminToken, `{
		"name": "Lobby Bank",
		"location": "North entrance",
		"hardware_id": "`+hardwareID+`",
		"distribution": {"medium": `+jsonInt(medium)+`}
	}`)
	if code != http.StatusCreated {
		t.Fatalf("provisioning status = %d, body %v", code, resp)
	}
	id, _ := resp["id"].(string)
	if id == "" {
		t.Fatalf("no cabinet id in response: %v", resp)
	}
	return id
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestCabinetProvisioning(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	admin := tokenFor(t, "usr-admin", auth.RoleAdmin, "comp-01")
	courier := tokenFor(t, "usr-courier", auth.RoleCourier, "comp-01")

	cabinetID := provisionCabinet(t, router, admin, "esp32-lobby", 3)

	t.Run("courier cannot provision", func(t *testing.T) {
		code, _ := doJSON(t, router, http.MethodPost, "/api/v1/lockers", courier, `{
			"name": "Rogue Bank",
			"hardware_id": "esp32-rogue",
			"distribution": {"small": 1}
		}`)
		if code != http.StatusForbidden {
			t.Errorf("courier provisioning status = %d, want %d", code, http.StatusForbidden)
		}
	})

	t.Run("duplicate hardware id conflicts", func(t *testing.T) {
		code, _ := doJSON(t, router, http.MethodPost, "/api/v1/lockers", admin, `{
			"name": "Duplicate Bank",
			"hardware_id": "esp32-lobby",
			"distribution": {"medium": 1}
		}`)
		if code != http.StatusConflict {
			t.Errorf("duplicate hardware id status = %d, want %d", code, http.StatusConflict)
		}
	})

	t.Run("get includes compartments", func(t *testing.T) {
		code, resp := doJSON(t, router, http.MethodGet, "/api/v1/lockers/"+cabinetID, admin, "")
		if code != http.StatusOK {
			t.Fatalf("get cabinet status = %d", code)
		}
		compartments, _ := resp["compartments"].([]any)
		if len(compartments) != 3 {
			t.Errorf("got %d compartments, want 3", len(compartments))
		}
	})

	t.Run("foreign company reads as not found", func(t *testing.T) {
		outsider := tokenFor(t, "usr-out", auth.RoleAdmin, "comp-99")
		code, _ := doJSON(t, router, http.MethodGet, "/api/v1/lockers/"+cabinetID, outsider, "")
		if code != http.StatusNotFound {
			t.Errorf("foreign get status = %d, want %d", code, http.StatusNotFound)
		}
	})

	t.Run("list shows occupancy", func(t *testing.T) {
		code, resp := doJSON(t, router, http.MethodGet, "/api/v1/lockers", admin, "")
		if code != http.StatusOK {
			t.Fatalf("list status = %d", code)
		}
		if int(resp["count"].(float64)) != 1 {
			t.Errorf("count = %v, want 1", resp["count"])
		}
	})
}

func TestDeliveryFlow(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	admin := tokenFor(t, "usr-admin", auth.RoleAdmin, "comp-01")
	courier := tokenFor(t, "usr-courier", auth.RoleCourier, "comp-01")
	provisionCabinet(t, router, admin, "esp32-flow", 1)

	var trackingNumber, pickupCode string

	t.Run("drop-off returns credentials once", func(t *testing.T) {
		code, resp := doJSON(t, router, http.MethodPost, "/api/v1/deliveries", courier, `{
			"recipient_name": "Ada Recipient",
			"recipient_email": "ada@example.com"
		}`)
		if code != http.StatusCreated {
			t.Fatalf("create status = %d, body %v", code, resp)
		}

		trackingNumber, _ = resp["tracking_number"].(string)
		pickupCode, _ = resp["pickup_code"].(string)
		if !strings.HasPrefix(trackingNumber, "TRK") || pickupCode == "" {
			t.Fatalf("credentials missing from response: %v", resp)
		}
		if resp["payload"] == "" {
			t.Error("no scannable payload in response")
		}
	})

	t.Run("capacity exhausted returns conflict", func(t *testing.T) {
		code, _ := doJSON(t, router, http.MethodPost, "/api/v1/deliveries", courier, `{
			"recipient_name": "Second Parcel",
			"recipient_email": "second@example.com"
		}`)
		if code != http.StatusConflict {
			t.Errorf("create on full cabinet status = %d, want %d", code, http.StatusConflict)
		}
	})

	t.Run("listing hides the pickup code", func(t *testing.T) {
		code, resp := doJSON(t, router, http.MethodGet, "/api/v1/deliveries?status=delivered", courier, "")
		if code != http.StatusOK {
			t.Fatalf("list status = %d", code)
		}
		deliveries, _ := resp["deliveries"].([]any)
		if len(deliveries) != 1 {
			t.Fatalf("got %d deliveries, want 1", len(deliveries))
		}
		row, _ := deliveries[0].(map[string]any)
		if _, leaked := row["pickup_code"]; leaked {
			t.Error("pickup_code leaked in list response")
		}
	})

	t.Run("public pickup completes in degraded mode", func(t *testing.T) {
		code, resp := doJSON(t, router, http.MethodPost, "/api/v1/deliveries/pickup", "", `{
			"tracking_number": "`+trackingNumber+`",
			"pickup_code": "`+pickupCode+`"
		}`)
		if code != http.StatusOK {
			t.Fatalf("pickup status = %d, body %v", code, resp)
		}
		if resp["dispatch"] != "simulated" {
			t.Errorf("dispatch = %v, want simulated with offline gateway", resp["dispatch"])
		}
	})

	t.Run("consumed credentials read as not found", func(t *testing.T) {
		code, _ := doJSON(t, router, http.MethodPost, "/api/v1/deliveries/pickup", "", `{
			"tracking_number": "`+trackingNumber+`",
			"pickup_code": "`+pickupCode+`"
		}`)
		if code != http.StatusNotFound {
			t.Errorf("repeat pickup status = %d, want %d", code, http.StatusNotFound)
		}
	})

	t.Run("pickup validation", func(t *testing.T) {
		code, _ := doJSON(t, router, http.MethodPost, "/api/v1/deliveries/pickup", "", `{"tracking_number": ""}`)
		if code != http.StatusBadRequest {
			t.Errorf("blank pickup status = %d, want %d", code, http.StatusBadRequest)
		}
	})
}

func TestExpiredPickupRejected(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()

	admin := tokenFor(t, "usr-admin", auth.RoleAdmin, "comp-01")
	courier := tokenFor(t, "usr-courier", auth.RoleCourier, "comp-01")
	provisionCabinet(t, router, admin, "esp32-late", 1)

	code, resp := doJSON(t, router, http.MethodPost, "/api/v1/deliveries", courier, `{
		"recipient_name": "Late Collector",
		"recipient_email": "late@example.com"
	}`)
	if code != http.StatusCreated {
		t.Fatalf("create status = %d, body %v", code, resp)
	}
	tracking, _ := resp["tracking_number"].(string)
	pickup, _ := resp["pickup_code"].(string)

	past := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	if _, err := db.Exec(`UPDATE deliveries SET expires_at = ? WHERE tracking_number = ?`, past, tracking); err != nil {
		t.Fatalf("backdating expiry: %v", err)
	}

	code, resp = doJSON(t, router, http.MethodPost, "/api/v1/deliveries/pickup", "", `{
		"tracking_number": "`+tracking+`",
		"pickup_code": "`+pickup+`"
	}`)
	if code != http.StatusBadRequest {
		t.Fatalf("expired pickup status = %d, want %d (body %v)", code, http.StatusBadRequest, resp)
	}
	if resp["code"] != "expired" {
		t.Errorf("error code = %v, want %q", resp["code"], "expired")
	}

	// The parcel stays locked up; only the sweep releases the compartment.
	var status string
	err := db.QueryRow(`
		SELECT p.status FROM compartments p
		JOIN cabinets c ON c.id = p.cabinet_id
		WHERE c.hardware_id = 'esp32-late'`).Scan(&status)
	if err != nil {
		t.Fatalf("reading compartment status: %v", err)
	}
	if status != "occupied" {
		t.Errorf("compartment status = %q after expired pickup, want occupied", status)
	}
}

func TestQRPickup(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	admin := tokenFor(t, "usr-admin", auth.RoleAdmin, "comp-01")
	courier := tokenFor(t, "usr-courier", auth.RoleCourier, "comp-01")
	provisionCabinet(t, router, admin, "esp32-qr", 1)

	code, resp := doJSON(t, router, http.MethodPost, "/api/v1/deliveries", courier, `{
		"recipient_name": "Ada Recipient",
		"recipient_email": "ada@example.com"
	}`)
	if code != http.StatusCreated {
		t.Fatalf("create status = %d", code)
	}
	payload, _ := resp["payload"].(string)

	t.Run("malformed payload", func(t *testing.T) {
		code, _ := doJSON(t, router, http.MethodPost, "/api/v1/deliveries/pickup/qr", "", `{"payload": "!!!"}`)
		if code != http.StatusBadRequest {
			t.Errorf("malformed payload status = %d, want %d", code, http.StatusBadRequest)
		}
	})

	t.Run("scanned payload completes", func(t *testing.T) {
		code, resp := doJSON(t, router, http.MethodPost, "/api/v1/deliveries/pickup/qr", "", `{"payload": "`+payload+`"}`)
		if code != http.StatusOK {
			t.Fatalf("qr pickup status = %d, body %v", code, resp)
		}
	})
}

func TestCompartmentControl(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()

	admin := tokenFor(t, "usr-admin", auth.RoleAdmin, "comp-01")
	cabinetID := provisionCabinet(t, router, admin, "esp32-control", 1)

	var compartmentID string
	err := db.QueryRow("SELECT id FROM compartments WHERE cabinet_id = ?", cabinetID).Scan(&compartmentID)
	if err != nil {
		t.Fatalf("finding compartment: %v", err)
	}

	t.Run("open is simulated with offline gateway", func(t *testing.T) {
		code, resp := doJSON(t, router, http.MethodPost,
			"/api/v1/lockers/"+cabinetID+"/compartments/"+compartmentID+"/control", admin,
			`{"action": "open"}`)
		if code != http.StatusOK {
			t.Fatalf("control status = %d, body %v", code, resp)
		}
		if resp["dispatch"] != "simulated" {
			t.Errorf("dispatch = %v, want simulated", resp["dispatch"])
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		code, _ := doJSON(t, router, http.MethodPost,
			"/api/v1/lockers/"+cabinetID+"/compartments/"+compartmentID+"/control", admin,
			`{"action": "detonate"}`)
		if code != http.StatusBadRequest {
			t.Errorf("bad action status = %d, want %d", code, http.StatusBadRequest)
		}
	})

	t.Run("maintenance round trip", func(t *testing.T) {
		code, _ := doJSON(t, router, http.MethodPut,
			"/api/v1/lockers/"+cabinetID+"/compartments/"+compartmentID+"/maintenance", admin,
			`{"enabled": true}`)
		if code != http.StatusOK {
			t.Fatalf("set maintenance status = %d", code)
		}

		var status string
		if err := db.QueryRow("SELECT status FROM compartments WHERE id = ?", compartmentID).Scan(&status); err != nil {
			t.Fatalf("reading compartment: %v", err)
		}
		if status != "maintenance" {
			t.Errorf("status = %q, want maintenance", status)
		}

		code, _ = doJSON(t, router, http.MethodPut,
			"/api/v1/lockers/"+cabinetID+"/compartments/"+compartmentID+"/maintenance", admin,
			`{"enabled": false}`)
		if code != http.StatusOK {
			t.Fatalf("clear maintenance status = %d", code)
		}
	})
}
