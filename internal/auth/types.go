package auth

import "errors"

// Role represents an authorisation tier in the system.
//
// Tokens are minted by the tenant-management service; Locker Core only
// validates them and enforces scope. Roles mirror that service's model.
type Role string

const (
	// RoleCourier can create deliveries and trigger compartment commands
	// for cabinets belonging to its own company.
	RoleCourier Role = "courier"

	// RoleAdmin manages a single company: its cabinets, deliveries, and
	// couriers. Scoped to the company in the token.
	RoleAdmin Role = "admin"

	// RoleSuperAdmin is the platform operator. Sees every company,
	// provisions cabinets, and drives maintenance and gateway operations.
	RoleSuperAdmin Role = "superadmin"
)

// ValidRoles is the set of roles Locker Core accepts in a token.
var ValidRoles = []Role{RoleCourier, RoleAdmin, RoleSuperAdmin}

// IsValidRole returns true if the role is one Locker Core recognises.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Actor is the authenticated identity attached to a request context.
type Actor struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id,omitempty"`
	Role      Role   `json:"role"`
}

// IsPlatformOperator reports whether the actor bypasses company scoping.
func (a Actor) IsPlatformOperator() bool {
	return a.Role == RoleSuperAdmin
}

// CanAccessCompany reports whether the actor may operate on resources
// owned by the given company.
func (a Actor) CanAccessCompany(companyID string) bool {
	if a.IsPlatformOperator() {
		return true
	}
	return a.CompanyID != "" && a.CompanyID == companyID
}

// Sentinel errors for auth operations.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
	ErrForbidden    = errors.New("insufficient permissions")
)
