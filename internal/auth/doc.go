// Package auth provides token validation and scoping for Locker Core.
//
// Locker Core does not manage accounts or mint tokens: the tenant-management
// service owns users, companies, and credential issuance. This package
// validates the JWTs that service signs (HS256, shared secret) and turns
// them into an Actor carried on the request context.
//
// Roles form a 3-tier model:
//   - courier: creates deliveries for its own company's cabinets
//   - admin: manages one company's cabinets, deliveries, and couriers
//   - superadmin: platform operator, bypasses company scoping
//
// Company scoping is "deny across companies by default": courier and admin
// tokens must carry a company_id, and every cabinet/delivery operation is
// checked against it. Only superadmin tokens may omit the binding.
package auth
