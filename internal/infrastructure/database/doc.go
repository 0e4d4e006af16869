// Package database provides the SQLite connection and migration runner for
// Locker Core.
//
// SQLite is the single durable store: cabinets, compartments, and deliveries
// all live here. The connection pool is pinned to one connection because
// SQLite has a single writer; the delivery store relies on that to serialise
// its allocation and pickup transactions.
//
// Migrations are embedded SQL files (see the migrations package) applied in
// version order, one transaction per migration.
package database
