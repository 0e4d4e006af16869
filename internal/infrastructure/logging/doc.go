// Package logging provides structured logging for Locker Core.
//
// It wraps log/slog with configuration-driven setup: JSON or text output,
// level filtering, and default service/version fields on every record.
//
// Components receive a *Logger (or a narrower interface they define) by
// injection and typically scope it with Component("..."). Nothing
// in this repository logs through a package-level global.
package logging
