// Package influxdb provides time-series telemetry for Locker Core.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking batched writes, and health monitoring.
//
// # Purpose
//
// This package records operational time-series data:
//   - Delivery lifecycle events (created, picked up, expired, returned)
//   - Cabinet occupancy snapshots for utilisation dashboards
//   - MQTT gateway state transitions (degraded-mode visibility)
//
// Telemetry is best-effort and entirely optional: the service runs fine
// with influxdb.enabled=false, and a mid-run outage drops points without
// affecting the delivery flow.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without telemetry
//	}
//	defer client.Close()
//
//	client.WriteDeliveryEvent("created", "cab-01", 3, true)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking; batch errors surface via the SetOnError
// callback. Connection and health check errors are returned directly.
package influxdb
