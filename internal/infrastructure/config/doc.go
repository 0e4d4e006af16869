// Package config loads and validates Locker Core configuration.
//
// Configuration comes from three layers, later layers overriding earlier:
//
//  1. Hardcoded defaults (defaultConfig)
//  2. YAML file (configs/config.yaml)
//  3. Environment variables (LOCKERCORE_* pattern)
//
// Validation runs after all layers are applied; the process refuses to start
// with an invalid configuration rather than limping along with bad values.
//
// Secrets (JWT secret, MQTT password, InfluxDB token) should come from
// environment variables in production, never from the YAML file.
package config
