package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the base for all locker hardware topics.
//
// Each cabinet gets exactly one command topic and one status topic, both
// derived deterministically from its hardware identifier:
//
//	lockers/{hardware_id}/commands  — core -> cabinet actuation commands
//	lockers/{hardware_id}/status    — cabinet -> core feedback
const TopicPrefix = "lockers"

// Topics provides builders for locker MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
type Topics struct{}

// CabinetCommands returns the command topic for a cabinet.
//
// Example: lockers/esp32-0a1b2c/commands
func (Topics) CabinetCommands(hardwareID string) string {
	return fmt.Sprintf("%s/%s/commands", TopicPrefix, hardwareID)
}

// CabinetStatus returns the status feedback topic for a cabinet.
//
// Example: lockers/esp32-0a1b2c/status
func (Topics) CabinetStatus(hardwareID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefix, hardwareID)
}

// AllCabinetStatus returns a pattern matching every cabinet's status topic.
//
// Pattern: lockers/+/status
func (Topics) AllCabinetStatus() string {
	return fmt.Sprintf("%s/+/status", TopicPrefix)
}

// HardwareIDFromStatusTopic extracts the cabinet hardware identifier from a
// status topic. Returns ok=false for topics outside the status scheme.
func HardwareIDFromStatusTopic(topic string) (hardwareID string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefix || parts[2] != "status" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
