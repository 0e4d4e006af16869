package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDeliveryEvent records a delivery lifecycle transition.
//
// The write is non-blocking; points are batched and sent asynchronously. A
// disconnected client drops the point silently.
//
// Parameters:
//   - event: The lifecycle event ("created", "picked_up", "expired", "returned")
//   - cabinetID: Cabinet holding the parcel
//   - compartment: Compartment number within the cabinet
//   - dispatched: Whether the associated hardware command reached the broker
//     (false means the command was simulated in degraded mode)
//
// Example:
//
//	client.WriteDeliveryEvent("picked_up", "cab-01", 3, true)
func (c *Client) WriteDeliveryEvent(event string, cabinetID string, compartment int, dispatched bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"delivery_events",
		map[string]string{
			"event":      event,
			"cabinet_id": cabinetID,
		},
		map[string]interface{}{
			"compartment": compartment,
			"dispatched":  dispatched,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteOccupancy records a cabinet occupancy snapshot.
//
// Used for utilisation dashboards and capacity planning.
//
// Parameters:
//   - cabinetID: Cabinet identifier
//   - occupied: Number of compartments currently holding a parcel
//   - total: Total usable compartments (excludes maintenance)
func (c *Client) WriteOccupancy(cabinetID string, occupied int, total int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"occupancy",
		map[string]string{
			"cabinet_id": cabinetID,
		},
		map[string]interface{}{
			"occupied": occupied,
			"total":    total,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteGatewayState records an MQTT gateway state transition.
//
// Tracks broker availability over time so degraded-mode windows are visible
// after the fact.
//
// Parameters:
//   - state: Gateway state name ("connected", "offline", ...)
func (c *Client) WriteGatewayState(state string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"gateway_state",
		map[string]string{
			"state": state,
		},
		map[string]interface{}{
			"value": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., backfilled data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
