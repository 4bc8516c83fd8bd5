package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteAuthEvent records an authentication event.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - event: The event name (e.g., "magic_link_requested", "login",
//     "refresh", "refresh_reuse_rejected", "logout")
//
// Example:
//
//	client.WriteAuthEvent("login")
//	client.WriteAuthEvent("refresh_reuse_rejected")
func (c *Client) WriteAuthEvent(event string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"auth_events",
		map[string]string{
			"event": event,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteBroadcast records a group fan-out: the event type delivered and
// how many connections received it.
//
// Parameters:
//   - eventType: The broadcast message type (e.g., "session_started")
//   - recipients: Number of connections the message was handed to
func (c *Client) WriteBroadcast(eventType string, recipients int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"broadcasts",
		map[string]string{
			"event_type": eventType,
		},
		map[string]interface{}{
			"recipients": recipients,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteConnectionCount records the current number of registered
// WebSocket connections. Intended to be sampled on a ticker.
func (c *Client) WriteConnectionCount(count int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"connections",
		nil,
		map[string]interface{}{
			"active": count,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
