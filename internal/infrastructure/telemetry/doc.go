// Package telemetry provides InfluxDB connectivity for Clocked Core.
//
// It wraps the official influxdb-client-go v2 library with Clocked-specific
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Authentication events (logins, refreshes, reuse rejections)
//   - Broadcast fan-out counts per event type
//   - Active WebSocket connection counts
//
// # Usage
//
//	cfg := config.TelemetryConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "clocked",
//	    Bucket:  "metrics",
//	}
//
//	client, err := telemetry.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteAuthEvent("login")
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// A nil *Client is valid: every write method no-ops, so callers running
// without telemetry do not need to branch at each call site.
package telemetry
