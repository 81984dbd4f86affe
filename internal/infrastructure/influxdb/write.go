package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/emitter-go/internal/channel"
)

// Measurement names.
const (
	measurementMessages   = "emitter_messages"
	measurementConnection = "emitter_connection"
)

// Message directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// WriteMessageMetric records one message of size bytes on ch.
// direction is DirectionIn or DirectionOut. The channel tag drops any
// options query, so "chat/?ttl=30" and "chat" share the series "chat/".
//
// Safe to call on a nil or closed client (no-op), so callers need not
// check whether metrics are enabled.
func (c *Client) WriteMessageMetric(ch, direction string, size int) {
	c.writePoint(measurementMessages,
		map[string]string{
			"channel":   channel.Parse(ch).Path,
			"direction": direction,
		},
		map[string]any{
			"count": 1,
			"bytes": size,
		},
		time.Now(),
	)
}

// WriteConnectionEvent records a connection state change such as
// "connected" or "disconnected".
func (c *Client) WriteConnectionEvent(event string) {
	c.writePoint(measurementConnection,
		map[string]string{"event": event},
		map[string]any{"count": 1},
		time.Now(),
	)
}

// WritePoint writes a custom point timestamped now.
//
//	client.WritePoint("emitter_keygen",
//	    map[string]string{"channel": "chat/"},
//	    map[string]any{"ttl": 3600})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.writePoint(measurement, tags, fields, time.Now())
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
