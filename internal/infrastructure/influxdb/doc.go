// Package influxdb records Emitter traffic metrics in InfluxDB v2.
//
// Every message published or received by the listen command becomes a
// point in the emitter_messages measurement:
//
//	emitter_messages,channel=chat/room1/,direction=in count=1i,bytes=42i
//
// Connection state changes go to emitter_connection. Writes are
// non-blocking and batched; failures are reported through SetOnError.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics switched off
//	}
//	defer client.Close()
//	client.WriteMessageMetric("chat/room1/", influxdb.DirectionIn, len(payload))
package influxdb
