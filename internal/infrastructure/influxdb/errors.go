package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when metrics are switched off.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed wraps the cause when Connect cannot reach the server.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrUnhealthy means the server answered the ping but reported itself
	// not ready.
	ErrUnhealthy = errors.New("influxdb: server not healthy")

	// ErrNotConnected is returned after Close.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrWriteFailed wraps asynchronous batch write errors passed to the
	// OnError callback.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
