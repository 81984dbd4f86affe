// Package api implements the local status API and WebSocket live tail.
//
// This package provides:
//   - GET /api/v1/health: client and key store health
//   - GET /api/v1/subscriptions: the active subscription patterns
//   - GET /api/v1/channels: stored channel keys, masked
//   - GET /ws: a WebSocket stream of inbound messages
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// # Live tail
//
// WebSocket clients pick the channels they want with
//
//	{"type":"subscribe","channels":["chat/+/"]}
//
// Patterns use the same "+" single-segment wildcard as the broker and are
// matched with the subtrie package, so a client subscribed to "chat/"
// also receives "chat/room1/".
//
// # Security
//
// The API binds to 127.0.0.1 by default and has no authentication.
// Channel keys are never returned in full.
package api
