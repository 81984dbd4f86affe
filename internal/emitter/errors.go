package emitter

import "errors"

var (
	// ErrInvalidChannel is returned when a channel or link name is empty.
	ErrInvalidChannel = errors.New("emitter: channel cannot be empty")

	// ErrInvalidPayload is returned when a system reply cannot be decoded.
	ErrInvalidPayload = errors.New("emitter: invalid payload")

	// ErrRequestFailed is returned when a request could not be sent.
	ErrRequestFailed = errors.New("emitter: request failed")

	// ErrKeygenFailed is returned when key generation is rejected or times out.
	ErrKeygenFailed = errors.New("emitter: keygen failed")
)
