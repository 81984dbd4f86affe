package keystore

import "errors"

var (
	// ErrKeyNotFound is returned when no key is stored for a channel.
	ErrKeyNotFound = errors.New("keystore: key not found")

	// ErrKeyExpired is returned when the stored key has outlived its TTL.
	ErrKeyExpired = errors.New("keystore: key expired")

	// ErrInvalidKey is returned when saving a key without channel or value.
	ErrInvalidKey = errors.New("keystore: channel and key are required")
)
