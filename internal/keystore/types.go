package keystore

import (
	"time"

	"github.com/nerrad567/emitter-go/internal/infrastructure/logging"
)

// ChannelKey is a channel key and the request that produced it.
type ChannelKey struct {
	// Channel is the normalised channel path, with a trailing slash.
	Channel string `json:"channel"`
	Key     string `json:"key"`

	// Type holds the access flags requested at keygen, e.g. "rw".
	Type string `json:"type,omitempty"`

	// TTL is the key lifetime in seconds; zero never expires.
	TTL       int       `json:"ttl,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ExpiresAt returns when the key expires, or the zero time if it never does.
func (k ChannelKey) ExpiresAt() time.Time {
	if k.TTL <= 0 {
		return time.Time{}
	}
	return k.CreatedAt.Add(time.Duration(k.TTL) * time.Second)
}

// Expired reports whether the key has expired at now.
func (k ChannelKey) Expired(now time.Time) bool {
	exp := k.ExpiresAt()
	return !exp.IsZero() && !now.Before(exp)
}

// Masked returns a copy with the key shortened for display.
func (k ChannelKey) Masked() ChannelKey {
	k.Key = logging.Redact(k.Key)
	return k
}
