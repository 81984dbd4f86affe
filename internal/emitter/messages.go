package emitter

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Message is a message received from the broker.
type Message struct {
	// Channel is the topic the message was published on.
	Channel string

	// Payload is the raw message body.
	Payload []byte
}

// String returns the payload as text.
func (m Message) String() string {
	return string(m.Payload)
}

// Bytes returns the raw payload.
func (m Message) Bytes() []byte {
	return m.Payload
}

// Unmarshal decodes a JSON payload into v.
func (m Message) Unmarshal(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}

// KeygenRequest asks the broker for a channel key. Key must be a master
// key (secret key).
type KeygenRequest struct {
	Key     string `json:"key"`
	Channel string `json:"channel"`

	// Type is a combination of r, w, s, p, e and x access flags; the broker
	// defaults to "rw" when empty.
	Type string `json:"type,omitempty"`

	// TTL is the key lifetime in seconds. Zero means it never expires.
	TTL int `json:"ttl,omitempty"`
}

// KeygenResponse is the broker reply to a KeygenRequest.
type KeygenResponse struct {
	Key     string `json:"key"`
	Channel string `json:"channel"`
	Status  int    `json:"status"`
}

// PresenceRequest asks the broker who is subscribed to a channel.
type PresenceRequest struct {
	Key     string `json:"key"`
	Channel string `json:"channel"`

	// Status requests an immediate snapshot of current subscribers.
	Status bool `json:"status"`

	// Changes subscribes to join and leave notifications.
	Changes bool `json:"changes"`
}

// Presence event kinds.
const (
	PresenceStatus      = "status"
	PresenceSubscribe   = "subscribe"
	PresenceUnsubscribe = "unsubscribe"
)

// PresenceInfo identifies one connection in a presence event.
type PresenceInfo struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
}

// PresenceEvent is a presence notification. A status event lists every
// subscriber; subscribe and unsubscribe events carry a single one.
type PresenceEvent struct {
	Time    int64          `json:"time"`
	Event   string         `json:"event"`
	Channel string         `json:"channel"`
	Who     []PresenceInfo `json:"who"`
}

// UnmarshalJSON accepts "who" as either an object or an array of objects.
func (e *PresenceEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		Time    int64           `json:"time"`
		Event   string          `json:"event"`
		Channel string          `json:"channel"`
		Who     json.RawMessage `json:"who"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.Time = raw.Time
	e.Event = raw.Event
	e.Channel = raw.Channel
	e.Who = nil

	who := bytes.TrimSpace(raw.Who)
	switch {
	case len(who) == 0 || bytes.Equal(who, []byte("null")):
	case who[0] == '[':
		if err := json.Unmarshal(who, &e.Who); err != nil {
			return err
		}
	default:
		var one PresenceInfo
		if err := json.Unmarshal(who, &one); err != nil {
			return err
		}
		e.Who = []PresenceInfo{one}
	}
	return nil
}

// LinkRequest creates a short link name (two characters) bound to a
// channel, so later publishes can use the link instead of key and channel.
type LinkRequest struct {
	Key     string `json:"key"`
	Channel string `json:"channel"`
	Name    string `json:"name"`

	// Private creates a link only usable by this connection.
	Private bool `json:"private"`

	// Subscribe also subscribes this connection to the channel.
	Subscribe bool `json:"subscribe"`
}

// LinkResponse is the broker reply to a LinkRequest.
type LinkResponse struct {
	Status  int    `json:"status"`
	Name    string `json:"name"`
	Channel string `json:"channel"`
}

// MeResponse describes the current connection.
type MeResponse struct {
	ID    string            `json:"id"`
	Links map[string]string `json:"links,omitempty"`
}

// ErrorResponse is an error reported by the broker.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("emitter: broker error %d: %s", e.Status, e.Message)
}

// keygenReply covers both the success and failure shapes of a keygen reply.
type keygenReply struct {
	KeygenResponse
	Message string `json:"message"`
}

// failed reports whether the reply carries an error status.
func (r keygenReply) failed() bool {
	return r.Status != 0 && r.Status != 200
}
