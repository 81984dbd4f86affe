package emitter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/emitter-go/internal/channel"
)

// OnMessage sets the handler for messages no subscription handler matched.
func (c *Client) OnMessage(handler func(Message)) {
	c.eventsMu.Lock()
	c.events.message = handler
	c.eventsMu.Unlock()
}

// OnKeygen sets the handler for keygen replies.
func (c *Client) OnKeygen(handler func(KeygenResponse)) {
	c.eventsMu.Lock()
	c.events.keygen = handler
	c.eventsMu.Unlock()
}

// OnPresence sets the handler for presence events.
func (c *Client) OnPresence(handler func(PresenceEvent)) {
	c.eventsMu.Lock()
	c.events.presence = handler
	c.eventsMu.Unlock()
}

// OnLink sets the handler for link replies.
func (c *Client) OnLink(handler func(LinkResponse)) {
	c.eventsMu.Lock()
	c.events.link = handler
	c.eventsMu.Unlock()
}

// OnMe sets the handler for me replies.
func (c *Client) OnMe(handler func(MeResponse)) {
	c.eventsMu.Lock()
	c.events.me = handler
	c.eventsMu.Unlock()
}

// OnError sets the handler for errors reported by the broker.
func (c *Client) OnError(handler func(ErrorResponse)) {
	c.eventsMu.Lock()
	c.events.err = handler
	c.eventsMu.Unlock()
}

// OnConnect sets the handler invoked on connect and every reconnect.
func (c *Client) OnConnect(handler func()) {
	c.eventsMu.Lock()
	c.events.connect = handler
	c.eventsMu.Unlock()
}

// OnDisconnect sets the handler invoked when the connection is lost.
func (c *Client) OnDisconnect(handler func(error)) {
	c.eventsMu.Lock()
	c.events.disconnect = handler
	c.eventsMu.Unlock()
}

func (c *Client) currentEvents() events {
	c.eventsMu.RLock()
	defer c.eventsMu.RUnlock()
	return c.events
}

// dispatch routes one inbound message. System channels are checked first,
// in the order keygen, presence, link, me, error.
func (c *Client) dispatch(topic string, payload []byte) error {
	msg := Message{Channel: topic, Payload: payload}
	ev := c.currentEvents()

	switch {
	case strings.HasPrefix(topic, channel.PrefixKeygen):
		return c.dispatchKeygen(msg, ev)

	case strings.HasPrefix(topic, channel.PrefixPresence):
		var event PresenceEvent
		if err := decode(msg, &event); err != nil {
			return err
		}
		if ev.presence != nil {
			ev.presence(event)
		}
		return nil

	case strings.HasPrefix(topic, channel.PrefixLink):
		var resp LinkResponse
		if err := decode(msg, &resp); err != nil {
			return err
		}
		if ev.link != nil {
			ev.link(resp)
		}
		return nil

	case strings.HasPrefix(topic, channel.PrefixMe):
		var resp MeResponse
		if err := decode(msg, &resp); err != nil {
			return err
		}
		if ev.me != nil {
			ev.me(resp)
		}
		return nil

	case strings.HasPrefix(topic, channel.PrefixError):
		var resp ErrorResponse
		if err := decode(msg, &resp); err != nil {
			return err
		}
		c.logger.Warn("broker reported error", "status", resp.Status, "message", resp.Message)
		if ev.err != nil {
			ev.err(resp)
		}
		return nil
	}

	c.mu.RLock()
	handlers := c.routes.Lookup(topic)
	c.mu.RUnlock()

	if len(handlers) == 0 {
		if ev.message != nil {
			ev.message(msg)
		}
		return nil
	}

	for _, handler := range handlers {
		handler(msg)
	}
	return nil
}

func (c *Client) dispatchKeygen(msg Message, ev events) error {
	var reply keygenReply
	if err := decode(msg, &reply); err != nil {
		return err
	}

	if waiter := c.takeKeygenWaiter(reply.Channel); waiter != nil {
		waiter.reply <- reply
	} else {
		c.logger.Debug("keygen reply unclaimed", "channel", reply.Channel)
	}
	if ev.keygen != nil {
		ev.keygen(reply.KeygenResponse)
	}
	return nil
}

func (c *Client) handleConnect() {
	if ev := c.currentEvents(); ev.connect != nil {
		ev.connect()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.logger.Warn("connection lost", "error", err)
	if ev := c.currentEvents(); ev.disconnect != nil {
		ev.disconnect(err)
	}
}

func decode(msg Message, v any) error {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidPayload, msg.Channel, err)
	}
	return nil
}
