package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nerrad567/emitter-go/internal/channel"
	"github.com/nerrad567/emitter-go/internal/infrastructure/mqtt"
	"github.com/nerrad567/emitter-go/internal/subtrie"
)

// System request topics.
const (
	keygenTopic   = channel.PrefixKeygen + "/"
	presenceTopic = channel.PrefixPresence + "/"
	linkTopic     = channel.PrefixLink + "/"
	meTopic       = channel.PrefixMe + "/"
)

// Transport carries MQTT traffic for the Client.
// *mqtt.Client implements it.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte) error
	Unsubscribe(topic string) error
	SetMessageHandler(handler mqtt.MessageHandler)
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
	Close() error
	HealthCheck(ctx context.Context) error
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MessageHandler receives messages for a subscribed channel.
type MessageHandler func(msg Message)

// Client is an Emitter client on top of a Transport.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Handlers may run concurrently with each other.
type Client struct {
	transport Transport
	logger    Logger

	// routes holds per-channel handlers; topics maps the unparameterised
	// subscribe topic to what was sent, with or without a handler.
	routes *subtrie.Trie[MessageHandler]
	topics map[string]subscription
	mu     sync.RWMutex

	events   events
	eventsMu sync.RWMutex

	keygenWaiters []*keygenWaiter
	keygenMu      sync.Mutex
}

// subscription is an active broker subscription. topic is the exact topic
// sent, reused by Unsubscribe; path is the channel it routes.
type subscription struct {
	topic string
	path  string
}

// keygenWaiter is a pending Keygen call. channel is the parsed path of the
// requested channel, matched against the channel echoed in the reply.
type keygenWaiter struct {
	channel string
	reply   chan keygenReply
}

// events holds the registered event handlers.
type events struct {
	message    func(Message)
	keygen     func(KeygenResponse)
	presence   func(PresenceEvent)
	link       func(LinkResponse)
	me         func(MeResponse)
	err        func(ErrorResponse)
	connect    func()
	disconnect func(error)
}

// New creates a Client using transport and installs itself as the
// transport's message handler. A nil logger discards log output.
func New(transport Transport, logger Logger) *Client {
	if logger == nil {
		logger = nopLogger{}
	}

	c := &Client{
		transport: transport,
		logger:    logger,
		routes:    subtrie.New[MessageHandler](),
		topics:    make(map[string]subscription),
	}

	transport.SetMessageHandler(c.dispatch)
	transport.SetOnConnect(c.handleConnect)
	transport.SetOnDisconnect(c.handleDisconnect)

	return c
}

// Publish sends payload to channel using key.
//
// Supported options: WithTTL, WithEcho, WithoutEcho, WithAtMostOnce,
// WithAtLeastOnce, WithRetain.
func (c *Client) Publish(key, ch string, payload []byte, opts ...Option) error {
	if ch == "" {
		return ErrInvalidChannel
	}
	r := newRequest(opts)
	return c.transport.Publish(channel.Format(key, ch, r.publishParams()...), payload, r.qos, r.retain)
}

// PublishWithLink sends payload through a link created with Link.
//
// Supported options: WithAtMostOnce, WithAtLeastOnce, WithRetain.
func (c *Client) PublishWithLink(link string, payload []byte, opts ...Option) error {
	if link == "" {
		return ErrInvalidChannel
	}
	r := newRequest(opts)
	return c.transport.Publish(link, payload, r.qos, r.retain)
}

// Subscribe subscribes to channel using key and routes matching messages
// to handler. A nil handler only subscribes; messages then reach the
// OnMessage handler.
//
// Supported options: WithLast, WithAtMostOnce, WithAtLeastOnce.
func (c *Client) Subscribe(key, ch string, handler MessageHandler, opts ...Option) error {
	if ch == "" {
		return ErrInvalidChannel
	}
	r := newRequest(opts)
	return c.subscribe(channel.Format(key, ch), channel.Format(key, ch, r.subscribeParams()...), ch, handler, r.qos)
}

// SubscribeWithGroup joins the share group for channel, so that each
// message is delivered to one member of the group only.
//
// Supported options: WithLast, WithAtMostOnce, WithAtLeastOnce.
func (c *Client) SubscribeWithGroup(key, ch, group string, handler MessageHandler, opts ...Option) error {
	if ch == "" || group == "" {
		return ErrInvalidChannel
	}
	r := newRequest(opts)
	return c.subscribe(channel.FormatShare(key, ch, group), channel.FormatShare(key, ch, group, r.subscribeParams()...), ch, handler, r.qos)
}

func (c *Client) subscribe(base, topic, ch string, handler MessageHandler, qos byte) error {
	path := routePath(ch)

	c.mu.Lock()
	prevHandler, hadHandler := c.routes.Get(path)
	prevTopic, hadTopic := c.topics[base]
	if handler != nil {
		c.routes.Insert(path, handler)
	}
	c.topics[base] = subscription{topic: topic, path: path}
	c.mu.Unlock()

	if err := c.transport.Subscribe(topic, qos); err != nil {
		// The broker keeps whatever subscription was already in place.
		c.mu.Lock()
		if handler != nil {
			if hadHandler {
				c.routes.Insert(path, prevHandler)
			} else {
				c.routes.Delete(path)
			}
		}
		if hadTopic {
			c.topics[base] = prevTopic
		} else {
			delete(c.topics, base)
		}
		c.mu.Unlock()
		return err
	}

	c.logger.Debug("subscribed", "channel", path)
	return nil
}

// Unsubscribe removes the handler for channel and unsubscribes from it.
// Share group subscriptions are removed with channel "$share/<group>/<channel>".
func (c *Client) Unsubscribe(key, ch string) error {
	if ch == "" {
		return ErrInvalidChannel
	}

	base := channel.Format(key, ch)

	c.mu.Lock()
	c.routes.Delete(routePath(ch))
	topic := base
	if sub, ok := c.topics[base]; ok {
		topic = sub.topic
	}
	delete(c.topics, base)
	c.mu.Unlock()

	return c.transport.Unsubscribe(topic)
}

// Presence requests the subscriber list of channel (status) and/or
// notifications when it changes (changes). Replies reach OnPresence.
func (c *Client) Presence(key, ch string, status, changes bool) error {
	if ch == "" {
		return ErrInvalidChannel
	}
	return c.request(presenceTopic, PresenceRequest{
		Key:     key,
		Channel: ch,
		Status:  status,
		Changes: changes,
	})
}

// Keygen requests a channel key and waits for the broker reply. The reply
// is also passed to OnKeygen.
func (c *Client) Keygen(ctx context.Context, req KeygenRequest) (*KeygenResponse, error) {
	if req.Channel == "" {
		return nil, ErrInvalidChannel
	}

	waiter := &keygenWaiter{
		channel: channel.Parse(req.Channel).Path,
		reply:   make(chan keygenReply, 1),
	}
	c.keygenMu.Lock()
	c.keygenWaiters = append(c.keygenWaiters, waiter)
	c.keygenMu.Unlock()

	if err := c.request(keygenTopic, req); err != nil {
		c.removeKeygenWaiter(waiter)
		return nil, err
	}

	select {
	case reply := <-waiter.reply:
		if reply.failed() {
			return nil, fmt.Errorf("%w: %w", ErrKeygenFailed, &ErrorResponse{Status: reply.Status, Message: reply.Message})
		}
		resp := reply.KeygenResponse
		return &resp, nil
	case <-ctx.Done():
		c.removeKeygenWaiter(waiter)
		return nil, fmt.Errorf("%w: %w", ErrKeygenFailed, ctx.Err())
	}
}

// Link creates a link for a channel. Replies reach OnLink.
//
// Supported options: WithTTL, WithEcho, WithoutEcho. They are applied to
// every message published through the link.
func (c *Client) Link(req LinkRequest, opts ...Option) error {
	if req.Channel == "" {
		return ErrInvalidChannel
	}
	r := newRequest(opts)
	if params := r.publishParams(); len(params) > 0 {
		req.Channel = channel.Format("", req.Channel, params...)
	}
	return c.request(linkTopic, req)
}

// Me requests information about this connection. Replies reach OnMe.
func (c *Client) Me() error {
	if err := c.transport.Publish(meTopic, nil, AtMostOnce, false); err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	return nil
}

// Subscriptions returns the subscribed channel patterns, sorted, whether or
// not they have a handler. Share group subscriptions report the bare
// channel.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]struct{}, len(c.topics))
	patterns := make([]string, 0, len(c.topics))
	for _, sub := range c.topics {
		pattern := strings.Join(subtrie.Segments(sub.path), "/")
		if _, dup := seen[pattern]; dup {
			continue
		}
		seen[pattern] = struct{}{}
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)
	return patterns
}

// HealthCheck reports whether the transport is connected.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.transport.HealthCheck(ctx)
}

// Close disconnects the transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) request(topic string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	if err := c.transport.Publish(topic, payload, AtMostOnce, false); err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	return nil
}

func (c *Client) removeKeygenWaiter(waiter *keygenWaiter) {
	c.keygenMu.Lock()
	defer c.keygenMu.Unlock()
	for i, w := range c.keygenWaiters {
		if w == waiter {
			c.keygenWaiters = append(c.keygenWaiters[:i], c.keygenWaiters[i+1:]...)
			return
		}
	}
}

// takeKeygenWaiter removes and returns the waiter for a reply on ch. The
// oldest waiter that requested ch wins. Failure replies carry no channel and
// go to the oldest waiter. A reply for a channel nobody is waiting on is
// left unclaimed: its caller has already given up.
func (c *Client) takeKeygenWaiter(ch string) *keygenWaiter {
	c.keygenMu.Lock()
	defer c.keygenMu.Unlock()
	if len(c.keygenWaiters) == 0 {
		return nil
	}

	idx := -1
	if ch == "" {
		idx = 0
	} else {
		path := channel.Parse(ch).Path
		for i, w := range c.keygenWaiters {
			if w.channel == path {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return nil
	}

	waiter := c.keygenWaiters[idx]
	c.keygenWaiters = append(c.keygenWaiters[:idx], c.keygenWaiters[idx+1:]...)
	return waiter
}

// routePath returns the trie path for a channel, dropping any query string
// and share group prefix. The broker delivers share group messages on the
// bare channel.
func routePath(ch string) string {
	path := channel.Parse(ch).Path
	if rest, ok := strings.CutPrefix(path, "$share/"); ok {
		if _, after, found := strings.Cut(rest, "/"); found && after != "" {
			path = after
		}
	}
	return path
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
