package mqtt

import (
	"fmt"
)

// Subscribe asks the broker to deliver messages for topic. Messages arrive
// at the handler registered with SetMessageHandler.
//
// Subscriptions are tracked and restored after a reconnect.
//
// Parameters:
//   - topic: The full Emitter topic, e.g. "KEY/chat/+/?last=5"
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
func (c *Client) Subscribe(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	untrack := c.track(topic, qos)

	token := c.client.Subscribe(topic, qos, nil)
	if !token.WaitTimeout(defaultAckTimeout) {
		untrack()
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultAckTimeout)
	}
	if err := token.Error(); err != nil {
		untrack()
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// Unsubscribe removes a subscription. Messages in flight may still arrive.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget(topic)

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultAckTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultAckTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

// track records topic for restoration on reconnect. The returned function
// puts back the entry that was there before, so a failed re-subscribe keeps
// the earlier subscription restorable.
func (c *Client) track(topic string, qos byte) (untrack func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	prev, existed := c.subscriptions[topic]
	c.subscriptions[topic] = qos

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if existed {
			c.subscriptions[topic] = prev
		} else {
			delete(c.subscriptions, topic)
		}
	}
}

func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription reports whether topic is tracked. Only the exact topic
// string is compared.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, exists := c.subscriptions[topic]
	return exists
}
