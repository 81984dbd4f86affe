// Package emitter is a client for the Emitter publish/subscribe service.
//
// Emitter speaks MQTT, with two twists: every topic is prefixed with a
// channel key that authorises the operation, and broker features (message
// TTL, echo suppression, history replay) are requested through a query
// string appended to the channel. Requests such as key generation or
// presence go to the broker's system channels under "emitter/".
//
// Inbound messages are routed by channel: each Subscribe stores its handler
// in a subscription trie, and every message is delivered to all handlers
// whose pattern matches, "+" matching any single segment. Messages nobody
// subscribed a handler for go to the OnMessage handler.
//
//	client := emitter.New(transport, logger)
//	client.Subscribe(key, "chat/+/", func(m emitter.Message) {
//	    fmt.Println(m.Channel, m.String())
//	}, emitter.WithLast(10))
//	client.Publish(key, "chat/general/", []byte("hello"), emitter.WithTTL(60))
package emitter
