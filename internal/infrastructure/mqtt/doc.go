// Package mqtt provides the MQTT transport for the Emitter client.
//
// This package manages:
//   - Connection to an Emitter broker over tcp, ssl, ws or wss
//   - Auto-reconnect with subscriptions restored afterwards
//   - Publishing with a payload size limit and acknowledgement timeout
//   - A single inbound message handler for every received publish
//
// # Architecture
//
// Emitter delivers messages on the bare channel path, not on the
// key-prefixed topic that was subscribed, so inbound messages rarely match
// a paho subscription filter. The client therefore subscribes without
// per-topic callbacks and routes everything through the default publish
// handler set with SetMessageHandler. Routing by channel is done one layer
// up, in the emitter package.
//
//	emitter.Client ↔ mqtt.Client ↔ paho ↔ Emitter broker
//
// # Security Considerations
//
//   - TLS is the default (broker.secure unset or true)
//   - Channel keys travel inside topics, so plain tcp should only be used
//     against a local broker
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.Emitter)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.SetMessageHandler(func(topic string, payload []byte) error {
//	    log.Printf("%s: %s", topic, payload)
//	    return nil
//	})
//	err = client.Subscribe("KEY/chat/", 0)
package mqtt
