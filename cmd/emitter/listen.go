package main

import (
	"context"
	"fmt"

	"github.com/nerrad567/emitter-go/internal/api"
	"github.com/nerrad567/emitter-go/internal/emitter"
	"github.com/nerrad567/emitter-go/internal/infrastructure/config"
	"github.com/nerrad567/emitter-go/internal/infrastructure/influxdb"
	"github.com/nerrad567/emitter-go/internal/keystore"
)

// listenCommand subscribes to the configured channels, relays every
// inbound message to metrics and WebSocket clients, and serves the status
// API until ctx is cancelled.
func listenCommand(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "listen")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if len(a.cfg.Emitter.Subscriptions) == 0 {
		a.log.Warn("no subscriptions configured; only unrouted messages will be relayed")
	}

	db, keys, err := a.openKeyStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		a.log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			a.log.Error("error closing database", "error", closeErr)
		}
	}()

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if a.cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, a.cfg.InfluxDB, influxdb.Source{
			ClientID: a.cfg.Emitter.Broker.ClientID,
			Broker:   a.cfg.Emitter.Broker.URL(),
		})
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			a.log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				a.log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			a.log.Error("InfluxDB write error", "error", err)
		})
		a.log.Info("InfluxDB connected", "url", a.cfg.InfluxDB.URL, "bucket", a.cfg.InfluxDB.Bucket)
	} else {
		a.log.Info("InfluxDB disabled")
	}

	hub := api.NewHub(a.cfg.WebSocket, a.log)
	go hub.Run(ctx)

	client, err := a.connect()
	if err != nil {
		return err
	}
	defer func() {
		a.log.Info("disconnecting from broker")
		if closeErr := client.Close(); closeErr != nil {
			a.log.Error("error closing broker connection", "error", closeErr)
		}
	}()

	client.OnMessage(newRelay(a, influxClient, hub))
	client.OnConnect(func() {
		influxClient.WriteConnectionEvent("connected")
		a.log.Info("broker reconnected")
	})
	client.OnDisconnect(func(err error) {
		influxClient.WriteConnectionEvent("disconnected")
		a.log.Warn("broker disconnected", "error", err)
	})
	client.OnError(func(resp emitter.ErrorResponse) {
		a.log.Warn("broker error", "status", resp.Status, "message", resp.Message)
	})

	if err := subscribeAll(ctx, a, client, keys); err != nil {
		return err
	}

	if a.cfg.API.Enabled {
		server, err := api.New(api.Deps{
			Config:  a.cfg.API,
			WS:      a.cfg.WebSocket,
			Logger:  a.log,
			Client:  client,
			DB:      db,
			Keys:    keys,
			Hub:     hub,
			Version: version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				a.log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	a.log.Info("listening, waiting for shutdown signal",
		"subscriptions", len(client.Subscriptions()),
	)
	<-ctx.Done()
	a.log.Info("shutdown signal received, cleaning up")

	return nil
}

// broadcaster fans a message out to WebSocket clients.
type broadcaster interface {
	Broadcast(msg emitter.Message)
}

// newRelay returns the handler every inbound message passes through once.
// A nil metrics client records nothing.
func newRelay(a *app, metrics *influxdb.Client, hub broadcaster) emitter.MessageHandler {
	return func(msg emitter.Message) {
		metrics.WriteMessageMetric(msg.Channel, influxdb.DirectionIn, len(msg.Payload))
		hub.Broadcast(msg)
		a.log.Debug("message received", "channel", msg.Channel, "bytes", len(msg.Payload))
	}
}

// subscribeAll subscribes every configured channel. No channel gets a
// handler of its own, so overlapping patterns still deliver each message
// to OnMessage exactly once.
func subscribeAll(ctx context.Context, a *app, client *emitter.Client, keys keystore.Repository) error {
	for _, sub := range a.cfg.Emitter.Subscriptions {
		if err := subscribe(ctx, a, client, keys, sub); err != nil {
			return err
		}
	}
	return nil
}

// subscribe subscribes one configured channel, falling back to the stored
// key when the configuration carries none.
func subscribe(ctx context.Context, a *app, client *emitter.Client, keys keystore.Repository, sub config.SubscriptionConfig) error {
	key, err := resolveKey(ctx, keys, sub.Key, sub.Channel)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", sub.Channel, err)
	}

	opts := []emitter.Option{qosOption(a.cfg.Emitter.QoS)}
	if sub.Last > 0 {
		opts = append(opts, emitter.WithLast(sub.Last))
	}

	if sub.Group != "" {
		err = client.SubscribeWithGroup(key, sub.Channel, sub.Group, nil, opts...)
	} else {
		err = client.Subscribe(key, sub.Channel, nil, opts...)
	}
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", sub.Channel, err)
	}

	a.log.Info("subscribed", "channel", sub.Channel, "group", sub.Group, "last", sub.Last)
	return nil
}
