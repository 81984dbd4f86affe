package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/emitter-go/internal/emitter"
	"github.com/nerrad567/emitter-go/internal/infrastructure/database"
	"github.com/nerrad567/emitter-go/internal/infrastructure/mqtt"
	"github.com/nerrad567/emitter-go/internal/keystore"
	"github.com/nerrad567/emitter-go/migrations"
)

// connect opens the broker connection and wraps it in an Emitter client.
// The returned client owns the transport; closing it disconnects.
func (a *app) connect() (*emitter.Client, error) {
	transport, err := mqtt.Connect(a.cfg.Emitter)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", a.cfg.Emitter.Broker.URL(), err)
	}
	transport.SetLogger(a.log)

	a.log.Info("connected",
		"broker", a.cfg.Emitter.Broker.URL(),
		"client_id", a.cfg.Emitter.Broker.ClientID,
	)
	return emitter.New(transport, a.log), nil
}

// openKeyStore opens the channel key database and applies migrations.
func (a *app) openKeyStore(ctx context.Context) (*database.DB, *keystore.SQLiteRepository, error) {
	db, err := database.Open(ctx, a.cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, keystore.NewSQLiteRepository(db.DB), nil
}

// resolveKey returns key, or the key stored for ch when key is empty.
func resolveKey(ctx context.Context, keys keystore.Repository, key, ch string) (string, error) {
	if key != "" {
		return key, nil
	}

	stored, err := keys.Get(ctx, ch)
	switch {
	case errors.Is(err, keystore.ErrKeyNotFound):
		return "", fmt.Errorf("no key given and none stored for %q; run keygen first", ch)
	case errors.Is(err, keystore.ErrKeyExpired):
		return "", fmt.Errorf("stored key for %q expired at %s", ch, stored.ExpiresAt().Format("2006-01-02 15:04:05"))
	case err != nil:
		return "", err
	}
	return stored.Key, nil
}

// qosOption maps a configured QoS level to a publish or subscribe option.
func qosOption(qos int) emitter.Option {
	if qos >= 1 {
		return emitter.WithAtLeastOnce()
	}
	return emitter.WithAtMostOnce()
}
