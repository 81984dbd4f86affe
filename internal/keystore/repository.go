package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/emitter-go/internal/channel"
)

// Repository defines the interface for channel key persistence.
type Repository interface {
	Save(ctx context.Context, key ChannelKey) error
	Get(ctx context.Context, ch string) (*ChannelKey, error)
	List(ctx context.Context) ([]ChannelKey, error)
	Delete(ctx context.Context, ch string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a SQLite-backed key store. The channel_keys
// table must exist (see package migrations).
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Save stores key, replacing any key already stored for its channel.
// CreatedAt is set to now when zero.
func (r *SQLiteRepository) Save(ctx context.Context, key ChannelKey) error {
	key.Channel = channel.Parse(key.Channel).Path
	if key.Channel == "" || key.Key == "" {
		return ErrInvalidKey
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = r.now()
	}

	const query = `INSERT INTO channel_keys (channel, key, key_type, ttl, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (channel) DO UPDATE SET
			key = excluded.key,
			key_type = excluded.key_type,
			ttl = excluded.ttl,
			created_at = excluded.created_at`
	_, err := r.db.ExecContext(ctx, query,
		key.Channel, key.Key, key.Type, key.TTL, key.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving key for %s: %w", key.Channel, err)
	}
	return nil
}

// Get returns the key stored for channel. It returns ErrKeyNotFound when
// none is stored and ErrKeyExpired, together with the key, when it has
// expired.
func (r *SQLiteRepository) Get(ctx context.Context, ch string) (*ChannelKey, error) {
	const query = `SELECT channel, key, key_type, ttl, created_at
		FROM channel_keys WHERE channel = ?`

	key, err := scanKey(r.db.QueryRowContext(ctx, query, channel.Parse(ch).Path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning key: %w", err)
	}
	if key.Expired(r.now()) {
		return key, ErrKeyExpired
	}
	return key, nil
}

// List returns every stored key ordered by channel, expired ones included.
func (r *SQLiteRepository) List(ctx context.Context) ([]ChannelKey, error) {
	const query = `SELECT channel, key, key_type, ttl, created_at
		FROM channel_keys ORDER BY channel`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying keys: %w", err)
	}
	defer rows.Close()

	keys := []ChannelKey{}
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning key row: %w", err)
		}
		keys = append(keys, *key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating key rows: %w", err)
	}
	return keys, nil
}

// Delete removes the key stored for channel.
func (r *SQLiteRepository) Delete(ctx context.Context, ch string) error {
	path := channel.Parse(ch).Path
	result, err := r.db.ExecContext(ctx, `DELETE FROM channel_keys WHERE channel = ?`, path)
	if err != nil {
		return fmt.Errorf("deleting key for %s: %w", path, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrKeyNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKey(s scanner) (*ChannelKey, error) {
	var key ChannelKey
	var createdAt string
	if err := s.Scan(&key.Channel, &key.Key, &key.Type, &key.TTL, &createdAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	key.CreatedAt = t
	return &key, nil
}
