package keystore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/emitter-go/internal/infrastructure/config"
	"github.com/nerrad567/emitter-go/internal/infrastructure/database"
	"github.com/nerrad567/emitter-go/migrations"
)

// setupTestRepo opens an in-memory database with the real migrations applied.
func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestSaveAndGet(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	created := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	err := repo.Save(ctx, ChannelKey{
		Channel:   "/chat/room1",
		Key:       "5xZjIQp6GA9fpxso1Kslqnv8d4XVWCha",
		Type:      "rw",
		CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	for _, ch := range []string{"chat/room1/", "chat/room1", "/chat/room1/?ttl=5"} {
		got, err := repo.Get(ctx, ch)
		if err != nil {
			t.Fatalf("Get(%q) error = %v", ch, err)
		}
		if got.Channel != "chat/room1/" || got.Type != "rw" || !got.CreatedAt.Equal(created) {
			t.Errorf("Get(%q) = %+v", ch, got)
		}
	}
}

func TestSave_Replaces(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	repo.Save(ctx, ChannelKey{Channel: "a/", Key: "first"})
	if err := repo.Save(ctx, ChannelKey{Channel: "a", Key: "second", TTL: 60}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := repo.Get(ctx, "a/")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Key != "second" || got.TTL != 60 {
		t.Errorf("Get() = %+v, want replaced key", got)
	}
}

func TestSave_Invalid(t *testing.T) {
	repo := setupTestRepo(t)

	for _, key := range []ChannelKey{{Key: "k"}, {Channel: "/"}, {Channel: "a/"}} {
		if err := repo.Save(context.Background(), key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Save(%+v) error = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := setupTestRepo(t)

	if _, err := repo.Get(context.Background(), "missing/"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get() error = %v, want ErrKeyNotFound", err)
	}
}

func TestGet_Expired(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	created := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	repo.Save(ctx, ChannelKey{Channel: "temp/", Key: "k", TTL: 30, CreatedAt: created})

	repo.now = func() time.Time { return created.Add(10 * time.Second) }
	if _, err := repo.Get(ctx, "temp/"); err != nil {
		t.Fatalf("Get() before expiry error = %v", err)
	}

	repo.now = func() time.Time { return created.Add(30 * time.Second) }
	got, err := repo.Get(ctx, "temp/")
	if !errors.Is(err, ErrKeyExpired) {
		t.Fatalf("Get() error = %v, want ErrKeyExpired", err)
	}
	if got == nil || got.Key != "k" {
		t.Errorf("expired Get() = %+v, want the stored key", got)
	}
}

func TestList(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	empty, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("List() on empty store = %v, want empty slice", empty)
	}

	for _, ch := range []string{"b/", "a/", "c/d/"} {
		repo.Save(ctx, ChannelKey{Channel: ch, Key: "key-" + ch})
	}

	keys, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var got []string
	for _, k := range keys {
		got = append(got, k.Channel)
	}
	want := []string{"a/", "b/", "c/d/"}
	if len(got) != len(want) {
		t.Fatalf("List() channels = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDelete(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	repo.Save(ctx, ChannelKey{Channel: "a/", Key: "k"})

	if err := repo.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.Get(ctx, "a/"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrKeyNotFound", err)
	}
	if err := repo.Delete(ctx, "a/"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("second Delete() error = %v, want ErrKeyNotFound", err)
	}
}

func TestChannelKey_Expiry(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	forever := ChannelKey{CreatedAt: created}
	if !forever.ExpiresAt().IsZero() || forever.Expired(created.Add(1000*time.Hour)) {
		t.Error("key without TTL should never expire")
	}

	short := ChannelKey{CreatedAt: created, TTL: 60}
	if short.Expired(created.Add(59 * time.Second)) {
		t.Error("key expired before its TTL")
	}
	if !short.Expired(created.Add(60 * time.Second)) {
		t.Error("key not expired at its TTL")
	}
}

func TestChannelKey_Masked(t *testing.T) {
	k := ChannelKey{Channel: "a/", Key: "5xZjIQp6GA9fpxso1Kslqnv8d4XVWCha"}
	if got := k.Masked().Key; got != "5xZj...WCha" {
		t.Errorf("Masked().Key = %q", got)
	}
	if k.Key != "5xZjIQp6GA9fpxso1Kslqnv8d4XVWCha" {
		t.Error("Masked() modified the original")
	}
}
