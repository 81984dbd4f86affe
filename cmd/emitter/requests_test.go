package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/nerrad567/emitter-go/internal/infrastructure/config"
	"github.com/nerrad567/emitter-go/internal/infrastructure/database"
	"github.com/nerrad567/emitter-go/internal/keystore"
	"github.com/nerrad567/emitter-go/migrations"
)

// brokerReply is what the fake broker writes back for one request topic.
type brokerReply struct {
	topic   string
	payload string
}

// systemReplies makes the test broker answer Emitter system requests. Like
// the Emitter broker it writes each reply straight to the requesting
// connection, which never subscribes to the reply topic.
type systemReplies struct {
	mochi.HookBase

	replies map[string]brokerReply

	mu       sync.Mutex
	requests map[string]string
}

func newSystemReplies(replies map[string]brokerReply) *systemReplies {
	return &systemReplies{replies: replies, requests: make(map[string]string)}
}

func (h *systemReplies) ID() string { return "emitter-system-replies" }

func (h *systemReplies) Provides(b byte) bool { return b == mochi.OnPublish }

func (h *systemReplies) OnPublish(cl *mochi.Client, pk packets.Packet) (packets.Packet, error) {
	reply, ok := h.replies[pk.TopicName]
	if !ok {
		return pk, nil
	}

	h.mu.Lock()
	h.requests[pk.TopicName] = string(pk.Payload)
	h.mu.Unlock()

	// A failed write surfaces as the command timing out.
	_ = cl.WritePacket(packets.Packet{
		FixedHeader: packets.FixedHeader{Type: packets.Publish},
		TopicName:   reply.topic,
		Payload:     []byte(reply.payload),
	})
	return pk, nil
}

func (h *systemReplies) request(topic string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requests[topic]
}

// storedKey reads the key saved for ch in the database named by the config
// at path, creating the schema when no command has yet.
func storedKey(t *testing.T, path, ch string) (*keystore.ChannelKey, error) {
	t.Helper()
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	db, err := database.Open(context.Background(), cfg.Database)
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	defer db.Close()
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return keystore.NewSQLiteRepository(db.DB).Get(context.Background(), ch)
}

func TestKeygen_SavesKey(t *testing.T) {
	hook := newSystemReplies(map[string]brokerReply{
		"emitter/keygen/": {"emitter/keygen/", `{"key":"generated-key","channel":"chat/","status":200}`},
	})
	path := writeConfig(t, startBroker(t, hook), 0, "")

	out, err := runCmd(context.Background(), "-config", path,
		"keygen", "-key", "master", "-channel", "chat", "-type", "rw", "-ttl", "600")
	if err != nil {
		t.Fatalf("keygen error = %v", err)
	}
	if !strings.Contains(out, `"key": "generated-key"`) {
		t.Errorf("output = %q, want generated key", out)
	}
	if got, want := hook.request("emitter/keygen/"), `{"key":"master","channel":"chat","type":"rw","ttl":600}`; got != want {
		t.Errorf("keygen request = %s, want %s", got, want)
	}

	stored, err := storedKey(t, path, "chat")
	if err != nil {
		t.Fatalf("stored key error = %v", err)
	}
	if stored.Key != "generated-key" || stored.Type != "rw" || stored.TTL != 600 {
		t.Errorf("stored key = %+v", stored)
	}

	// publish picks the stored key up without -key.
	if _, err := runCmd(context.Background(), "-config", path, "publish", "-channel", "chat", "-message", "hi"); err != nil {
		t.Errorf("publish with stored key error = %v", err)
	}
}

func TestKeygen_NoSave(t *testing.T) {
	hook := newSystemReplies(map[string]brokerReply{
		"emitter/keygen/": {"emitter/keygen/", `{"key":"generated-key","channel":"chat/","status":200}`},
	})
	path := writeConfig(t, startBroker(t, hook), 0, "")

	if _, err := runCmd(context.Background(), "-config", path,
		"keygen", "-key", "master", "-channel", "chat", "-save=false"); err != nil {
		t.Fatalf("keygen error = %v", err)
	}
	if _, err := storedKey(t, path, "chat"); !errors.Is(err, keystore.ErrKeyNotFound) {
		t.Errorf("stored key error = %v, want ErrKeyNotFound", err)
	}
}

func TestKeygen_Rejected(t *testing.T) {
	hook := newSystemReplies(map[string]brokerReply{
		"emitter/keygen/": {"emitter/keygen/", `{"status":401,"message":"the security key provided is not authorized"}`},
	})
	path := writeConfig(t, startBroker(t, hook), 0, "")

	_, err := runCmd(context.Background(), "-config", path, "keygen", "-key", "bad", "-channel", "chat")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("keygen error = %v, want broker status 401", err)
	}
	if _, err := storedKey(t, path, "chat"); !errors.Is(err, keystore.ErrKeyNotFound) {
		t.Errorf("stored key error = %v, want ErrKeyNotFound", err)
	}
}

func TestRequests_MissingFlags(t *testing.T) {
	path := writeConfig(t, 1, 0, "")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no key", []string{"keygen", "-channel", "chat"}, "-key is required"},
		{"no channel", []string{"keygen", "-key", "master"}, "-channel is required"},
		{"link without name", []string{"link", "-key", testKey, "-channel", "chat"}, "-name is required"},
		{"presence without channel", []string{"presence", "-key", testKey}, "-channel is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCmd(context.Background(), append([]string{"-config", path}, tt.args...)...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("run() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestLink(t *testing.T) {
	hook := newSystemReplies(map[string]brokerReply{
		"emitter/link/": {"emitter/link/", `{"status":200,"name":"a1","channel":"chat/?ttl=30"}`},
	})
	path := writeConfig(t, startBroker(t, hook), 0, "")

	out, err := runCmd(context.Background(), "-config", path,
		"link", "-key", testKey, "-channel", "chat", "-name", "a1", "-private", "-ttl", "30")
	if err != nil {
		t.Fatalf("link error = %v", err)
	}
	if !strings.Contains(out, `"name": "a1"`) {
		t.Errorf("output = %q, want link a1", out)
	}

	want := `{"key":"` + testKey + `","channel":"chat/?ttl=30","name":"a1","private":true,"subscribe":false}`
	if got := hook.request("emitter/link/"); got != want {
		t.Errorf("link request = %s, want %s", got, want)
	}
}

func TestLink_BrokerError(t *testing.T) {
	hook := newSystemReplies(map[string]brokerReply{
		"emitter/link/": {"emitter/error/", `{"status":400,"message":"the link must be an alphanumeric string of 1 or 2 characters"}`},
	})
	path := writeConfig(t, startBroker(t, hook), 0, "")

	_, err := runCmd(context.Background(), "-config", path,
		"link", "-key", testKey, "-channel", "chat", "-name", "toolong")
	if err == nil || !strings.Contains(err.Error(), "alphanumeric") {
		t.Errorf("link error = %v, want broker error", err)
	}
}

func TestMe(t *testing.T) {
	hook := newSystemReplies(map[string]brokerReply{
		"emitter/me/": {"emitter/me/", `{"id":"conn-1","links":{"a1":"chat/"}}`},
	})
	path := writeConfig(t, startBroker(t, hook), 0, "")

	out, err := runCmd(context.Background(), "-config", path, "me")
	if err != nil {
		t.Fatalf("me error = %v", err)
	}
	if !strings.Contains(out, `"id": "conn-1"`) || !strings.Contains(out, `"a1": "chat/"`) {
		t.Errorf("output = %q, want connection id and links", out)
	}
}

func TestMe_Timeout(t *testing.T) {
	path := writeConfig(t, startBroker(t), 0, "")

	_, err := runCmd(context.Background(), "-config", path, "me", "-timeout", "200ms")
	if err == nil || !strings.Contains(err.Error(), "waiting for broker reply") {
		t.Errorf("me error = %v, want timeout", err)
	}
}

func TestPresence(t *testing.T) {
	hook := newSystemReplies(map[string]brokerReply{
		"emitter/presence/": {"emitter/presence/", `{"time":1589626821,"event":"status","channel":"chat/","who":[{"id":"A"},{"id":"B","username":"bob"}]}`},
	})
	path := writeConfig(t, startBroker(t, hook), 0, "")

	out, err := runCmd(context.Background(), "-config", path, "presence", "-key", testKey, "-channel", "chat")
	if err != nil {
		t.Fatalf("presence error = %v", err)
	}
	for _, want := range []string{`"event": "status"`, `"id": "A"`, `"username": "bob"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output = %q, want %s", out, want)
		}
	}

	want := `{"key":"` + testKey + `","channel":"chat","status":true,"changes":false}`
	if got := hook.request("emitter/presence/"); got != want {
		t.Errorf("presence request = %s, want %s", got, want)
	}
}

func TestPresence_BrokerError(t *testing.T) {
	hook := newSystemReplies(map[string]brokerReply{
		"emitter/presence/": {"emitter/error/", `{"status":401,"message":"the security key provided is not authorized"}`},
	})
	path := writeConfig(t, startBroker(t, hook), 0, "")

	_, err := runCmd(context.Background(), "-config", path, "presence", "-key", "bad", "-channel", "chat")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("presence error = %v, want broker status 401", err)
	}
}
