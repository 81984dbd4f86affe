package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/nerrad567/emitter-go/internal/infrastructure/config"
	"github.com/nerrad567/emitter-go/internal/infrastructure/mqtt"
)

const testKey = "5xZjIQp6GA9fpxso1Kslqnv8d4XVWCha"

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// startBroker runs an in-process MQTT broker with hooks installed and
// returns its port.
func startBroker(t *testing.T, hooks ...mochi.Hook) int {
	t.Helper()

	port := freePort(t)
	server := mochi.New(&mochi.Options{InlineClient: true})
	for _, hook := range append([]mochi.Hook{new(auth.AllowHook)}, hooks...) {
		if err := server.AddHook(hook, nil); err != nil {
			t.Fatalf("AddHook(%s) error = %v", hook.ID(), err)
		}
	}
	tcp := listeners.NewTCP(listeners.Config{
		ID:      "test",
		Address: fmt.Sprintf("127.0.0.1:%d", port),
	})
	if err := server.AddListener(tcp); err != nil {
		t.Fatalf("AddListener() error = %v", err)
	}

	go func() {
		_ = server.Serve()
	}()
	t.Cleanup(func() {
		_ = server.Close()
	})

	return port
}

// writeConfig writes a config file for a plain-TCP broker on brokerPort and
// returns its path. apiPort 0 disables the API.
func writeConfig(t *testing.T, brokerPort, apiPort int, subscriptions string) string {
	t.Helper()
	dir := t.TempDir()

	content := fmt.Sprintf(`
emitter:
  broker:
    host: "127.0.0.1"
    port: %d
    secure: false
  subscriptions:
%s
database:
  path: %q
api:
  enabled: %t
  host: "127.0.0.1"
  port: %d
logging:
  level: error
  format: text
  output: stderr
`, brokerPort, subscriptions, filepath.Join(dir, "emitter.db"), apiPort != 0, apiPort)

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func runCmd(ctx context.Context, args ...string) (string, error) {
	var out bytes.Buffer
	err := run(ctx, args, &out, io.Discard)
	return out.String(), err
}

func TestRun_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"nope"}},
		{"unknown global flag", []string{"-bogus", "me"}},
		{"publish without channel", []string{"publish", "-key", testKey}},
		{"keygen without key", []string{"keygen", "-channel", "chat"}},
		{"keygen without channel", []string{"keygen", "-key", testKey}},
		{"link without name", []string{"link", "-key", testKey, "-channel", "chat"}},
		{"presence without channel", []string{"presence"}},
		{"bad subcommand flag", []string{"me", "-timeout", "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("EMITTER_CONFIG", "")
			chdir(t, t.TempDir())

			_, err := runCmd(context.Background(), tt.args...)
			if !errors.Is(err, errUsage) {
				t.Errorf("run(%v) error = %v, want usage error", tt.args, err)
			}
		})
	}
}

func TestRun_Version(t *testing.T) {
	out, err := runCmd(context.Background(), "-version")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.HasPrefix(out, "emitter dev") {
		t.Errorf("output = %q, want version line", out)
	}
}

func TestRun_Help(t *testing.T) {
	if _, err := runCmd(context.Background(), "-h"); err != nil {
		t.Errorf("run(-h) error = %v, want nil", err)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	_, err := runCmd(context.Background(), "-config", "/nonexistent/path/config.yaml", "me")
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if errors.Is(err, errUsage) {
		t.Errorf("error = %v, want a config error", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	tests := []struct {
		name         string
		flag         string
		env          string
		want         string
		wantExplicit bool
	}{
		{"default", "", "", defaultConfigPath, false},
		{"env", "", "/etc/emitter.yaml", "/etc/emitter.yaml", true},
		{"flag wins", "./mine.yaml", "/etc/emitter.yaml", "./mine.yaml", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("EMITTER_CONFIG", tt.env)
			got, explicit := getConfigPath(tt.flag)
			if got != tt.want || explicit != tt.wantExplicit {
				t.Errorf("getConfigPath(%q) = %q, %v; want %q, %v", tt.flag, got, explicit, tt.want, tt.wantExplicit)
			}
		})
	}
}

func TestLoadConfig_DefaultFallback(t *testing.T) {
	t.Setenv("EMITTER_CONFIG", "")
	chdir(t, t.TempDir())

	cfg, path, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want defaults", path)
	}
	if cfg.Emitter.Broker.Host != config.DefaultHost {
		t.Errorf("host = %q, want %q", cfg.Emitter.Broker.Host, config.DefaultHost)
	}
}

func TestPublish_NoStoredKey(t *testing.T) {
	path := writeConfig(t, 1, 0, "")

	_, err := runCmd(context.Background(), "-config", path, "publish", "-channel", "chat", "-message", "hi")
	if err == nil || !strings.Contains(err.Error(), "run keygen first") {
		t.Errorf("run() error = %v, want missing key error", err)
	}
}

func TestPublish_BrokerUnreachable(t *testing.T) {
	path := writeConfig(t, freePort(t), 0, "")

	_, err := runCmd(context.Background(), "-config", path, "publish", "-key", testKey, "-channel", "chat")
	if err == nil || !strings.Contains(err.Error(), "connecting to") {
		t.Errorf("run() error = %v, want connection error", err)
	}
}

func TestPublish(t *testing.T) {
	port := startBroker(t)
	path := writeConfig(t, port, 0, "")

	// A plain MQTT subscriber sees the full Emitter topic.
	secure := false
	watcher, err := mqtt.Connect(config.EmitterConfig{
		Broker:    config.BrokerConfig{Host: "127.0.0.1", Port: port, Secure: &secure, ClientID: "watcher"},
		KeepAlive: 30,
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer watcher.Close()

	got := make(chan string, 1)
	watcher.SetMessageHandler(func(topic string, payload []byte) error {
		got <- topic + " " + string(payload)
		return nil
	})
	if err := watcher.Subscribe(testKey+"/#", 0); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	_, err = runCmd(context.Background(), "-config", path,
		"publish", "-key", testKey, "-channel", "chat", "-message", "hello", "-ttl", "30")
	if err != nil {
		t.Fatalf("publish error = %v", err)
	}

	select {
	case msg := <-got:
		want := testKey + "/chat/?ttl=30 hello"
		if msg != want {
			t.Errorf("received %q, want %q", msg, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for published message")
	}
}

func TestListen_ServesAPI(t *testing.T) {
	brokerPort := startBroker(t)
	apiPort := freePort(t)
	path := writeConfig(t, brokerPort, apiPort, fmt.Sprintf(`    - key: %q
      channel: chat
      last: 5
    - key: %q
      channel: jobs
      group: workers`, testKey, testKey))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := runCmd(ctx, "-config", path, "listen")
		done <- err
	}()

	base := fmt.Sprintf("http://127.0.0.1:%d", apiPort)
	var resp *http.Response
	deadline := time.Now().Add(5 * time.Second)
	for {
		var err error
		resp, err = http.Get(base + "/api/v1/subscriptions")
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("API never came up: %v", err)
		}
		select {
		case err := <-done:
			t.Fatalf("listen exited early: %v", err)
		case <-time.After(50 * time.Millisecond):
		}
	}
	defer resp.Body.Close()

	var body struct {
		Subscriptions []string `json:"subscriptions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Join(body.Subscriptions, ",") != "chat,jobs" {
		t.Errorf("subscriptions = %v, want [chat jobs]", body.Subscriptions)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("listen returned %v, want nil", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("listen did not stop after cancel")
	}
}

func TestListen_NoStoredKey(t *testing.T) {
	path := writeConfig(t, startBroker(t), 0, `    - channel: chat`)

	_, err := runCmd(context.Background(), "-config", path, "listen")
	if err == nil || !strings.Contains(err.Error(), "run keygen first") {
		t.Errorf("run() error = %v, want missing key error", err)
	}
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent of testing.T.Chdir, Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Errorf("restore working directory: %v", err)
		}
	})
}
