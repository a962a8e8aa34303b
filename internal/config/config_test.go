package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SignalURL != "ws://localhost:8000/ws" {
		t.Errorf("unexpected signal url %q", cfg.SignalURL)
	}
	if cfg.PingInterval != 20*time.Second {
		t.Errorf("unexpected ping interval %s", cfg.PingInterval)
	}
	if len(cfg.ICEServers) != 1 {
		t.Fatalf("expected 1 ICE server, got %d", len(cfg.ICEServers))
	}
	if !reflect.DeepEqual(cfg.ICEServers[0].URLs, DefaultSTUNURLs) {
		t.Errorf("unexpected STUN urls %v", cfg.ICEServers[0].URLs)
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("CAMFEED_SIGNAL_URL", "wss://signal.example.com/ws")
	t.Setenv("CAMFEED_STUN_URLS", "stun:a.example.com:3478, stun:b.example.com:3478")
	t.Setenv("CAMFEED_PING_INTERVAL", "5s")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SignalURL != "wss://signal.example.com/ws" {
		t.Errorf("unexpected signal url %q", cfg.SignalURL)
	}
	if cfg.PingInterval != 5*time.Second {
		t.Errorf("unexpected ping interval %s", cfg.PingInterval)
	}
	want := []string{"stun:a.example.com:3478", "stun:b.example.com:3478"}
	if !reflect.DeepEqual(cfg.ICEServers[0].URLs, want) {
		t.Errorf("expected %v, got %v", want, cfg.ICEServers[0].URLs)
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("CAMFEED_SOURCE", "file")

	cfg, err := Load([]string{"--source", "camera", "--log-level", "debug"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source != "camera" {
		t.Errorf("expected flag to win, got %q", cfg.Source)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("unexpected log level %q", cfg.LogLevel)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camfeed.yaml")
	body := "signal_url: ws://10.0.0.5:9000/ws\nturn_url: turn:turn.example.com:3478\nturn_username: u\nturn_credential: p\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SignalURL != "ws://10.0.0.5:9000/ws" {
		t.Errorf("unexpected signal url %q", cfg.SignalURL)
	}
	if len(cfg.ICEServers) != 2 {
		t.Fatalf("expected STUN and TURN servers, got %d", len(cfg.ICEServers))
	}
	turn := cfg.ICEServers[1]
	if turn.Username != "u" || turn.Credential != "p" {
		t.Errorf("unexpected TURN credentials %+v", turn)
	}
}

func TestLoad_RejectsBadScheme(t *testing.T) {
	if _, err := Load([]string{"--signal-url", "http://localhost:8000/ws"}); err == nil {
		t.Fatal("expected error for http scheme")
	}
}

func TestLoad_TURNNeedsCredentials(t *testing.T) {
	if _, err := Load([]string{"--turn-url", "turn:turn.example.com"}); err == nil {
		t.Fatal("expected error for TURN without credentials")
	}
}

func TestLoad_Help(t *testing.T) {
	_, err := Load([]string{"--help"})
	if !errors.Is(err, ErrHelp) {
		t.Fatalf("expected ErrHelp, got %v", err)
	}
}

func TestLoad_RejectsNonPositiveTimeouts(t *testing.T) {
	for _, env := range []string{"CAMFEED_WRITE_TIMEOUT", "CAMFEED_HANDSHAKE_TIMEOUT", "CAMFEED_PING_INTERVAL"} {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, "0s")
			if _, err := Load(nil); err == nil {
				t.Fatalf("expected error for %s=0s", env)
			}
		})
	}
}
