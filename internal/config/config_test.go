package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vovakirdan/chatbridge/transport"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CHATBRIDGE_SERVER_ADDRESS", "ws://localhost:8080/bridge")
	t.Setenv("CHATBRIDGE_SECRET", "hunter2")
	t.Setenv("CHATBRIDGE_RECONNECT_INTERVAL", "250ms")
	t.Setenv("CHATBRIDGE_LOG_LEVEL", "debug")

	cfg, err := Load(Sources{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerAddress != "ws://localhost:8080/bridge" || cfg.Secret != "hunter2" {
		t.Fatalf("unexpected endpoint: %+v", cfg)
	}
	if cfg.ReconnectInterval != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", cfg.ReconnectInterval)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected debug, got %q", cfg.Log.Level)
	}
	if cfg.SendBuffer != transport.DefaultConfig().SendBuffer {
		t.Fatalf("expected default send buffer, got %d", cfg.SendBuffer)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, "bridge.yaml", `
serverAddress: wss://chat.example.com/ws
secret: from-file
maxReconnectTries: 3
log:
  format: json
metricsAddress: ":9100"
`)
	t.Setenv("CHATBRIDGE_SECRET", "from-env")

	cfg, err := Load(Sources{File: path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerAddress != "wss://chat.example.com/ws" {
		t.Fatalf("unexpected address %q", cfg.ServerAddress)
	}
	if cfg.Secret != "from-env" {
		t.Fatalf("expected env to override file, got %q", cfg.Secret)
	}
	if cfg.MaxReconnectTries != 3 || cfg.Log.Format != "json" || cfg.MetricsAddress != ":9100" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := writeFile(t, ".env", "CHATBRIDGE_SERVER_ADDRESS=http://127.0.0.1:3000\nCHATBRIDGE_SECRET=dotenv\n")
	t.Cleanup(func() {
		os.Unsetenv("CHATBRIDGE_SERVER_ADDRESS")
		os.Unsetenv("CHATBRIDGE_SECRET")
	})

	cfg, err := Load(Sources{EnvFile: path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Secret != "dotenv" {
		t.Fatalf("expected secret from env file, got %q", cfg.Secret)
	}
}

func TestLoadRejectsMissingScheme(t *testing.T) {
	t.Setenv("CHATBRIDGE_SERVER_ADDRESS", "localhost:8080")
	t.Setenv("CHATBRIDGE_SECRET", "x")

	_, err := Load(Sources{})
	if !errors.Is(err, transport.NewError(transport.ErrorInvalidConfig, "")) {
		t.Fatalf("expected invalid config, got %v", err)
	}
}

func TestLoadReportsAllProblems(t *testing.T) {
	t.Setenv("CHATBRIDGE_LOG_LEVEL", "loud")
	t.Setenv("CHATBRIDGE_LOG_FORMAT", "xml")

	_, err := Load(Sources{})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"empty URL", "unknown log level", "unknown log format"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestLoadBadEnvValue(t *testing.T) {
	t.Setenv("CHATBRIDGE_SEND_BUFFER", "lots")
	_, err := Load(Sources{})
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(Sources{File: filepath.Join(t.TempDir(), "missing.yaml")})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
