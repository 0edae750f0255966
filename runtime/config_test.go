package runtime

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/wasm-bridge/errors"
)

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.toml")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
memory_limit_pages = 64
wasi = false
big_endian = true
cache_dir = "/tmp/bridge"

[log]
level = "debug"
development = true
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := Config{
		CacheDir:         "/tmp/bridge",
		Log:              LogConfig{Level: "debug", Development: true},
		MemoryLimitPages: 64,
		WASI:             false,
		BigEndian:        true,
	}
	if cfg != want {
		t.Errorf("LoadConfig = %+v, want %+v", cfg, want)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "memory_limit_pages = 16\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.WASI {
		t.Error("wasi should default to true")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		message string
	}{
		{"syntax", "memory_limit_pages = ", "failed to parse TOML"},
		{"unknown key", "memory_pages = 4\n", "unknown keys memory_pages"},
		{"bad level", "[log]\nlevel = \"loud\"\n", "log.level"},
		{"too much memory", "memory_limit_pages = 70000\n", "exceeds 65536"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.text))
			if err == nil {
				t.Fatal("expected an error")
			}
			if errors.KindOf(err) != errors.KindInvalidInput {
				t.Errorf("kind = %s", errors.KindOf(err))
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("error %q does not mention %q", err, tt.message)
			}
		})
	}
}

func TestNewWithConfig(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Log.Level = "warn"
	cfg.MemoryLimitPages = 4
	rt, err := New(ctx, WithConfig(cfg))
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close(ctx)
	if rt.Config().MemoryLimitPages != 4 {
		t.Errorf("Config() = %+v", rt.Config())
	}
	if rt.Logger() == nil {
		t.Error("no logger")
	}

	cfg.Log.Level = "chatty"
	if _, err := New(ctx, WithConfig(cfg)); errors.KindOf(err) != errors.KindInvalidInput {
		t.Errorf("New with a bad level error = %v", err)
	}
}
