package runtime

import (
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-bridge/errors"
)

// Config is the runtime configuration, usually read from a TOML file:
//
//	memory_limit_pages = 256
//	wasi = true
//	big_endian = false
//	cache_dir = "~/.cache/wasm-bridge"
//
//	[log]
//	level = "debug"
//	development = true
type Config struct {
	// CacheDir holds compiled code and structure catalogs. Empty disables
	// both caches.
	CacheDir string `toml:"cache_dir"`

	Log LogConfig `toml:"log"`

	// MemoryLimitPages caps each instance's memory in 64KiB pages. 0 keeps
	// the wazero default.
	MemoryLimitPages uint32 `toml:"memory_limit_pages"`

	// WASI provides wasi_snapshot_preview1 to modules that import it.
	WASI bool `toml:"wasi"`

	// BigEndian marks module memory as big-endian.
	BigEndian bool `toml:"big_endian"`
}

// LogConfig selects the logger the runtime builds. An empty level keeps
// logging off.
type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{WASI: true}
}

// LoadConfig reads a TOML configuration file on top of DefaultConfig.
// Unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, path+": failed to parse TOML")
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return Config{}, errors.InvalidInput(errors.PhaseConfig, path+": unknown keys "+strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that TOML decoding cannot.
func (c Config) Validate() error {
	if c.Log.Level != "" {
		if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
			return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log.level")
		}
	}
	if c.MemoryLimitPages > 65536 {
		return errors.InvalidInput(errors.PhaseConfig, "memory_limit_pages exceeds 65536")
	}
	return nil
}

// logger builds the logger described by c.Log.
func (c Config) logger() (*zap.Logger, error) {
	if c.Log.Level == "" {
		return zap.NewNop(), nil
	}
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log.level")
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	l, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInternal, err, "build logger")
	}
	return l, nil
}
