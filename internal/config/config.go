package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Session SessionConfig
}

type ServerConfig struct {
	Port           int
	MCPPort        int
	MaxUploadBytes int
}

type StorageConfig struct {
	// DataDir holds the database directory, or ":memory:" for a purely
	// in-process store that vanishes when the server stops.
	DataDir string
}

type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           4600,
			MCPPort:        4601,
			MaxUploadBytes: 10 << 20,
		},
		Storage: StorageConfig{
			DataDir: ":memory:",
		},
		Session: SessionConfig{
			TTL:           2 * time.Hour,
			SweepInterval: time.Minute,
		},
	}
}

// Load reads configuration from a JSON file at
// $XDG_CONFIG_HOME/selftrack/config.json (falling back to ~/.config),
// then applies SELFTRACK_* environment variable overrides.
func Load() (Config, error) {
	return loadFromPath(configFilePath())
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "selftrack", "config.json")
}

func loadFromPath(path string) (Config, error) {
	cfg := defaults()

	b, err := readFileBackend(path)
	if err != nil {
		return Config{}, err
	}
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Server.Port <= 0 || cfg.Server.MCPPort <= 0 {
		return Config{}, fmt.Errorf("invalid config: ports must be positive (port=%d, mcp_port=%d)", cfg.Server.Port, cfg.Server.MCPPort)
	}

	return cfg, nil
}

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key   string
	typ   keyType
	env   string
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SELFTRACK_SERVER_PORT",
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
	},
	{
		key: "server.mcp_port", typ: kInt, env: "SELFTRACK_SERVER_MCP_PORT",
		apply: func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
	},
	{
		key: "server.max_upload_bytes", typ: kInt, env: "SELFTRACK_SERVER_MAX_UPLOAD_BYTES",
		apply: func(cfg *Config, v any) { cfg.Server.MaxUploadBytes = v.(int) },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SELFTRACK_STORAGE_DATA_DIR",
		apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
	},
	{
		key: "session.ttl", typ: kDuration, env: "SELFTRACK_SESSION_TTL",
		apply: func(cfg *Config, v any) { cfg.Session.TTL = v.(time.Duration) },
	},
	{
		key: "session.sweep_interval", typ: kDuration, env: "SELFTRACK_SESSION_SWEEP_INTERVAL",
		apply: func(cfg *Config, v any) { cfg.Session.SweepInterval = v.(time.Duration) },
	},
}

// fileBackend holds a flat JSON object keyed by dotted config names.
type fileBackend struct {
	data map[string]any
}

func readFileBackend(path string) (*fileBackend, error) {
	b := &fileBackend{data: make(map[string]any)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &b.data); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return b, nil
}

func (b *fileBackend) getString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v), true, nil
	}
	return s, true, nil
}

func (b *fileBackend) getInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	switch val := v.(type) {
	case float64:
		if val < math.MinInt || val > math.MaxInt || val != math.Trunc(val) {
			return 0, true, fmt.Errorf("value %v for %s is not a valid integer or is out of range", val, key)
		}
		return int(val), true, nil
	case string:
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("invalid type for %s", key)
	}
}

func applyBackend(cfg *Config, b *fileBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.getString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.getInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.getString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				d, err := time.ParseDuration(v)
				if err != nil {
					return fmt.Errorf("invalid duration for %s: %w", s.key, err)
				}
				s.apply(cfg, d)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
