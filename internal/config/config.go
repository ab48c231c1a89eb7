package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Local backends for the durable guest tier.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" env:"PORT"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr" env:"CYBERSHIELD_REDIS_ADDR"`
		Password string `yaml:"password" env:"CYBERSHIELD_REDIS_PASSWORD"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" env:"CYBERSHIELD_POSTGRES_URL"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Local struct {
		Backend string `yaml:"backend" env:"CYBERSHIELD_LOCAL_BACKEND"`
		Path    string `yaml:"path" env:"CYBERSHIELD_LOCAL_PATH"`
	} `yaml:"local"`
	Progress struct {
		Debounce     string `yaml:"debounce"`
		PendingTTL   string `yaml:"pendingTTL"`
		WriteTimeout string `yaml:"writeTimeout"`
	} `yaml:"progress"`
	Auth struct {
		Secret   string `yaml:"secret" env:"CYBERSHIELD_AUTH_SECRET"`
		Issuer   string `yaml:"issuer"`
		TokenTTL string `yaml:"tokenTTL"`
	} `yaml:"auth"`
	Leaderboard struct {
		TopK     int    `yaml:"topK" env:"CYBERSHIELD_LEADERBOARD_TOP_K"`
		CacheTTL string `yaml:"cacheTTL"`
	} `yaml:"leaderboard"`
}

// Load reads YAML config from path and overlays environment variables. A missing file
// is not an error; the environment and defaults still apply.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	switch cfg.Local.Backend {
	case BackendSQLite, BackendRedis, BackendMemory:
	default:
		return cfg, fmt.Errorf("unknown local backend %q", cfg.Local.Backend)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Local.Backend == "" {
		c.Local.Backend = BackendSQLite
	}
	if c.Local.Path == "" {
		c.Local.Path = defaultLocalPath()
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "cybershield"
	}
}

func defaultLocalPath() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		if home, err := os.UserHomeDir(); err == nil {
			base = filepath.Join(home, ".local", "share")
		} else {
			base = os.TempDir()
		}
	}
	return filepath.Join(base, "cybershield", "local.db")
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
