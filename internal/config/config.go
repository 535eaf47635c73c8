// Package config loads the server configuration from the environment.
//
// An optional .env file in the working directory is read first; variables
// already set in the process environment win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

var (
	ErrInvalidMaxEntries  = errors.New("config: CACHE_MAX_ENTRIES must not be negative")
	ErrInvalidTTL         = errors.New("config: CACHE_TTL must not be negative")
	ErrInvalidCleanup     = errors.New("config: CACHE_CLEANUP_INTERVAL must not be negative")
	ErrInvalidReplication = errors.New("config: REPLICATION_FACTOR must be at least 1")
	ErrInvalidReplicas    = errors.New("config: RING_REPLICAS must be at least 1")
	ErrInvalidLeaseTTL    = errors.New("config: ETCD_LEASE_TTL must be at least 1s")
)

type Config struct {
	SelfID     string `env:"SELF_ID"`
	SelfAddr   string `env:"SELF_ADDR" envDefault:"localhost:8080"`
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	MaxEntries      int           `env:"CACHE_MAX_ENTRIES" envDefault:"1000"`
	TTL             time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	CleanupInterval time.Duration `env:"CACHE_CLEANUP_INTERVAL" envDefault:"30s"`

	ReplicationFactor int `env:"REPLICATION_FACTOR" envDefault:"2"`
	RingReplicas      int `env:"RING_REPLICAS" envDefault:"128"`

	EtcdEndpoints   []string      `env:"ETCD_ENDPOINTS" envSeparator:","`
	EtcdPrefix      string        `env:"ETCD_PREFIX" envDefault:"/fifocache/nodes/"`
	EtcdLeaseTTL    time.Duration `env:"ETCD_LEASE_TTL" envDefault:"10s"`
	EtcdDialTimeout time.Duration `env:"ETCD_DIAL_TIMEOUT" envDefault:"5s"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads .env (if present) and the environment into a Config, fills
// derived defaults and validates the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: loading .env: %w", err)
	}
	return Parse()
}

// Parse is Load without the .env step.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if cfg.SelfID == "" {
		cfg.SelfID = uuid.NewString()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.MaxEntries < 0:
		return ErrInvalidMaxEntries
	case c.TTL < 0:
		return ErrInvalidTTL
	case c.CleanupInterval < 0:
		return ErrInvalidCleanup
	case c.ReplicationFactor < 1:
		return ErrInvalidReplication
	case c.RingReplicas < 1:
		return ErrInvalidReplicas
	case len(c.EtcdEndpoints) > 0 && c.EtcdLeaseTTL < time.Second:
		return ErrInvalidLeaseTTL
	}
	return nil
}

// DiscoveryEnabled reports whether etcd endpoints were configured.
func (c Config) DiscoveryEnabled() bool {
	return len(c.EtcdEndpoints) > 0
}
