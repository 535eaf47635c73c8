package config

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 1000, cfg.MaxEntries)
	assert.Equal(t, 5*time.Minute, cfg.TTL)
	assert.Equal(t, 30*time.Second, cfg.CleanupInterval)
	assert.Equal(t, 2, cfg.ReplicationFactor)
	assert.Equal(t, 128, cfg.RingReplicas)
	assert.Empty(t, cfg.EtcdEndpoints)
	assert.False(t, cfg.DiscoveryEnabled())
	assert.Equal(t, "info", cfg.LogLevel)

	_, err = uuid.Parse(cfg.SelfID)
	assert.NoError(t, err, "SELF_ID defaults to a uuid")
}

func TestParse_FromEnv(t *testing.T) {
	t.Setenv("SELF_ID", "node1")
	t.Setenv("CACHE_MAX_ENTRIES", "42")
	t.Setenv("CACHE_TTL", "0")
	t.Setenv("ETCD_ENDPOINTS", "http://etcd-1:2379,http://etcd-2:2379")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "node1", cfg.SelfID)
	assert.Equal(t, 42, cfg.MaxEntries)
	assert.Zero(t, cfg.TTL)
	assert.Equal(t, []string{"http://etcd-1:2379", "http://etcd-2:2379"}, cfg.EtcdEndpoints)
	assert.True(t, cfg.DiscoveryEnabled())
}

func TestParse_BadValue(t *testing.T) {
	t.Setenv("CACHE_TTL", "soon")
	_, err := Parse()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{ReplicationFactor: 1, RingReplicas: 1, EtcdLeaseTTL: 10 * time.Second}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid", func(*Config) {}, nil},
		{"negative entries", func(c *Config) { c.MaxEntries = -1 }, ErrInvalidMaxEntries},
		{"negative ttl", func(c *Config) { c.TTL = -time.Second }, ErrInvalidTTL},
		{"negative cleanup", func(c *Config) { c.CleanupInterval = -time.Second }, ErrInvalidCleanup},
		{"zero replication", func(c *Config) { c.ReplicationFactor = 0 }, ErrInvalidReplication},
		{"zero replicas", func(c *Config) { c.RingReplicas = 0 }, ErrInvalidReplicas},
		{"short lease", func(c *Config) {
			c.EtcdEndpoints = []string{"etcd:2379"}
			c.EtcdLeaseTTL = time.Millisecond
		}, ErrInvalidLeaseTTL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
