package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, StorageInMemory, cfg.Storage)
	assert.Equal(t, KVMemory, cfg.KV)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.Seed)
	assert.True(t, cfg.Dev())
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("BLOG_PORT", "9000")
	t.Setenv("BLOG_STORAGE", "postgres")
	t.Setenv("BLOG_DATABASE_URL", "postgres://blog@localhost/blog")
	t.Setenv("BLOG_TOKEN_TTL", "90m")
	t.Setenv("BLOG_SEED", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr())
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, 90*time.Minute, cfg.TokenTTL)
	assert.False(t, cfg.Seed)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"7000\"\nkv: redis\nredis_addr: cache:6379\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, KVRedis, cfg.KV)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without dsn", map[string]string{"BLOG_STORAGE": "postgres"}},
		{"remote without url", map[string]string{"BLOG_STORAGE": "remote"}},
		{"unknown storage", map[string]string{"BLOG_STORAGE": "mongo"}},
		{"unknown kv", map[string]string{"BLOG_KV": "memcached"}},
		{"production dev secret", map[string]string{"BLOG_ENV": "production"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
