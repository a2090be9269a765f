package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "database:\n  name: faces\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 0.6, cfg.Recognition.FaceTolerance())
	assert.Equal(t, 300*time.Second, cfg.Recognition.CacheTTL)
	assert.Equal(t, int64(10*1024*1024), cfg.Recognition.MaxUploadSize)
	assert.Equal(t, []string{".jpg", ".jpeg", ".png", ".gif", ".bmp"}, cfg.Recognition.AllowedExtensions)
	assert.Equal(t, CacheBackendNATS, cfg.Recognition.CacheBackend)
	assert.True(t, cfg.Recognition.Reenroll())
	assert.Equal(t, 1, cfg.NATS.Prefetch)
	assert.Equal(t, "IMAGE_PROCESSING", cfg.NATS.Stream)
	assert.Equal(t, "face_recognition_queue", cfg.NATS.Queue)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_YAMLValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  api_keys: [k1, k2]
nats:
  prefetch: 4
  ack_wait: 15s
recognition:
  tolerance: 0.45
  cache_backend: memory
  max_signatures_per_person: 20
  reenroll_on_match: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)
	assert.Equal(t, 4, cfg.NATS.Prefetch)
	assert.Equal(t, 15*time.Second, cfg.NATS.AckWait)
	assert.Equal(t, 0.45, cfg.Recognition.FaceTolerance())
	assert.Equal(t, CacheBackendMemory, cfg.Recognition.CacheBackend)
	assert.Equal(t, 20, cfg.Recognition.MaxSignaturesPerPerson)
	assert.False(t, cfg.Recognition.Reenroll())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FACEID_SERVER_PORT", "7070")
	t.Setenv("FACEID_API_KEYS", " a , b,,")
	t.Setenv("FACEID_NATS_URL", "nats://broker:4222")
	t.Setenv("FACEID_FACE_TOLERANCE", "0.5")
	t.Setenv("FACEID_DATABASE_URL", "postgres://u:p@db:5432/x")

	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, []string{"a", "b"}, cfg.Server.APIKeys)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, 0.5, cfg.Recognition.FaceTolerance())
	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.Database.DSN())
}

func TestLoad_ZeroToleranceKept(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  string
	}{
		{name: "yaml", yaml: "recognition:\n  tolerance: 0\n"},
		{name: "env", yaml: "server:\n  port: 9000\n", env: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.env != "" {
				t.Setenv("FACEID_FACE_TOLERANCE", tt.env)
			}
			cfg, err := Load(writeConfig(t, tt.yaml))
			require.NoError(t, err)

			require.NotNil(t, cfg.Recognition.Tolerance)
			assert.Zero(t, cfg.Recognition.FaceTolerance())
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoad_EmptyPathUsesEnvAndDefaults(t *testing.T) {
	t.Setenv("FACEID_DB_NAME", "faces")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "faces", cfg.Database.Name)
	assert.Equal(t, "postgres://:@:5432/faces?sslmode=disable", cfg.Database.DSN())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"negative tolerance", func(c *Config) { tol := -1.0; c.Recognition.Tolerance = &tol }, "tolerance"},
		{"zero tolerance", func(c *Config) { tol := 0.0; c.Recognition.Tolerance = &tol }, ""},
		{"unknown cache backend", func(c *Config) { c.Recognition.CacheBackend = "redis" }, "cache_backend"},
		{"zero prefetch", func(c *Config) { c.NATS.Prefetch = 0 }, "prefetch"},
		{"extension without dot", func(c *Config) { c.Recognition.AllowedExtensions = []string{"jpg"} }, "must start with a dot"},
		{"negative cap", func(c *Config) { c.Recognition.MaxSignaturesPerPerson = -2 }, "max_signatures_per_person"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			setDefaults(cfg)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
