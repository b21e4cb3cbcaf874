package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/wastenet/errors"
)

// isolate points the global config lookup at an empty directory.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("WASTENET_HOME", home)
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadFromBytesDefaults(t *testing.T) {
	cfg, err := LoadFromBytes([]byte("version: \"1.0\"\n"), "yaml")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:5001", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, Duration(cfg.Server.Heartbeat, 0))
	assert.Equal(t, 64, cfg.Notifier.QueueSize)
	assert.Equal(t, "http://127.0.0.1:5001", cfg.Sync.ServerURL)
	assert.Equal(t, "sse", cfg.Sync.Transport)
	assert.InDelta(t, 0.60, cfg.Classifier.Threshold, 1e-9)
	assert.True(t, *cfg.Store.Persist)
	assert.True(t, *cfg.Server.ConfigWatch)
	assert.False(t, cfg.Relays.NATS.Enabled)
	assert.Equal(t, "wastenet.bins", cfg.Relays.NATS.Subject)
}

func TestLoadFromBytesEnvExpansion(t *testing.T) {
	t.Setenv("WASTENET_TEST_ADDR", "0.0.0.0:7000")
	data := `
server:
  addr: ${WASTENET_TEST_ADDR}
relays:
  nats:
    enabled: true
    url: ${WASTENET_TEST_NATS_UNSET:-nats://broker:4222}
`
	cfg, err := LoadFromBytes([]byte(data), "yaml")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:7000", cfg.Server.Addr)
	assert.Equal(t, "nats://broker:4222", cfg.Relays.NATS.URL)
	assert.True(t, cfg.Relays.NATS.Enabled)
}

func TestLoadFromBytesTOML(t *testing.T) {
	data := `
version = "1.0"

[sync]
transport = "ws"

[[bins]]
id = "BIN-T"
longitude = 2.35
latitude = 48.85
capacity = 4

[logging]
level = "debug"
`
	cfg, err := LoadFromBytes([]byte(data), "toml")
	require.NoError(t, err)
	assert.Equal(t, "ws", cfg.Sync.Transport)
	require.Len(t, cfg.Bins, 1)
	assert.Equal(t, "BIN-T", cfg.Bins[0].ID)
	assert.Equal(t, 4, cfg.Bins[0].Capacity)

	var logCfg struct {
		Level string `yaml:"level"`
	}
	require.NoError(t, cfg.UnmarshalExtension("logging", &logCfg))
	assert.Equal(t, "debug", logCfg.Level)
}

func TestLoadFromBytesRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
		code errors.ErrorCode
	}{
		{"malformed yaml", "server: [", errors.ErrCodeConfigInvalid},
		{"unknown section field", "server:\n  port: 1\n", errors.ErrCodeConfigValidation},
		{"bad transport", "sync:\n  transport: grpc\n", errors.ErrCodeConfigValidation},
		{"bad duration", "server:\n  heartbeat: soon\n", errors.ErrCodeConfigValidation},
		{"heartbeat timeout too short", "server:\n  heartbeat: 30s\nsync:\n  heartbeat_timeout: 10s\n", errors.ErrCodeConfigValidation},
		{"duplicate bins", "bins:\n  - id: A\n  - id: A\n", errors.ErrCodeConfigValidation},
		{"latitude out of range", "bins:\n  - id: A\n    latitude: 120\n", errors.ErrCodeConfigValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.data), "yaml")
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}
}

func TestSeeds(t *testing.T) {
	cfg := &Config{Bins: []BinConfig{
		{ID: "A", Longitude: 1, Latitude: 2, Capacity: 3, Counts: map[string]int{"paper": 1}},
		{ID: "B"},
	}}
	seeds := cfg.Seeds()
	require.Len(t, seeds, 2)
	assert.Equal(t, "A", seeds[0].ID)
	assert.Equal(t, 1.0, seeds[0].Position.Longitude)
	assert.Equal(t, 2.0, seeds[0].Position.Latitude)
	assert.Equal(t, map[string]int{"paper": 1}, seeds[0].Counts)

	// Seeds must not alias the config maps.
	seeds[0].Counts["paper"] = 99
	assert.Equal(t, 1, cfg.Bins[0].Counts["paper"])
}

func TestFindConfigFileWalksUp(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "wastenet.yml"), "version: \"1.0\"\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	path, err := FindConfigFile(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "wastenet.yml"), path)
}

func TestLoadOrDefaultWithoutFile(t *testing.T) {
	isolate(t)
	cfg, path, err := LoadOrDefault(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, "127.0.0.1:5001", cfg.Server.Addr)
	assert.Empty(t, cfg.Bins)
}

func TestDotEnvFeedsExpansion(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	t.Setenv("WASTENET_TEST_DOTENV", "")
	os.Unsetenv("WASTENET_TEST_DOTENV")
	writeFile(t, filepath.Join(dir, ".env"), "WASTENET_TEST_DOTENV=10.0.0.1:9000\n")
	writeFile(t, filepath.Join(dir, "wastenet.yml"), "server:\n  addr: ${WASTENET_TEST_DOTENV}\n")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:9000", cfg.Server.Addr)
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 3*time.Second, Duration("3s", time.Minute))
	assert.Equal(t, time.Minute, Duration("", time.Minute))
	assert.Equal(t, time.Minute, Duration("later", time.Minute))
	assert.Equal(t, time.Duration(0), Duration("0", time.Minute))
}
