package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHierarchicalMerging tests the three-level configuration merge:
// global -> project -> override
func TestHierarchicalMerging(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, "config", "wastenet.yml"), `
name: fleet
server:
  addr: 0.0.0.0:5001
  heartbeat: 10s
notifier:
  queue_size: 128
relays:
  nats:
    enabled: true
    url: nats://global:4222
logging:
  level: warn
`)

	project := t.TempDir()
	writeFile(t, filepath.Join(project, "wastenet.yml"), `
server:
  heartbeat: 5s
relays:
  nats:
    enabled: true
    subject: city.bins
bins:
  - id: BIN-P
    capacity: 2
`)
	writeFile(t, filepath.Join(project, "wastenet.override.yml"), `
notifier:
  queue_size: 8
logging:
  level: debug
`)

	cfg, err := LoadFrom(project)
	require.NoError(t, err)

	assert.Equal(t, "fleet", cfg.Name)
	assert.Equal(t, "0.0.0.0:5001", cfg.Server.Addr)
	assert.Equal(t, "5s", cfg.Server.Heartbeat)
	assert.Equal(t, 8, cfg.Notifier.QueueSize)
	assert.Equal(t, "nats://global:4222", cfg.Relays.NATS.URL)
	assert.Equal(t, "city.bins", cfg.Relays.NATS.Subject)
	require.Len(t, cfg.Bins, 1)
	assert.Equal(t, "BIN-P", cfg.Bins[0].ID)

	var logCfg struct {
		Level string `yaml:"level"`
	}
	require.NoError(t, cfg.UnmarshalExtension("logging", &logCfg))
	assert.Equal(t, "debug", logCfg.Level)
}

func TestLoadLayered(t *testing.T) {
	home := isolate(t)
	globalPath := filepath.Join(home, "config", "wastenet.yml")
	writeFile(t, globalPath, "server:\n  addr: 0.0.0.0:5001\n")

	project := t.TempDir()
	projectPath := filepath.Join(project, "wastenet.yml")
	writeFile(t, projectPath, "sync:\n  transport: ws\n")
	overridePath := filepath.Join(project, ".wastenet.override.yml")
	writeFile(t, overridePath, "notifier:\n  queue_size: 4\n")

	layers, err := LoadLayered(project)
	require.NoError(t, err)

	assert.Equal(t, globalPath, layers.FilePaths[SourceGlobal])
	assert.Equal(t, projectPath, layers.FilePaths[SourceProject])
	require.Len(t, layers.Overrides, 1)
	assert.Equal(t, overridePath, layers.Overrides[0].Path)

	assert.Equal(t, "0.0.0.0:5001", layers.Global.Server.Addr)
	assert.Nil(t, layers.Project.Server)
	assert.Equal(t, "127.0.0.1:5001", layers.Default.Server.Addr)

	assert.Equal(t, "0.0.0.0:5001", layers.Final.Server.Addr)
	assert.Equal(t, "ws", layers.Final.Sync.Transport)
	assert.Equal(t, 4, layers.Final.Notifier.QueueSize)
}

func TestMergeClassifierLabels(t *testing.T) {
	base := &Config{Classifier: &ClassifierConfig{Threshold: 0.5, Labels: map[string]string{"can": "metal"}}}
	override := &Config{Classifier: &ClassifierConfig{Labels: map[string]string{"jar": "glass"}}}

	merged := mergeConfigs(base, override)
	assert.Equal(t, 0.5, merged.Classifier.Threshold)
	assert.Equal(t, map[string]string{"can": "metal", "jar": "glass"}, merged.Classifier.Labels)
	assert.Equal(t, map[string]string{"can": "metal"}, base.Classifier.Labels)
}
