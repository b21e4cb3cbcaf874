package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/grovetools/wastenet/pkg/models"
)

//go:generate go run ../tools/schema-generator ../schema/wastenet.schema.json

// ServerConfig configures the daemon's HTTP listener.
type ServerConfig struct {
	Addr             string `yaml:"addr,omitempty" toml:"addr,omitempty" json:"addr,omitempty" jsonschema:"description=TCP listen address (default: 127.0.0.1:5001)"`
	Socket           string `yaml:"socket,omitempty" toml:"socket,omitempty" json:"socket,omitempty" jsonschema:"description=Unix socket path; 'none' disables the socket (default: runtime dir)"`
	Heartbeat        string `yaml:"heartbeat,omitempty" toml:"heartbeat,omitempty" json:"heartbeat,omitempty" jsonschema:"description=Interval between stream keep-alives (default: 15s)"`
	ReadTimeout      string `yaml:"read_timeout,omitempty" toml:"read_timeout,omitempty" json:"read_timeout,omitempty" jsonschema:"description=HTTP read timeout (default: 10s)"`
	WriteTimeout     string `yaml:"write_timeout,omitempty" toml:"write_timeout,omitempty" json:"write_timeout,omitempty" jsonschema:"description=HTTP write timeout for non-streaming routes (default: 10s)"`
	ShutdownTimeout  string `yaml:"shutdown_timeout,omitempty" toml:"shutdown_timeout,omitempty" json:"shutdown_timeout,omitempty" jsonschema:"description=Grace period for in-flight requests on stop (default: 5s)"`
	ConfigWatch      *bool  `yaml:"config_watch,omitempty" toml:"config_watch,omitempty" json:"config_watch,omitempty" jsonschema:"description=Re-provision bins when wastenet.yml changes (default: true)"`
	ConfigDebounceMs int    `yaml:"config_debounce_ms,omitempty" toml:"config_debounce_ms,omitempty" json:"config_debounce_ms,omitempty" jsonschema:"description=Debounce window for rapid config changes in milliseconds (default: 100)"`
}

// StoreConfig configures bin persistence.
type StoreConfig struct {
	DBPath        string `yaml:"db_path,omitempty" toml:"db_path,omitempty" json:"db_path,omitempty" jsonschema:"description=SQLite database path (default: data dir/bins.db)"`
	Persist       *bool  `yaml:"persist,omitempty" toml:"persist,omitempty" json:"persist,omitempty" jsonschema:"description=Write bin state to the database (default: true)"`
	FlushInterval string `yaml:"flush_interval,omitempty" toml:"flush_interval,omitempty" json:"flush_interval,omitempty" jsonschema:"description=Maximum delay before a mutation is written (default: 1s)"`
}

// NotifierConfig configures observer fan-out.
type NotifierConfig struct {
	QueueSize   int    `yaml:"queue_size,omitempty" toml:"queue_size,omitempty" json:"queue_size,omitempty" jsonschema:"minimum=1,description=Per-observer event queue length (default: 64)"`
	SendTimeout string `yaml:"send_timeout,omitempty" toml:"send_timeout,omitempty" json:"send_timeout,omitempty" jsonschema:"description=Per-write deadline for observer transports (default: 2s)"`
}

// NATSRelayConfig forwards status changes to a NATS subject.
type NATSRelayConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled" json:"enabled,omitempty" jsonschema:"description=Enable the NATS relay"`
	URL       string `yaml:"url,omitempty" toml:"url,omitempty" json:"url,omitempty" jsonschema:"description=NATS server URL (default: nats://127.0.0.1:4222)"`
	Subject   string `yaml:"subject,omitempty" toml:"subject,omitempty" json:"subject,omitempty" jsonschema:"description=Subject prefix; events go to <prefix>.<binId>.status"`
	JetStream bool   `yaml:"jetstream,omitempty" toml:"jetstream,omitempty" json:"jetstream,omitempty" jsonschema:"description=Publish through JetStream instead of core NATS"`
	Timeout   string `yaml:"timeout,omitempty" toml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"description=Publish timeout (default: 2s)"`
}

// MQTTRelayConfig forwards status changes to an MQTT broker.
type MQTTRelayConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled" json:"enabled,omitempty" jsonschema:"description=Enable the MQTT relay"`
	Broker   string `yaml:"broker,omitempty" toml:"broker,omitempty" json:"broker,omitempty" jsonschema:"description=Broker host:port (default: 127.0.0.1:1883)"`
	Topic    string `yaml:"topic,omitempty" toml:"topic,omitempty" json:"topic,omitempty" jsonschema:"description=Topic prefix; events go to <prefix>/<binId>/status"`
	ClientID string `yaml:"client_id,omitempty" toml:"client_id,omitempty" json:"client_id,omitempty" jsonschema:"description=MQTT client identifier (default: wastenetd)"`
	Timeout  string `yaml:"timeout,omitempty" toml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"description=Connect and publish timeout (default: 5s)"`
}

// RelaysConfig groups the broker relays.
type RelaysConfig struct {
	NATS *NATSRelayConfig `yaml:"nats,omitempty" toml:"nats,omitempty" json:"nats,omitempty" jsonschema:"description=NATS relay"`
	MQTT *MQTTRelayConfig `yaml:"mqtt,omitempty" toml:"mqtt,omitempty" json:"mqtt,omitempty" jsonschema:"description=MQTT relay"`
}

// SyncConfig configures observers that reconcile against the daemon.
type SyncConfig struct {
	ServerURL        string `yaml:"server_url,omitempty" toml:"server_url,omitempty" json:"server_url,omitempty" jsonschema:"description=Daemon base URL (default: http://127.0.0.1:5001)"`
	Transport        string `yaml:"transport,omitempty" toml:"transport,omitempty" json:"transport,omitempty" jsonschema:"enum=ws,enum=sse,description=Event stream transport (default: sse)"`
	SnapshotTimeout  string `yaml:"snapshot_timeout,omitempty" toml:"snapshot_timeout,omitempty" json:"snapshot_timeout,omitempty" jsonschema:"description=Snapshot fetch timeout (default: 5s)"`
	ResyncInterval   string `yaml:"resync_interval,omitempty" toml:"resync_interval,omitempty" json:"resync_interval,omitempty" jsonschema:"description=Periodic snapshot refresh; 0 disables (default: 60s)"`
	HeartbeatTimeout string `yaml:"heartbeat_timeout,omitempty" toml:"heartbeat_timeout,omitempty" json:"heartbeat_timeout,omitempty" jsonschema:"description=Silence after which the stream is considered dead (default: 45s)"`
	BackoffInitial   string `yaml:"backoff_initial,omitempty" toml:"backoff_initial,omitempty" json:"backoff_initial,omitempty" jsonschema:"description=First reconnect delay (default: 500ms)"`
	BackoffMax       string `yaml:"backoff_max,omitempty" toml:"backoff_max,omitempty" json:"backoff_max,omitempty" jsonschema:"description=Reconnect delay cap (default: 30s)"`
}

// ClassifierConfig maps detector labels to waste categories.
type ClassifierConfig struct {
	Threshold float64           `yaml:"threshold,omitempty" toml:"threshold,omitempty" json:"threshold,omitempty" jsonschema:"minimum=0,maximum=1,description=Minimum detection score (default: 0.60)"`
	Labels    map[string]string `yaml:"labels,omitempty" toml:"labels,omitempty" json:"labels,omitempty" jsonschema:"description=Extra label to category mappings; merged over the built-in map"`
}

// BinConfig declares a bin to provision.
type BinConfig struct {
	ID        string         `yaml:"id" toml:"id" json:"id" jsonschema:"required,description=Stable bin identifier"`
	Longitude float64        `yaml:"longitude" toml:"longitude" json:"longitude" jsonschema:"minimum=-180,maximum=180"`
	Latitude  float64        `yaml:"latitude" toml:"latitude" json:"latitude" jsonschema:"minimum=-90,maximum=90"`
	Capacity  int            `yaml:"capacity,omitempty" toml:"capacity,omitempty" json:"capacity,omitempty" jsonschema:"minimum=1,description=Item capacity (default: 10)"`
	Counts    map[string]int `yaml:"counts,omitempty" toml:"counts,omitempty" json:"counts,omitempty" jsonschema:"description=Initial per-category counts"`
}

// Config represents the wastenet.yml configuration
type Config struct {
	Name       string            `yaml:"name,omitempty" toml:"name,omitempty" json:"name,omitempty" jsonschema:"description=Name of this deployment"`
	Version    string            `yaml:"version" toml:"version" json:"version,omitempty" jsonschema:"description=Configuration version (e.g. 1.0)"`
	Server     *ServerConfig     `yaml:"server,omitempty" toml:"server,omitempty" json:"server,omitempty" jsonschema:"description=Daemon HTTP server"`
	Store      *StoreConfig      `yaml:"store,omitempty" toml:"store,omitempty" json:"store,omitempty" jsonschema:"description=Bin persistence"`
	Notifier   *NotifierConfig   `yaml:"notifier,omitempty" toml:"notifier,omitempty" json:"notifier,omitempty" jsonschema:"description=Observer fan-out"`
	Relays     *RelaysConfig     `yaml:"relays,omitempty" toml:"relays,omitempty" json:"relays,omitempty" jsonschema:"description=Broker relays for status changes"`
	Sync       *SyncConfig       `yaml:"sync,omitempty" toml:"sync,omitempty" json:"sync,omitempty" jsonschema:"description=Observer reconciliation"`
	Classifier *ClassifierConfig `yaml:"classifier,omitempty" toml:"classifier,omitempty" json:"classifier,omitempty" jsonschema:"description=Detector label mapping"`
	Bins       []BinConfig       `yaml:"bins,omitempty" toml:"bins,omitempty" json:"bins,omitempty" jsonschema:"description=Bins to provision at startup"`

	// Extensions captures all other top-level keys for extensibility.
	Extensions map[string]interface{} `yaml:",inline" toml:"-" json:"-" jsonschema:"-"`
}

// SetDefaults fills every section so callers never nil-check.
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:5001"
	}
	if c.Server.Heartbeat == "" {
		c.Server.Heartbeat = "15s"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "10s"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "5s"
	}
	if c.Server.ConfigWatch == nil {
		watch := true
		c.Server.ConfigWatch = &watch
	}
	if c.Server.ConfigDebounceMs <= 0 {
		c.Server.ConfigDebounceMs = 100
	}

	if c.Store == nil {
		c.Store = &StoreConfig{}
	}
	if c.Store.Persist == nil {
		persist := true
		c.Store.Persist = &persist
	}
	if c.Store.FlushInterval == "" {
		c.Store.FlushInterval = "1s"
	}

	if c.Notifier == nil {
		c.Notifier = &NotifierConfig{}
	}
	if c.Notifier.QueueSize <= 0 {
		c.Notifier.QueueSize = 64
	}
	if c.Notifier.SendTimeout == "" {
		c.Notifier.SendTimeout = "2s"
	}

	if c.Relays == nil {
		c.Relays = &RelaysConfig{}
	}
	if c.Relays.NATS == nil {
		c.Relays.NATS = &NATSRelayConfig{}
	}
	if c.Relays.NATS.URL == "" {
		c.Relays.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.Relays.NATS.Subject == "" {
		c.Relays.NATS.Subject = "wastenet.bins"
	}
	if c.Relays.NATS.Timeout == "" {
		c.Relays.NATS.Timeout = "2s"
	}
	if c.Relays.MQTT == nil {
		c.Relays.MQTT = &MQTTRelayConfig{}
	}
	if c.Relays.MQTT.Broker == "" {
		c.Relays.MQTT.Broker = "127.0.0.1:1883"
	}
	if c.Relays.MQTT.Topic == "" {
		c.Relays.MQTT.Topic = "wastenet/bins"
	}
	if c.Relays.MQTT.ClientID == "" {
		c.Relays.MQTT.ClientID = "wastenetd"
	}
	if c.Relays.MQTT.Timeout == "" {
		c.Relays.MQTT.Timeout = "5s"
	}

	if c.Sync == nil {
		c.Sync = &SyncConfig{}
	}
	if c.Sync.ServerURL == "" {
		c.Sync.ServerURL = "http://" + c.Server.Addr
	}
	if c.Sync.Transport == "" {
		c.Sync.Transport = "sse"
	}
	if c.Sync.SnapshotTimeout == "" {
		c.Sync.SnapshotTimeout = "5s"
	}
	if c.Sync.ResyncInterval == "" {
		c.Sync.ResyncInterval = "60s"
	}
	if c.Sync.HeartbeatTimeout == "" {
		c.Sync.HeartbeatTimeout = "45s"
	}
	if c.Sync.BackoffInitial == "" {
		c.Sync.BackoffInitial = "500ms"
	}
	if c.Sync.BackoffMax == "" {
		c.Sync.BackoffMax = "30s"
	}

	if c.Classifier == nil {
		c.Classifier = &ClassifierConfig{}
	}
	if c.Classifier.Threshold == 0 {
		c.Classifier.Threshold = 0.60
	}
}

// Duration parses one of the duration strings in the config, returning def
// for empty or malformed values. Validate rejects malformed values, so the
// fallback only applies to configs that skipped validation.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// Seeds converts the configured bins to provisioning seeds.
func (c *Config) Seeds() []models.BinSeed {
	seeds := make([]models.BinSeed, 0, len(c.Bins))
	for _, b := range c.Bins {
		counts := make(map[string]int, len(b.Counts))
		for k, v := range b.Counts {
			counts[k] = v
		}
		seeds = append(seeds, models.BinSeed{
			ID:       b.ID,
			Position: models.Position{Longitude: b.Longitude, Latitude: b.Latitude},
			Capacity: b.Capacity,
			Counts:   counts,
		})
	}
	return seeds
}

// UnmarshalExtension decodes a specific extension's configuration from the
// loaded wastenet.yml into the provided target struct. The target must be a
// pointer.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		// It's not an error if the key doesn't exist.
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}

// ConfigSource identifies the origin of a configuration value.
type ConfigSource string

const (
	SourceDefault  ConfigSource = "default"
	SourceGlobal   ConfigSource = "global"
	SourceProject  ConfigSource = "project"
	SourceOverride ConfigSource = "override"
)

// OverrideSource holds a raw configuration from an override file and its path.
type OverrideSource struct {
	Path   string
	Config *Config
}

// LayeredConfig holds the raw configuration from each source file,
// as well as the final merged configuration, for analysis purposes.
type LayeredConfig struct {
	Default   *Config                 // Config with only default values applied.
	Global    *Config                 // Raw config from the global file.
	Project   *Config                 // Raw config from the project file.
	Overrides []OverrideSource        // Raw configs from override files, in order of application.
	Final     *Config                 // The fully merged and validated config.
	FilePaths map[ConfigSource]string // Maps sources to their file paths.
}
