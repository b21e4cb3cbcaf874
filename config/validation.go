package config

import (
	"fmt"
	"time"

	"github.com/grovetools/wastenet/errors"
)

// Validate checks the semantics the schema cannot express. It expects
// SetDefaults to have run.
func (c *Config) Validate() error {
	durations := map[string]string{
		"server.heartbeat":        c.Server.Heartbeat,
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"store.flush_interval":    c.Store.FlushInterval,
		"notifier.send_timeout":   c.Notifier.SendTimeout,
		"relays.nats.timeout":     c.Relays.NATS.Timeout,
		"relays.mqtt.timeout":     c.Relays.MQTT.Timeout,
		"sync.snapshot_timeout":   c.Sync.SnapshotTimeout,
		"sync.resync_interval":    c.Sync.ResyncInterval,
		"sync.heartbeat_timeout":  c.Sync.HeartbeatTimeout,
		"sync.backoff_initial":    c.Sync.BackoffInitial,
		"sync.backoff_max":        c.Sync.BackoffMax,
	}
	for field, value := range durations {
		if err := validateDuration(field, value); err != nil {
			return err
		}
	}

	if Duration(c.Server.Heartbeat, 0) <= 0 {
		return errors.New(errors.ErrCodeConfigValidation, "server.heartbeat must be positive").
			WithDetail("field", "server.heartbeat")
	}
	if Duration(c.Sync.HeartbeatTimeout, 0) <= Duration(c.Server.Heartbeat, 0) {
		return errors.New(errors.ErrCodeConfigValidation, "sync.heartbeat_timeout must exceed server.heartbeat").
			WithDetail("field", "sync.heartbeat_timeout")
	}
	if Duration(c.Sync.BackoffMax, 0) < Duration(c.Sync.BackoffInitial, 0) {
		return errors.New(errors.ErrCodeConfigValidation, "sync.backoff_max must not be below sync.backoff_initial").
			WithDetail("field", "sync.backoff_max")
	}

	switch c.Sync.Transport {
	case "sse", "ws":
	default:
		return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("unknown sync.transport %q (want sse or ws)", c.Sync.Transport)).
			WithDetail("field", "sync.transport")
	}

	if c.Classifier.Threshold < 0 || c.Classifier.Threshold > 1 {
		return errors.New(errors.ErrCodeConfigValidation, "classifier.threshold must be within [0, 1]").
			WithDetail("field", "classifier.threshold")
	}

	seen := make(map[string]bool, len(c.Bins))
	for i, b := range c.Bins {
		if err := validateBin(b); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigValidation, fmt.Sprintf("invalid bin at index %d", i)).
				WithDetail("binId", b.ID)
		}
		if seen[b.ID] {
			return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("duplicate bin id '%s'", b.ID)).
				WithDetail("binId", b.ID)
		}
		seen[b.ID] = true
	}

	return nil
}

func validateDuration(field, value string) error {
	if _, err := time.ParseDuration(value); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, fmt.Sprintf("%s is not a duration: %q", field, value)).
			WithDetail("field", field)
	}
	return nil
}

func validateBin(b BinConfig) error {
	if b.ID == "" {
		return fmt.Errorf("id is required")
	}
	if b.Capacity < 0 {
		return fmt.Errorf("capacity must be positive")
	}
	if b.Longitude < -180 || b.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", b.Longitude)
	}
	if b.Latitude < -90 || b.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", b.Latitude)
	}
	for category, n := range b.Counts {
		if category == "" {
			return fmt.Errorf("empty category name")
		}
		if n < 0 {
			return fmt.Errorf("negative count for %s", category)
		}
	}
	return nil
}
