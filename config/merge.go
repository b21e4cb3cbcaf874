package config

// mergeConfigs merges override configuration into base. Scalars in override
// win when set; sections merge field by field; the bins list is replaced
// wholesale; extension blocks merge by top-level key.
func mergeConfigs(base, override *Config) *Config {
	result := *base

	if override.Name != "" {
		result.Name = override.Name
	}
	if override.Version != "" {
		result.Version = override.Version
	}

	result.Server = mergeServer(base.Server, override.Server)
	result.Store = mergeStore(base.Store, override.Store)
	result.Notifier = mergeNotifier(base.Notifier, override.Notifier)
	result.Relays = mergeRelays(base.Relays, override.Relays)
	result.Sync = mergeSync(base.Sync, override.Sync)
	result.Classifier = mergeClassifier(base.Classifier, override.Classifier)

	if len(override.Bins) > 0 {
		result.Bins = append([]BinConfig(nil), override.Bins...)
	}

	if len(base.Extensions) > 0 || len(override.Extensions) > 0 {
		result.Extensions = make(map[string]interface{}, len(base.Extensions)+len(override.Extensions))
		for k, v := range base.Extensions {
			result.Extensions[k] = v
		}
		for k, v := range override.Extensions {
			result.Extensions[k] = v
		}
	}

	return &result
}

func pick(base, override string) string {
	if override != "" {
		return override
	}
	return base
}

func mergeServer(base, override *ServerConfig) *ServerConfig {
	if override == nil {
		return base
	}
	if base == nil {
		c := *override
		return &c
	}
	out := *base
	out.Addr = pick(base.Addr, override.Addr)
	out.Socket = pick(base.Socket, override.Socket)
	out.Heartbeat = pick(base.Heartbeat, override.Heartbeat)
	out.ReadTimeout = pick(base.ReadTimeout, override.ReadTimeout)
	out.WriteTimeout = pick(base.WriteTimeout, override.WriteTimeout)
	out.ShutdownTimeout = pick(base.ShutdownTimeout, override.ShutdownTimeout)
	if override.ConfigWatch != nil {
		out.ConfigWatch = override.ConfigWatch
	}
	if override.ConfigDebounceMs > 0 {
		out.ConfigDebounceMs = override.ConfigDebounceMs
	}
	return &out
}

func mergeStore(base, override *StoreConfig) *StoreConfig {
	if override == nil {
		return base
	}
	if base == nil {
		c := *override
		return &c
	}
	out := *base
	out.DBPath = pick(base.DBPath, override.DBPath)
	out.FlushInterval = pick(base.FlushInterval, override.FlushInterval)
	if override.Persist != nil {
		out.Persist = override.Persist
	}
	return &out
}

func mergeNotifier(base, override *NotifierConfig) *NotifierConfig {
	if override == nil {
		return base
	}
	if base == nil {
		c := *override
		return &c
	}
	out := *base
	if override.QueueSize > 0 {
		out.QueueSize = override.QueueSize
	}
	out.SendTimeout = pick(base.SendTimeout, override.SendTimeout)
	return &out
}

func mergeRelays(base, override *RelaysConfig) *RelaysConfig {
	if override == nil {
		return base
	}
	if base == nil {
		c := *override
		return &c
	}
	out := *base
	if n := override.NATS; n != nil {
		if base.NATS == nil {
			c := *n
			out.NATS = &c
		} else {
			merged := *base.NATS
			merged.Enabled = n.Enabled
			merged.URL = pick(merged.URL, n.URL)
			merged.Subject = pick(merged.Subject, n.Subject)
			merged.JetStream = merged.JetStream || n.JetStream
			merged.Timeout = pick(merged.Timeout, n.Timeout)
			out.NATS = &merged
		}
	}
	if m := override.MQTT; m != nil {
		if base.MQTT == nil {
			c := *m
			out.MQTT = &c
		} else {
			merged := *base.MQTT
			merged.Enabled = m.Enabled
			merged.Broker = pick(merged.Broker, m.Broker)
			merged.Topic = pick(merged.Topic, m.Topic)
			merged.ClientID = pick(merged.ClientID, m.ClientID)
			merged.Timeout = pick(merged.Timeout, m.Timeout)
			out.MQTT = &merged
		}
	}
	return &out
}

func mergeSync(base, override *SyncConfig) *SyncConfig {
	if override == nil {
		return base
	}
	if base == nil {
		c := *override
		return &c
	}
	out := *base
	out.ServerURL = pick(base.ServerURL, override.ServerURL)
	out.Transport = pick(base.Transport, override.Transport)
	out.SnapshotTimeout = pick(base.SnapshotTimeout, override.SnapshotTimeout)
	out.ResyncInterval = pick(base.ResyncInterval, override.ResyncInterval)
	out.HeartbeatTimeout = pick(base.HeartbeatTimeout, override.HeartbeatTimeout)
	out.BackoffInitial = pick(base.BackoffInitial, override.BackoffInitial)
	out.BackoffMax = pick(base.BackoffMax, override.BackoffMax)
	return &out
}

func mergeClassifier(base, override *ClassifierConfig) *ClassifierConfig {
	if override == nil {
		return base
	}
	if base == nil {
		c := *override
		return &c
	}
	out := *base
	if override.Threshold != 0 {
		out.Threshold = override.Threshold
	}
	if len(override.Labels) > 0 {
		out.Labels = make(map[string]string, len(base.Labels)+len(override.Labels))
		for k, v := range base.Labels {
			out.Labels[k] = v
		}
		for k, v := range override.Labels {
			out.Labels[k] = v
		}
	}
	return &out
}
