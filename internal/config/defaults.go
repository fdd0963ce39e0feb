package config

import beacon "github.com/aviamasters/beacon-go"

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			Disabled:           false,
			BaseURL:            beacon.DefaultBaseURL,
			APIKey:             "",
			APIKeyHeader:       beacon.DefaultAPIKeyHeader,
			FallbackDocumentID: "",
		},
		Identity: IdentityConfig{
			Site:          beacon.DefaultSite,
			Domain:        beacon.DefaultDomain,
			ProjectPrefix: beacon.DefaultProjectPrefix,
			Namespace:     true,
		},
		Geo: GeoConfig{
			Endpoint:       beacon.DefaultGeoEndpoint,
			TimeoutSeconds: 5,
			CacheTTLHours:  24,
		},
		Sync: SyncConfig{
			IntervalSeconds:     120,
			InitialDelaySeconds: 10,
			PushTimeoutSeconds:  15,
		},
		Retention: RetentionConfig{
			MaxLocalEvents:   beacon.DefaultMaxLocalEvents,
			MaxRemoteEvents:  beacon.DefaultMaxRemoteEvents,
			MaxRetryEntries:  beacon.DefaultMaxRetryEntries,
			MaxRetryAttempts: beacon.DefaultMaxRetryAttempts,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "~/.config/beacon/beacon.db",
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		Docstore: DocstoreConfig{
			Host:   "127.0.0.1",
			Port:   8722,
			APIKey: "",
		},
	}
}
