package config

import (
	"context"
	"time"
)

// Config represents the top-level worker and API configuration.
type Config struct {
	Kafka      KafkaConfig      `yaml:"kafka"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
}

// KafkaConfig holds the broker connection and topic layout.
type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	JobRequestsTopic  string   `yaml:"job_requests_topic"`
	JobLifecycleTopic string   `yaml:"job_lifecycle_topic"`
	GroupID           string   `yaml:"group_id"`
	ClientID          string   `yaml:"client_id"`
}

// PostgresConfig holds the database connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// ProviderEndpoint is one external collaborator's connection settings. An
// empty BaseURL means the collaborator is unconfigured.
type ProviderEndpoint struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// ProvidersConfig holds the external collaborator endpoints plus provider
// quota tuning. When Search is unconfigured the worker serves demo results.
type ProvidersConfig struct {
	Search      ProviderEndpoint `yaml:"search"`
	FaceMatcher ProviderEndpoint `yaml:"face_matcher"`
	Directory   ProviderEndpoint `yaml:"directory"`

	// SearchRPS caps search provider queries per second. Zero uses the
	// default of 1.
	SearchRPS float64 `yaml:"search_rps,omitempty"`
	// SearchBurst is the rate limiter burst. Zero uses the default of 1.
	SearchBurst int `yaml:"search_burst,omitempty"`
}

// DispatcherConfig tunes the delivery retry budget. Zero values fall back to
// the pipeline defaults of 3 attempts and a 5s initial backoff.
type DispatcherConfig struct {
	MaxAttempts    int           `yaml:"max_attempts,omitempty"`
	InitialBackoff time.Duration `yaml:"initial_backoff,omitempty"`
}

// Loader provides configuration loading capabilities. It abstracts the source
// of configuration to allow for different implementations like files,
// environment variables, or remote configuration services.
type Loader interface {
	// Load retrieves and parses the configuration from the underlying source.
	// It returns the parsed configuration or an error if loading fails.
	Load(ctx context.Context) (*Config, error)
}
