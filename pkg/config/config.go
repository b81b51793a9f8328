// Package config loads the engine configuration from defaults, a config file, a secrets file,
// environment variables and command-line flags.
package config

import "time"

// Sequence backends
const (
	// SequenceBackendMongoDB keeps counters in the sequence database
	SequenceBackendMongoDB = "mongodb"
	// SequenceBackendRedis keeps counters in Redis
	SequenceBackendRedis = "redis"
)

// DefaultEnvPrefix prefixes every environment variable read by the loader.
const DefaultEnvPrefix = "VBENGINE"

// Config is the root configuration structure
type Config struct {
	Service       ServiceConfig       `mapstructure:"service" yaml:"service"`
	MongoDB       MongoDBConfig       `mapstructure:"mongodb" yaml:"mongodb"`
	Sequence      SequenceConfig      `mapstructure:"sequence" yaml:"sequence"`
	Log           LogConfig           `mapstructure:"log" yaml:"log"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// MongoDBConfig configures the connection and the engine defaults.
type MongoDBConfig struct {
	URL              string        `mapstructure:"url" yaml:"url"`
	Database         string        `mapstructure:"database" yaml:"database"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
	ResultsLimit     int           `mapstructure:"results_limit" yaml:"results_limit"`
	SequenceDatabase string        `mapstructure:"sequence_database" yaml:"sequence_database"`
}

// SequenceConfig selects where auto-increment counters live.
type SequenceConfig struct {
	Backend string              `mapstructure:"backend" yaml:"backend"` // mongodb, redis
	Redis   SequenceRedisConfig `mapstructure:"redis" yaml:"redis"`
}

// SequenceRedisConfig configures the Redis counter store.
type SequenceRedisConfig struct {
	URL              string        `mapstructure:"url" yaml:"url"`
	MaxConns         int           `mapstructure:"max_conns" yaml:"max_conns"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
	KeyPrefix        string        `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // json, text
}

// ObservabilityConfig configures metrics and tracing
type ObservabilityConfig struct {
	MetricsEnabled    bool    `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
	TracingEnabled    bool    `mapstructure:"tracing_enabled" yaml:"tracing_enabled"`
	TracingEndpoint   string  `mapstructure:"tracing_endpoint" yaml:"tracing_endpoint"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate" yaml:"tracing_sample_rate"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "vbengine",
			Environment: "development",
		},
		MongoDB: MongoDBConfig{
			URL:              "mongodb://localhost:27017",
			Database:         "vbengine",
			ConnectTimeout:   5 * time.Second,
			OperationTimeout: 5 * time.Second,
			ResultsLimit:     1000,
			SequenceDatabase: "vbenginesequence",
		},
		Sequence: SequenceConfig{
			Backend: SequenceBackendMongoDB,
			Redis: SequenceRedisConfig{
				MaxConns:         10,
				OperationTimeout: 5 * time.Second,
				KeyPrefix:        "vbengine:sequence:",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			MetricsEnabled:    true,
			TracingSampleRate: 1.0,
		},
	}
}
