package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"mongo-url":        "mongodb.url",
	"database":         "mongodb.database",
	"sequence-backend": "sequence.backend",
	"redis-url":        "sequence.redis.url",
	"log-level":        "log.level",
	"log-format":       "log.format",
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
	flags      *pflag.FlagSet
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (defaults to VBENGINE)
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// WithFlags lets changed flags of the set override every other source.
func (l *ViperLoader) WithFlags(flags *pflag.FlagSet) *ViperLoader {
	l.flags = flags
	return l
}

// ConfigFile returns the configuration file path, empty when none was given.
func (l *ViperLoader) ConfigFile() string { return l.configFile }

// Load loads configuration with precedence: flags > ENV > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	cfg, _, err := l.load(false)
	return cfg, err
}

// LoadWithSecrets loads configuration with separate secrets file support.
// Precedence: flags > ENV > secrets file > config file > defaults
//
// The secrets file is optional and discovered in this order:
// - <ENV_PREFIX>_SECRETS_FILE
// - secrets.<ext> next to the config file
// - secrets.yaml (or .yml, .json, .toml) in the working directory
//
// The second result holds only the values read from the secrets file, for Redacted.
func (l *ViperLoader) LoadWithSecrets() (*Config, *Config, error) {
	return l.load(true)
}

func (l *ViperLoader) load(withSecrets bool) (*Config, *Config, error) {
	v := viper.New()
	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	var secrets *Config
	if withSecrets {
		secretsFile, err := l.discoverSecretsFile()
		if err != nil {
			return nil, nil, err
		}
		if secretsFile != "" {
			sv := viper.New()
			sv.SetConfigFile(secretsFile)
			if err := sv.ReadInConfig(); err != nil {
				return nil, nil, fmt.Errorf("failed to read secrets file %s: %w", secretsFile, err)
			}
			secrets = &Config{}
			if err := sv.Unmarshal(secrets); err != nil {
				return nil, nil, fmt.Errorf("failed to unmarshal secrets file %s: %w", secretsFile, err)
			}
			if err := v.MergeConfigMap(sv.AllSettings()); err != nil {
				return nil, nil, fmt.Errorf("failed to merge secrets: %w", err)
			}
		}
	}

	l.bindEnvVars(v)
	if err := l.bindFlags(v); err != nil {
		return nil, nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := l.Validate(&cfg); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, secrets, nil
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	// MongoDB
	v.BindEnv("mongodb.url", l.prefixedEnv("MONGODB_URL"), l.prefixedEnv("MONGO_URL"))
	v.BindEnv("mongodb.database", l.prefixedEnv("MONGODB_DATABASE"))
	v.BindEnv("mongodb.connect_timeout", l.prefixedEnv("MONGODB_CONNECT_TIMEOUT"))
	v.BindEnv("mongodb.operation_timeout", l.prefixedEnv("MONGODB_OPERATION_TIMEOUT"))
	v.BindEnv("mongodb.results_limit", l.prefixedEnv("MONGODB_RESULTS_LIMIT"))
	v.BindEnv("mongodb.sequence_database", l.prefixedEnv("MONGODB_SEQUENCE_DATABASE"))

	// Sequence
	v.BindEnv("sequence.backend", l.prefixedEnv("SEQUENCE_BACKEND"))
	v.BindEnv("sequence.redis.url", l.prefixedEnv("SEQUENCE_REDIS_URL"))
	v.BindEnv("sequence.redis.max_conns", l.prefixedEnv("SEQUENCE_REDIS_MAX_CONNS"))
	v.BindEnv("sequence.redis.operation_timeout", l.prefixedEnv("SEQUENCE_REDIS_OPERATION_TIMEOUT"))
	v.BindEnv("sequence.redis.key_prefix", l.prefixedEnv("SEQUENCE_REDIS_KEY_PREFIX"))

	// Log
	v.BindEnv("log.level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("log.format", l.prefixedEnv("LOG_FORMAT"))

	// Observability
	v.BindEnv("observability.metrics_enabled", l.prefixedEnv("OBSERVABILITY_METRICS_ENABLED"))
	v.BindEnv("observability.tracing_enabled", l.prefixedEnv("OBSERVABILITY_TRACING_ENABLED"))
	v.BindEnv("observability.tracing_endpoint", l.prefixedEnv("OBSERVABILITY_TRACING_ENDPOINT"))
	v.BindEnv("observability.tracing_sample_rate", l.prefixedEnv("OBSERVABILITY_TRACING_SAMPLE_RATE"))
}

func (l *ViperLoader) bindFlags(v *viper.Viper) error {
	if l.flags == nil {
		return nil
	}
	for name, key := range flagKeys {
		flag := l.flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), suffix)
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("mongodb.url", cfg.MongoDB.URL)
	v.SetDefault("mongodb.database", cfg.MongoDB.Database)
	v.SetDefault("mongodb.connect_timeout", cfg.MongoDB.ConnectTimeout)
	v.SetDefault("mongodb.operation_timeout", cfg.MongoDB.OperationTimeout)
	v.SetDefault("mongodb.results_limit", cfg.MongoDB.ResultsLimit)
	v.SetDefault("mongodb.sequence_database", cfg.MongoDB.SequenceDatabase)

	v.SetDefault("sequence.backend", cfg.Sequence.Backend)
	v.SetDefault("sequence.redis.url", cfg.Sequence.Redis.URL)
	v.SetDefault("sequence.redis.max_conns", cfg.Sequence.Redis.MaxConns)
	v.SetDefault("sequence.redis.operation_timeout", cfg.Sequence.Redis.OperationTimeout)
	v.SetDefault("sequence.redis.key_prefix", cfg.Sequence.Redis.KeyPrefix)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)

	v.SetDefault("observability.metrics_enabled", cfg.Observability.MetricsEnabled)
	v.SetDefault("observability.tracing_enabled", cfg.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_endpoint", cfg.Observability.TracingEndpoint)
	v.SetDefault("observability.tracing_sample_rate", cfg.Observability.TracingSampleRate)
}

// Validate validates the configuration and returns every violation found.
func (l *ViperLoader) Validate(cfg *Config) error {
	return cfg.Validate()
}

// discoverSecretsFile returns the secrets file to merge, or "" when there is none.
// An explicit but unusable <ENV_PREFIX>_SECRETS_FILE is an error.
func (l *ViperLoader) discoverSecretsFile() (string, error) {
	secretsEnv := l.prefixedEnv("SECRETS_FILE")
	if raw, ok := os.LookupEnv(secretsEnv); ok {
		secretsFile := strings.TrimSpace(raw)
		if secretsFile == "" {
			return "", fmt.Errorf("%s is set but empty", secretsEnv)
		}
		info, err := os.Stat(secretsFile)
		if err != nil {
			return "", fmt.Errorf("%s points to an inaccessible file %s: %w", secretsEnv, secretsFile, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("%s must point to a file, got directory %s", secretsEnv, secretsFile)
		}
		return secretsFile, nil
	}

	if l.configFile != "" {
		candidate := filepath.Join(filepath.Dir(l.configFile), "secrets"+filepath.Ext(l.configFile))
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	for _, ext := range []string{".yaml", ".yml", ".json", ".toml"} {
		candidate := "secrets" + ext
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", nil
}

// contains checks if a string slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// Validate checks the configuration and joins every violation into one error.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.MongoDB.URL) == "" {
		errs = append(errs, errors.New("mongodb.url is required"))
	} else if u, err := url.Parse(c.MongoDB.URL); err != nil || (u.Scheme != "mongodb" && u.Scheme != "mongodb+srv") {
		errs = append(errs, fmt.Errorf("invalid mongodb.url: scheme must be mongodb or mongodb+srv"))
	}
	if strings.TrimSpace(c.MongoDB.Database) == "" {
		errs = append(errs, errors.New("mongodb.database is required"))
	}
	if strings.TrimSpace(c.MongoDB.SequenceDatabase) == "" {
		errs = append(errs, errors.New("mongodb.sequence_database is required"))
	} else if c.MongoDB.SequenceDatabase == c.MongoDB.Database {
		errs = append(errs, fmt.Errorf("mongodb.database cannot be the sequence database %s", c.MongoDB.SequenceDatabase))
	}
	if c.MongoDB.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("mongodb.connect_timeout must be positive"))
	}
	if c.MongoDB.OperationTimeout <= 0 {
		errs = append(errs, errors.New("mongodb.operation_timeout must be positive"))
	}
	if c.MongoDB.ResultsLimit <= 0 {
		errs = append(errs, fmt.Errorf("invalid mongodb.results_limit: %d (must be positive)", c.MongoDB.ResultsLimit))
	}

	validBackends := []string{SequenceBackendMongoDB, SequenceBackendRedis}
	if !contains(validBackends, c.Sequence.Backend) {
		errs = append(errs, fmt.Errorf("invalid sequence.backend: %s (must be one of: %v)", c.Sequence.Backend, validBackends))
	}
	if c.Sequence.Backend == SequenceBackendRedis && strings.TrimSpace(c.Sequence.Redis.URL) == "" {
		errs = append(errs, errors.New("sequence.redis.url is required when sequence.backend is redis"))
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("invalid log.level: %s (must be one of: %v)", c.Log.Level, validLogLevels))
	}
	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("invalid log.format: %s (must be one of: %v)", c.Log.Format, validLogFormats))
	}

	if c.Observability.TracingEnabled && c.Observability.TracingEndpoint == "" {
		errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
	}
	if c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1 {
		errs = append(errs, fmt.Errorf("invalid observability.tracing_sample_rate: %v (must be between 0 and 1)", c.Observability.TracingSampleRate))
	}

	return errors.Join(errs...)
}
