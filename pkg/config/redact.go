package config

import (
	"fmt"
	"net/url"

	"gopkg.in/yaml.v3"
)

const redactedValue = "***"

// YAML renders the configuration as YAML.
func (c *Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(out), nil
}

// Redacted renders the configuration as YAML with secrets masked. Values that came from the
// secrets file are replaced, and passwords embedded in connection URLs are always replaced with xxxxx.
func (c *Config) Redacted(secrets *Config) (string, error) {
	masked := *c
	if secrets != nil {
		if secrets.MongoDB.URL != "" {
			masked.MongoDB.URL = redactedValue
		}
		if secrets.Sequence.Redis.URL != "" {
			masked.Sequence.Redis.URL = redactedValue
		}
		if secrets.Observability.TracingEndpoint != "" {
			masked.Observability.TracingEndpoint = redactedValue
		}
	}
	masked.MongoDB.URL = redactURL(masked.MongoDB.URL)
	masked.Sequence.Redis.URL = redactURL(masked.Sequence.Redis.URL)
	return masked.YAML()
}

func redactURL(raw string) string {
	if raw == "" || raw == redactedValue {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
