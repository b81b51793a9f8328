package config

import (
	"strings"
	"testing"
)

func TestConfigValidate_Rules(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "mongodb url required",
			mutate:  func(c *Config) { c.MongoDB.URL = "" },
			wantErr: "mongodb.url is required",
		},
		{
			name:    "mongodb url scheme",
			mutate:  func(c *Config) { c.MongoDB.URL = "postgres://localhost" },
			wantErr: "invalid mongodb.url",
		},
		{
			name:    "srv scheme accepted",
			mutate:  func(c *Config) { c.MongoDB.URL = "mongodb+srv://cluster.example.com" },
			wantErr: "",
		},
		{
			name:    "database cannot be the sequence database",
			mutate:  func(c *Config) { c.MongoDB.Database = "vbenginesequence" },
			wantErr: "cannot be the sequence database",
		},
		{
			name:    "results limit positive",
			mutate:  func(c *Config) { c.MongoDB.ResultsLimit = 0 },
			wantErr: "invalid mongodb.results_limit",
		},
		{
			name:    "timeouts positive",
			mutate:  func(c *Config) { c.MongoDB.OperationTimeout = 0 },
			wantErr: "mongodb.operation_timeout must be positive",
		},
		{
			name:    "unknown sequence backend",
			mutate:  func(c *Config) { c.Sequence.Backend = "etcd" },
			wantErr: "invalid sequence.backend",
		},
		{
			name:    "tracing requires endpoint",
			mutate:  func(c *Config) { c.Observability.TracingEnabled = true },
			wantErr: "observability.tracing_endpoint is required",
		},
		{
			name:    "sample rate range",
			mutate:  func(c *Config) { c.Observability.TracingSampleRate = 1.5 },
			wantErr: "invalid observability.tracing_sample_rate",
		},
		{
			name:    "log level",
			mutate:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: "invalid log.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigValidate_CollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MongoDB.URL = ""
	cfg.Log.Format = "xml"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"mongodb.url is required", "invalid log.format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}
