// Package cli builds the vbengine command line: configuration inspection, health checks,
// sequence maintenance and a runnable example over the engine.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/vbouzoukos/vbmongoengine/pkg/config"
	"github.com/vbouzoukos/vbmongoengine/pkg/observability/logger"
)

const (
	policiesAnnotationPrefix = "policies."
	defaultPolicyContext     = "run"
)

// CommandPolicy tells a deployment tool when a command may be run.
type CommandPolicy string

const (
	PolicyAlways   CommandPolicy = "always"
	PolicyRun      CommandPolicy = "run"
	PolicyManual   CommandPolicy = "manual"
	PolicyOnDemand CommandPolicy = "on_demand"
)

// CommandOptions configures the root command.
type CommandOptions struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string

	// Optional: additional commands added under the root.
	CustomCommands []*cobra.Command
}

// globalFlags holds the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath     string
	secretFilePath string
	envPrefix      string
}

// NewCommand creates the root command with config, healthcheck, sequence, version and example subcommands.
func NewCommand(opts CommandOptions) *cobra.Command {
	if opts.Name == "" {
		opts.Name = "vbengine"
	}
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = config.DefaultEnvPrefix
	}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	SetCommandPolicies(rootCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})

	flags := &globalFlags{envPrefix: opts.EnvPrefix}
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config-file", "c", opts.ConfigPath, "config file path")
	pf.StringVar(&flags.secretFilePath, "secret-file", "", "path to secrets file (sets "+resolveEnvPrefix(opts.EnvPrefix)+"_SECRETS_FILE)")
	registerConfigFlags(pf)

	rootCmd.AddCommand(
		newVersionCommand(opts.Name, flags),
		newHealthcheckCommand(flags),
		newConfigCommand(flags),
		newSequenceCommand(flags),
		newExampleCommand(flags),
	)

	for _, customCmd := range opts.CustomCommands {
		ensureDefaultPolicy(customCmd)
		rootCmd.AddCommand(customCmd)
	}

	rootCmd.CompletionOptions.DisableDefaultCmd = false
	rootCmd.InitDefaultCompletionCmd()
	for _, subCmd := range rootCmd.Commands() {
		if subCmd != nil && subCmd.Name() == "completion" {
			SetCommandPolicies(subCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})
			break
		}
	}

	return rootCmd
}

// registerConfigFlags declares the flags the config loader binds onto configuration keys.
// Only flags changed on the command line override the other sources.
func registerConfigFlags(fs *pflag.FlagSet) {
	fs.String("mongo-url", "", "MongoDB connection string")
	fs.String("database", "", "default database")
	fs.String("sequence-backend", "", "sequence store backend (mongodb, redis)")
	fs.String("redis-url", "", "Redis connection string for the redis sequence backend")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("log-format", "", "log format (json, text)")
}

// SetCommandPolicies stores policies as a map[string]string on command annotations using the "policies." prefix.
func SetCommandPolicies(cmd *cobra.Command, policies map[string]CommandPolicy) {
	if cmd == nil {
		return
	}
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	for key := range cmd.Annotations {
		if strings.HasPrefix(key, policiesAnnotationPrefix) {
			delete(cmd.Annotations, key)
		}
	}
	for context, policy := range policies {
		cmd.Annotations[policiesAnnotationPrefix+context] = string(policy)
	}
}

// GetCommandPolicies returns the policies stored on cmd, keyed by context.
func GetCommandPolicies(cmd *cobra.Command) map[string]string {
	if cmd == nil || len(cmd.Annotations) == 0 {
		return map[string]string{}
	}
	policies := map[string]string{}
	for _, key := range policyAnnotationKeys(cmd.Annotations) {
		policies[strings.TrimPrefix(key, policiesAnnotationPrefix)] = cmd.Annotations[key]
	}
	return policies
}

func ensureDefaultPolicy(cmd *cobra.Command) {
	if cmd == nil {
		return
	}
	if len(GetCommandPolicies(cmd)) == 0 {
		SetCommandPolicies(cmd, map[string]CommandPolicy{defaultPolicyContext: PolicyManual})
	}
}

func policyAnnotationKeys(annotations map[string]string) []string {
	keys := make([]string, 0, len(annotations))
	for key := range annotations {
		if strings.HasPrefix(key, policiesAnnotationPrefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// newLoader builds the loader shared by every command. A --secret-file flag is exported
// through the environment so the loader discovers it like any other secrets file.
func (f *globalFlags) newLoader(flags *pflag.FlagSet) (*config.ViperLoader, error) {
	if err := applySecretFileFlag(f.envPrefix, f.secretFilePath); err != nil {
		return nil, err
	}
	return config.NewViperLoader(f.configPath, f.envPrefix).WithFlags(flags), nil
}

// LoadConfigAndLogger loads and validates the configuration, then builds the logger it describes.
func LoadConfigAndLogger(cfgPath, envPrefix, secretFilePath string, flags *pflag.FlagSet) (*config.Config, logger.Logger, error) {
	gf := &globalFlags{configPath: cfgPath, secretFilePath: secretFilePath, envPrefix: envPrefix}
	loader, err := gf.newLoader(flags)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	logConfigIfDebug(log, cfg)
	return cfg, log, nil
}

func (f *globalFlags) load(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
	return LoadConfigAndLogger(f.configPath, f.envPrefix, f.secretFilePath, cmd.Flags())
}

func newLogger(cfg *config.Config) (logger.Logger, error) {
	level, err := logger.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	format, err := logger.ParseLogFormat(cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	// Command output goes to stdout, logs to stderr.
	log, err := logger.NewZapLogger(logger.Config{
		Level:  level,
		Format: format,
		Output: os.Stderr,
		Fields: []any{"service", cfg.Service.Name, "environment", cfg.Service.Environment},
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log, nil
}

func applySecretFileFlag(envPrefix, secretFilePath string) error {
	if secretFilePath == "" {
		return nil
	}
	info, err := os.Stat(secretFilePath)
	if err != nil {
		return fmt.Errorf("secret file %s is not accessible: %w", secretFilePath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("secret file %s must not be a directory", secretFilePath)
	}
	return os.Setenv(resolveEnvPrefix(envPrefix)+"_SECRETS_FILE", filepath.Clean(secretFilePath))
}

// Execute runs the command and exits with appropriate code.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func logConfigIfDebug(log logger.Logger, cfg *config.Config) {
	if log == nil || cfg == nil {
		return
	}
	if !strings.EqualFold(cfg.Log.Level, string(logger.DebugLevel)) {
		return
	}
	rendered, err := cfg.Redacted(nil)
	if err != nil {
		return
	}
	log.Debug("effective configuration", "config", rendered)
}

func resolveEnvPrefix(prefix string) string {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		return config.DefaultEnvPrefix
	}
	return strings.ToUpper(trimmed)
}
