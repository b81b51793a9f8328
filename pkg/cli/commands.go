package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/vbouzoukos/vbmongoengine/pkg/config"
	"github.com/vbouzoukos/vbmongoengine/pkg/health"
	"github.com/vbouzoukos/vbmongoengine/pkg/version"
	"gopkg.in/yaml.v3"
)

const (
	outputYAML = "yaml"
	outputJSON = "json"
)

// withRuntime loads the configuration, opens a runtime for the command and closes it afterwards.
func withRuntime(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, rt *Runtime) error) error {
	cfg, log, err := flags.load(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := OpenRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(context.Background()); err != nil {
			log.Warn("failed to close runtime", "error", err)
		}
	}()
	return fn(ctx, rt)
}

func writeOutput(w io.Writer, format string, value interface{}) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	case outputYAML, "":
		out, err := yaml.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		_, err = w.Write(out)
		return err
	default:
		return fmt.Errorf("unsupported output format %q (use %s or %s)", format, outputYAML, outputJSON)
	}
}

func newVersionCommand(name string, flags *globalFlags) *cobra.Command {
	var withServer bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Current(name)
			if withServer {
				err := withRuntime(cmd, flags, func(ctx context.Context, rt *Runtime) error {
					server, err := rt.Mongo.ServerVersion(ctx)
					if err != nil {
						return err
					}
					info = info.WithServer(server)
					return nil
				})
				if err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Service:    %s\n", info.Service)
			fmt.Fprintf(out, "Version:    %s\n", info.Version)
			fmt.Fprintf(out, "Commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "Build Time: %s\n", info.BuildTime)
			fmt.Fprintf(out, "Go:         %s\n", info.GoVersion)
			fmt.Fprintf(out, "Driver:     %s\n", info.Driver)
			if info.Server != "" {
				fmt.Fprintf(out, "Server:     %s\n", info.Server)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withServer, "server", false, "connect and report the MongoDB server version")
	SetCommandPolicies(cmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})
	return cmd
}

func newHealthcheckCommand(flags *globalFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check connectivity to MongoDB, the sequence store and Redis when configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, flags, func(ctx context.Context, rt *Runtime) error {
				result := rt.HealthRegistry().Check(ctx)
				if err := writeOutput(cmd.OutOrStdout(), output, result); err != nil {
					return err
				}
				if result.Status == health.StatusUnhealthy {
					return fmt.Errorf("health check failed: %s", result.Status)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputYAML, "output format (yaml, json)")
	SetCommandPolicies(cmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})
	return cmd
}

func newConfigCommand(flags *globalFlags) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}
	SetCommandPolicies(configCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := flags.newLoader(cmd.Flags())
			if err != nil {
				return err
			}
			if _, err := loader.Load(); err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return nil
		},
	}
	SetCommandPolicies(validateCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})
	configCmd.AddCommand(validateCmd)

	var showSecrets bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := flags.newLoader(cmd.Flags())
			if err != nil {
				return err
			}
			cfg, secrets, err := loader.LoadWithSecrets()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			rendered, err := renderConfig(cfg, secrets, showSecrets)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), rendered)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "show secret values")
	SetCommandPolicies(showCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})
	configCmd.AddCommand(showCmd)

	return configCmd
}

func renderConfig(cfg, secrets *config.Config, showSecrets bool) (string, error) {
	if showSecrets {
		return cfg.YAML()
	}
	return cfg.Redacted(secrets)
}

func newSequenceCommand(flags *globalFlags) *cobra.Command {
	seqCmd := &cobra.Command{
		Use:   "sequence",
		Short: "Inspect and maintain auto-increment sequences",
	}
	SetCommandPolicies(seqCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyManual})

	showCmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show the value a sequence issues next",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, flags, func(ctx context.Context, rt *Runtime) error {
				v, err := rt.Engine.SequenceGenerator().Current(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s next: %d\n", args[0], v)
				return nil
			})
		},
	}
	SetCommandPolicies(showCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})

	nextCmd := &cobra.Command{
		Use:   "next <name>",
		Short: "Issue the next value of a sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, flags, func(ctx context.Context, rt *Runtime) error {
				v, err := rt.Engine.SequenceGenerator().Next(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", args[0], v)
				return nil
			})
		},
	}
	SetCommandPolicies(nextCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyManual})

	resetCmd := &cobra.Command{
		Use:   "reset <name>",
		Short: "Restart a sequence so its next value is 1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, flags, func(ctx context.Context, rt *Runtime) error {
				if err := rt.Engine.ResetSequence(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: reset\n", args[0])
				return nil
			})
		},
	}
	SetCommandPolicies(resetCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyManual})

	seqCmd.AddCommand(showCmd, nextCmd, resetCmd)
	return seqCmd
}
