package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Configuration keys, stored in ~/.platctl/config.yaml and overridable with
// PLATCTL_<KEY> environment variables.
const (
	ConfigKeyLogLevel         = "log_level"
	ConfigKeyExecutor         = "executor"
	ConfigKeySimulateSeed     = "simulate_seed"
	ConfigKeyAzBinary         = "az_binary"
	ConfigKeyDatabricksBinary = "databricks_binary"
	ConfigKeyPollInterval     = "poll_interval"
	ConfigKeyPollMaxAttempts  = "poll_max_attempts"
	ConfigKeyJournalBackend   = "journal_backend"
)

var configKeys = []string{
	ConfigKeyAzBinary,
	ConfigKeyDatabricksBinary,
	ConfigKeyExecutor,
	ConfigKeyJournalBackend,
	ConfigKeyLogLevel,
	ConfigKeyPollInterval,
	ConfigKeyPollMaxAttempts,
	ConfigKeySimulateSeed,
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  `Get and set platctl CLI configuration values stored in ~/.platctl/config.yaml.`,
	}

	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigListCmd())

	return cmd
}

func newConfigSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value in ~/.platctl/config.yaml.

Available keys:
  ` + strings.Join(displayKeys(), "\n  ") + `

Examples:
  platctl config set executor simulate
  platctl config set poll-interval 30s`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			viperKey, err := configKey(key)
			if err != nil {
				return err
			}

			viper.Set(viperKey, value)
			if err := writeConfig(); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}

	return cmd
}

func newConfigGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			viperKey, err := configKey(args[0])
			if err != nil {
				return err
			}

			value := viper.GetString(viperKey)
			if value == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is not set\n", args[0])
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), value)
			}
			return nil
		},
	}

	return cmd
}

func newConfigListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all configuration values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration:")
			for _, k := range configKeys {
				if v := viper.GetString(k); v != "" {
					fmt.Fprintf(out, "  %s = %s\n", strings.ReplaceAll(k, "_", "-"), v)
				}
			}
			return nil
		},
	}

	return cmd
}

// configKey converts CLI-style keys (with dashes) to viper keys and rejects
// unknown ones.
func configKey(key string) (string, error) {
	k := strings.ReplaceAll(strings.ToLower(key), "-", "_")
	for _, known := range configKeys {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown configuration key %q\n\nAvailable keys:\n  %s", key, strings.Join(displayKeys(), "\n  "))
}

func displayKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for _, k := range configKeys {
		keys = append(keys, strings.ReplaceAll(k, "_", "-"))
	}
	sort.Strings(keys)
	return keys
}

// writeConfig writes the current viper config to the config file.
func writeConfig() error {
	configPath := viper.ConfigFileUsed()
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir := filepath.Join(home, ".platctl")
		if err := os.MkdirAll(configDir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		configPath = filepath.Join(configDir, "config.yaml")
	}

	return viper.WriteConfigAs(configPath)
}
