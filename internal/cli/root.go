// Package cli implements the platctl CLI commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time.
var Version = "dev"

var (
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "platctl",
	Short: "Reconcile data platform infrastructure from declarative requests",
	Long: `platctl drives Databricks clusters, Entra ID app registrations and
ADLS Gen2 access control lists towards the state described in a request file.

Each request kind runs a fixed, ordered workflow of idempotent tasks. Commands
go through the az and databricks CLIs, or through an in-memory simulated
control plane for rehearsals.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.platctl/config.yaml)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("executor", "az", "Command executor (az, simulate)")
	flags.String("simulate-seed", "", "Seed file for the simulated control plane")
	flags.String("az-binary", "az", "Path to the az CLI")
	flags.String("databricks-binary", "databricks", "Path to the databricks CLI")
	flags.Duration("poll-interval", 0, "Interval between cluster state polls (default 10s)")
	flags.Int("poll-max-attempts", 0, "Maximum cluster state polls before timing out (default 180)")
	flags.String("journal-backend", "local", "Run journal backend (local, s3, gcs, azurerm)")
	flags.StringArray("journal-config", nil, "Run journal backend configuration (key=value)")

	for flag, key := range map[string]string{
		"log-level":         ConfigKeyLogLevel,
		"executor":          ConfigKeyExecutor,
		"simulate-seed":     ConfigKeySimulateSeed,
		"az-binary":         ConfigKeyAzBinary,
		"databricks-binary": ConfigKeyDatabricksBinary,
		"poll-interval":     ConfigKeyPollInterval,
		"poll-max-attempts": ConfigKeyPollMaxAttempts,
		"journal-backend":   ConfigKeyJournalBackend,
	} {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
	viper.SetEnvPrefix("PLATCTL")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newDeployCmd())
	rootCmd.AddCommand(newWorkflowsCmd())
	rootCmd.AddCommand(newClusterCmd())
	rootCmd.AddCommand(newIdentityCmd())
	rootCmd.AddCommand(newACLCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.platctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	// Read config file if it exists
	_ = viper.ReadInConfig()
}

// setupLogging installs the default slog handler. Logs go to stderr so
// command output on stdout stays parseable.
func setupLogging(cmd *cobra.Command, _ []string) error {
	level, err := parseLevel(viper.GetString(ConfigKeyLogLevel))
	if err != nil {
		return err
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (use debug, info, warn or error)", s)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the platctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "platctl %s\n", Version)
		},
	}
}
