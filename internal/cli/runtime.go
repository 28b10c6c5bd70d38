package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/davidthor/platctl/pkg/cluster"
	"github.com/davidthor/platctl/pkg/command"
	"github.com/davidthor/platctl/pkg/command/cliexec"
	"github.com/davidthor/platctl/pkg/command/simulate"
	"github.com/davidthor/platctl/pkg/journal"
	"github.com/davidthor/platctl/pkg/journal/backend"
	"github.com/davidthor/platctl/pkg/tasks"
)

const (
	// EnvJournalPrefix prefixes backend options given through the
	// environment, e.g. PLATCTL_JOURNAL_BUCKET sets "bucket".
	EnvJournalPrefix = "PLATCTL_JOURNAL_"

	executorAz       = "az"
	executorSimulate = "simulate"
)

// newExecutor builds the executor selected by configuration.
func newExecutor() (command.Executor, error) {
	logger := slog.Default().With("component", "executor")

	switch kind := viper.GetString(ConfigKeyExecutor); kind {
	case "", executorAz:
		return cliexec.New(cliexec.Options{
			AzBinary:         viper.GetString(ConfigKeyAzBinary),
			DatabricksBinary: viper.GetString(ConfigKeyDatabricksBinary),
			Logger:           logger,
		}), nil
	case executorSimulate:
		seed := &simulate.Seed{}
		if path := viper.GetString(ConfigKeySimulateSeed); path != "" {
			var err error
			if seed, err = simulate.LoadSeed(path); err != nil {
				return nil, err
			}
		}
		logger.Warn("using the simulated control plane; nothing outside this process changes")
		return simulate.New(seed), nil
	default:
		return nil, fmt.Errorf("unknown executor %q (use %s or %s)", kind, executorAz, executorSimulate)
	}
}

func pollPolicy() cluster.PollPolicy {
	return cluster.PollPolicy{
		Interval:    viper.GetDuration(ConfigKeyPollInterval),
		MaxAttempts: viper.GetInt(ConfigKeyPollMaxAttempts),
	}
}

// newComponents wires the task components around the configured executor.
func newComponents() (tasks.Components, error) {
	exec, err := newExecutor()
	if err != nil {
		return tasks.Components{}, err
	}
	return tasks.NewComponents(exec, pollPolicy(), slog.Default()), nil
}

// createJournal resolves the journal backend from, lowest precedence first,
// the local default, config, PLATCTL_JOURNAL_* variables and
// --journal-config flags.
func createJournal(cmd *cobra.Command) (journal.Manager, error) {
	config := backend.Config{
		Type:   "local",
		Config: map[string]string{},
	}
	if t := viper.GetString(ConfigKeyJournalBackend); t != "" {
		config.Type = t
	}

	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, EnvJournalPrefix) {
			continue
		}
		parts := strings.SplitN(env, "=", 2)
		key := strings.ToLower(strings.TrimPrefix(parts[0], EnvJournalPrefix))
		// PLATCTL_JOURNAL_BACKEND selects the type through viper
		if len(parts) == 2 && key != "backend" {
			config.Config[key] = parts[1]
		}
	}

	pairs, _ := cmd.Flags().GetStringArray("journal-config")
	for _, c := range pairs {
		parts := strings.SplitN(c, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --journal-config %q, expected key=value", c)
		}
		config.Config[parts[0]] = parts[1]
	}

	return journal.NewManagerFromConfig(config)
}
