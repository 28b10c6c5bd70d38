package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidthor/platctl/pkg/journal"
	"github.com/davidthor/platctl/pkg/journal/backend/local"
)

// useSimulator points the executor at the simulated control plane seeded from
// testdata/seed.yaml and the journal at a temp directory.
func useSimulator(t *testing.T) string {
	t.Helper()
	journalDir := t.TempDir()

	viper.Set(ConfigKeyExecutor, executorSimulate)
	viper.Set(ConfigKeySimulateSeed, filepath.Join("testdata", "seed.yaml"))
	viper.Set(ConfigKeyPollInterval, time.Millisecond)
	viper.Set(ConfigKeyJournalBackend, "local")
	t.Setenv(EnvJournalPrefix+"PATH", journalDir)
	t.Cleanup(func() {
		for _, k := range []string{ConfigKeyExecutor, ConfigKeySimulateSeed, ConfigKeyPollInterval, ConfigKeyJournalBackend} {
			viper.Set(k, "")
		}
	})
	return journalDir
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "DEBUG", want: slog.LevelDebug},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "chatty", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestConfigKey(t *testing.T) {
	k, err := configKey("poll-interval")
	require.NoError(t, err)
	assert.Equal(t, ConfigKeyPollInterval, k)

	_, err = configKey("default-datacenter")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal-backend")
}

func TestRootCmd_Subcommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"deploy", "workflows", "cluster", "identity", "acl", "history", "config", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestDeployCmd_Flags(t *testing.T) {
	cmd := newDeployCmd()
	for _, name := range []string{"file", "dry-run", "auto-approve", "no-journal", "metrics-file", "timeout"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "f", cmd.Flags().Lookup("file").Shorthand)
}

func TestDeployCmd_DryRunPrintsPlan(t *testing.T) {
	out, err := execute(t, newDeployCmd(), "-f", filepath.Join("testdata", "storage.yaml"), "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "1. revoke-acl-entries")
	assert.Contains(t, out, "2. apply-acl-entries")
	assert.NotContains(t, out, "Starting")
}

func TestDeployCmd_RunsAndRecords(t *testing.T) {
	journalDir := useSimulator(t)
	metricsFile := filepath.Join(t.TempDir(), "platctl.prom")

	out, err := execute(t, newDeployCmd(),
		"-f", filepath.Join("testdata", "storage.yaml"),
		"--auto-approve",
		"--metrics-file", metricsFile,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Workflow completed successfully")
	assert.Contains(t, out, "acl_granted = 1")

	b, err := local.NewBackend(map[string]string{"path": journalDir})
	require.NoError(t, err)
	runs, err := journal.NewManager(b).ListRuns(context.Background(), journal.Filter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, journal.RunSucceeded, runs[0].Status)
	assert.Equal(t, "lake-access", runs[0].Name)

	metrics, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "platctl_workflow_runs_total")
}

func TestHistoryCmd_ShowAndDelete(t *testing.T) {
	journalDir := useSimulator(t)

	_, err := execute(t, newDeployCmd(), "-f", filepath.Join("testdata", "storage.yaml"), "--auto-approve")
	require.NoError(t, err)

	b, err := local.NewBackend(map[string]string{"path": journalDir})
	require.NoError(t, err)
	runs, err := journal.NewManager(b).ListRuns(context.Background(), journal.Filter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	id := runs[0].ID

	out, err := execute(t, newHistoryCmd(), "show", id[:8])
	require.NoError(t, err)
	assert.Contains(t, out, "Run:      "+id)

	out, err = execute(t, newHistoryCmd(), "delete", id[:8], "--auto-approve")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted run "+id)

	runs, err = journal.NewManager(b).ListRuns(context.Background(), journal.Filter{})
	require.NoError(t, err)
	assert.Empty(t, runs)

	_, err = execute(t, newHistoryCmd(), "delete", id[:8], "--auto-approve")
	assert.Error(t, err)
}

func TestDeployCmd_InvalidRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: x\nkind: cluster\n"), 0o644))

	_, err := execute(t, newDeployCmd(), "-f", path, "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster block")
}

func TestClusterCmd_StartAndGet(t *testing.T) {
	useSimulator(t)

	out, err := execute(t, newClusterCmd(), "start", "c-etl")
	require.NoError(t, err)
	assert.Contains(t, out, "Cluster c-etl is Running")

	out, err = execute(t, newClusterCmd(), "find", "etl")
	require.NoError(t, err)
	assert.Contains(t, out, "c-etl")
}

func TestIdentityCmd_ResolveAndMembers(t *testing.T) {
	useSimulator(t)

	out, err := execute(t, newIdentityCmd(), "resolve", "email:ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u-ana\n", out)

	out, err = execute(t, newIdentityCmd(), "members", "data-engineers")
	require.NoError(t, err)
	assert.Contains(t, out, "u-ana")
	assert.Contains(t, out, "u-ops")
}

func TestACLCmd_ApplyThenShow(t *testing.T) {
	useSimulator(t)

	// a fresh simulator per command, so apply and show are checked separately
	out, err := execute(t, newACLCmd(), "apply", "/finance",
		"--account", "lake", "--file-system", "raw",
		"--principal", "group:data-engineers", "--permissions", "rwx")
	require.NoError(t, err)
	assert.Contains(t, out, "Granted group:g-eng:rwx on finance")

	out, err = execute(t, newACLCmd(), "show", "/finance", "--account", "lake", "--file-system", "raw")
	require.NoError(t, err)
	assert.Contains(t, out, "PRINCIPAL")
}

func TestWorkflowsCmd(t *testing.T) {
	out, err := execute(t, newWorkflowsCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "cluster:\n  1. ensure-cluster")
	assert.Contains(t, out, "identity:\n  1. ensure-app-registration")
}

func TestCreateJournal_EnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvJournalPrefix+"PATH", filepath.Join(dir, "from-env"))

	cmd := &cobra.Command{}
	cmd.Flags().StringArray("journal-config", nil, "")
	require.NoError(t, cmd.Flags().Set("journal-config", "path="+filepath.Join(dir, "from-flag")))

	j, err := createJournal(cmd)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "from-flag"), j.Backend().(*local.Backend).Root())

	require.NoError(t, cmd.Flags().Set("journal-config", "broken"))
	_, err = createJournal(cmd)
	assert.Error(t, err)
}
