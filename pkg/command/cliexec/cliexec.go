// Package cliexec implements command.Executor by shelling out to the cloud
// control-plane CLIs (az and databricks) with JSON output.
package cliexec

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/davidthor/platctl/pkg/command"
)

// Options configures the executor.
type Options struct {
	// AzBinary is the az CLI binary name or path (default "az")
	AzBinary string

	// DatabricksBinary is the databricks CLI binary name or path (default "databricks")
	DatabricksBinary string

	// Environment holds extra environment variables for every invocation
	Environment map[string]string

	// Stderr receives a copy of the CLIs' stderr when set
	Stderr io.Writer

	Logger *slog.Logger
}

// Executor runs commands through the control-plane CLIs.
type Executor struct {
	az         string
	databricks string
	opts       Options
	logger     *slog.Logger
}

// New creates an executor. Binaries are resolved lazily so a missing CLI only
// fails the commands that need it.
func New(opts Options) *Executor {
	az := opts.AzBinary
	if az == "" {
		az = "az"
	}
	databricks := opts.DatabricksBinary
	if databricks == "" {
		databricks = "databricks"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		az:         az,
		databricks: databricks,
		opts:       opts,
		logger:     logger,
	}
}

// argv splits a command into the binary to run and its arguments.
func (e *Executor) argv(cmd command.Command) (string, []string) {
	args := cmd.Args()
	if len(args) > 0 && args[0] == "databricks" {
		return e.databricks, append(args[1:], "--output", "json")
	}
	return e.az, append(args, "--output", "json")
}

// Execute implements command.Executor.
func (e *Executor) Execute(ctx context.Context, cmd command.Command) (*command.Result, error) {
	binary, args := e.argv(cmd)

	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%s binary not found: %w", binary, err)
	}

	c := exec.CommandContext(ctx, path, args...)

	c.Env = os.Environ()
	for k, v := range e.opts.Environment {
		c.Env = append(c.Env, fmt.Sprintf("%s=%s", k, v))
	}
	// Keep the CLIs from prompting.
	c.Env = append(c.Env, "AZURE_CORE_ONLY_SHOW_ERRORS=1", "AZURE_CORE_NO_COLOR=1")

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	if e.opts.Stderr != nil {
		c.Stderr = io.MultiWriter(&stderr, e.opts.Stderr)
	}

	e.logger.Debug("executing control-plane command", "binary", binary, "verb", string(cmd.Verb))

	if err := c.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = exitErr.Error()
			}
			return &command.Result{Error: msg}, nil
		}
		return nil, fmt.Errorf("%w: %s", err, stderr.String())
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return &command.Result{Success: true}, nil
	}
	if !json.Valid(out) {
		return nil, fmt.Errorf("%s returned non-JSON output: %s", binary, truncate(string(out), 200))
	}
	return &command.Result{Success: true, Payload: json.RawMessage(out)}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Ensure we implement the Executor interface
var _ command.Executor = (*Executor)(nil)
