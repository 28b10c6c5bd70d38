// Package command defines the typed administrative commands platctl issues
// against the cloud control plane, and the Executor boundary that runs them.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/davidthor/platctl/pkg/errors"
)

// Verb is a control-plane operation, written the way the CLI spells it.
type Verb string

const (
	VerbUserShow           Verb = "ad user show"
	VerbSignedInUserShow   Verb = "ad signed-in-user show"
	VerbGroupShow          Verb = "ad group show"
	VerbGroupMemberList    Verb = "ad group member list"
	VerbSPList             Verb = "ad sp list"
	VerbSPShow             Verb = "ad sp show"
	VerbSPCreate           Verb = "ad sp create"
	VerbAppList            Verb = "ad app list"
	VerbAppShow            Verb = "ad app show"
	VerbAppCreate          Verb = "ad app create"
	VerbAppOwnerAdd        Verb = "ad app owner add"
	VerbClusterList        Verb = "databricks clusters list"
	VerbClusterGet         Verb = "databricks clusters get"
	VerbClusterCreate      Verb = "databricks clusters create"
	VerbClusterEdit        Verb = "databricks clusters edit"
	VerbClusterStart       Verb = "databricks clusters start"
	VerbClusterDelete      Verb = "databricks clusters delete"
	VerbClusterPin         Verb = "databricks clusters pin"
	VerbACLShow            Verb = "storage fs access show"
	VerbACLSet             Verb = "storage fs access set"
	VerbACLUpdateRecursive Verb = "storage fs access update-recursive"
	VerbACLRemoveRecursive Verb = "storage fs access remove-recursive"
)

// Flag names shared across verbs.
const (
	FlagID            = "id"
	FlagGroup         = "group"
	FlagDisplayName   = "display-name"
	FlagOwnerObjectID = "owner-object-id"
	FlagClusterID     = "cluster-id"
	FlagJSON          = "json"
	FlagACL           = "acl"
	FlagPath          = "path"
	FlagFileSystem    = "file-system"
	FlagAccountName   = "account-name"
	FlagAuthMode      = "auth-mode"
)

// Flag is a single named argument. An empty Value renders a bare switch.
type Flag struct {
	Name  string
	Value string
}

// Command is a typed control-plane request. It is rendered to argv only by an
// Executor, never by string concatenation at call sites.
type Command struct {
	Verb  Verb
	Flags []Flag
}

// New creates a command for the given verb.
func New(verb Verb) Command {
	return Command{Verb: verb}
}

// With returns a copy of the command with the flag appended.
func (c Command) With(name, value string) Command {
	flags := make([]Flag, len(c.Flags), len(c.Flags)+1)
	copy(flags, c.Flags)
	c.Flags = append(flags, Flag{Name: name, Value: value})
	return c
}

// Flag returns the value of the named flag.
func (c Command) Flag(name string) (string, bool) {
	for _, f := range c.Flags {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Args renders the command as an argument vector (without the binary name).
// Values are attached as --name=value so a value starting with "-" is never
// read as an option.
func (c Command) Args() []string {
	args := strings.Fields(string(c.Verb))
	for _, f := range c.Flags {
		if f.Value == "" {
			args = append(args, "--"+f.Name)
			continue
		}
		args = append(args, "--"+f.Name+"="+f.Value)
	}
	return args
}

func (c Command) String() string {
	return strings.Join(c.Args(), " ")
}

// Result is what the control plane answered.
type Result struct {
	Success bool
	Payload json.RawMessage
	Error   string
}

// Decode unmarshals the payload into v.
func (r *Result) Decode(v interface{}) error {
	if len(r.Payload) == 0 {
		return fmt.Errorf("empty payload")
	}
	return json.Unmarshal(r.Payload, v)
}

// Executor runs a single command. A non-nil error means the command could not
// be executed at all; a rejected command is reported through Result.Success.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (*Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, cmd Command) (*Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, cmd Command) (*Result, error) {
	return f(ctx, cmd)
}

// Run executes cmd and folds both failure modes into a TRANSPORT_ERROR.
// Callers that need to tell a rejected command apart from an unreachable
// control plane use Executor.Execute directly.
func Run(ctx context.Context, exec Executor, cmd Command) (*Result, error) {
	res, err := exec.Execute(ctx, cmd)
	if err != nil {
		return nil, errors.TransportError(string(cmd.Verb), err)
	}
	if !res.Success {
		return nil, errors.CommandError(string(cmd.Verb), res.Error)
	}
	return res, nil
}

// RunInto executes cmd and decodes its payload into v.
func RunInto(ctx context.Context, exec Executor, cmd Command, v interface{}) error {
	res, err := Run(ctx, exec, cmd)
	if err != nil {
		return err
	}
	if err := res.Decode(v); err != nil {
		return errors.Wrap(errors.ErrCodeParse, fmt.Sprintf("failed to decode %s output", cmd.Verb), err)
	}
	return nil
}

// OK builds a successful result carrying v as its JSON payload.
func OK(v interface{}) (*Result, error) {
	if v == nil {
		return &Result{Success: true}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Result{Success: true, Payload: data}, nil
}

// Failed builds a rejected result.
func Failed(format string, args ...interface{}) *Result {
	return &Result{Error: fmt.Sprintf(format, args...)}
}
