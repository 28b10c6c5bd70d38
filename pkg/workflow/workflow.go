// Package workflow composes named tasks into ordered workflows and runs them
// against a deployment request.
package workflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/davidthor/platctl/pkg/deploy"
	"github.com/davidthor/platctl/pkg/errors"
)

// Task is one step of a workflow. Tasks keep no state between runs beyond
// the components they were constructed with; everything they produce goes
// into the request.
type Task interface {
	Name() string
	Run(ctx context.Context, req *deploy.Request) error
}

// Func adapts a function to the Task interface.
type Func struct {
	TaskName string
	Fn       func(ctx context.Context, req *deploy.Request) error
}

func (f Func) Name() string { return f.TaskName }

func (f Func) Run(ctx context.Context, req *deploy.Request) error { return f.Fn(ctx, req) }

// Workflow is an ordered list of tasks for one request kind.
type Workflow struct {
	Kind  deploy.Kind
	Tasks []Task
}

// TaskNames returns the names of the workflow's tasks in order.
func (w *Workflow) TaskNames() []string {
	names := make([]string, len(w.Tasks))
	for i, t := range w.Tasks {
		names[i] = t.Name()
	}
	return names
}

// definitions is the fixed kind -> task order table.
var definitions = map[deploy.Kind][]string{
	deploy.KindCluster: {
		"ensure-cluster",
		"update-cluster",
		"pin-cluster",
		"reconcile-cluster-state",
	},
	deploy.KindIdentity: {
		"ensure-app-registration",
		"ensure-service-principal",
		"grant-group-owners",
		"grant-owners",
	},
	deploy.KindStorageACL: {
		"revoke-acl-entries",
		"apply-acl-entries",
	},
}

// Definition returns the task order for kind.
func Definition(kind deploy.Kind) ([]string, error) {
	names, ok := definitions[kind]
	if !ok {
		return nil, errors.ValidationError(fmt.Sprintf("no workflow defined for kind %q", kind), map[string]interface{}{
			"kind": string(kind),
		})
	}
	return append([]string(nil), names...), nil
}

// Kinds returns every kind with a workflow definition, sorted.
func Kinds() []deploy.Kind {
	kinds := make([]deploy.Kind, 0, len(definitions))
	for k := range definitions {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// TaskSet indexes available tasks by name.
type TaskSet map[string]Task

// NewTaskSet builds a task set, rejecting duplicate names.
func NewTaskSet(tasks ...Task) (TaskSet, error) {
	set := make(TaskSet, len(tasks))
	for _, t := range tasks {
		if _, dup := set[t.Name()]; dup {
			return nil, errors.ValidationError(fmt.Sprintf("duplicate task %q", t.Name()), nil)
		}
		set[t.Name()] = t
	}
	return set, nil
}

// Compose builds the workflow for kind from the task set. It does not look
// at request contents; tasks that have nothing to do are no-ops at run time.
func Compose(kind deploy.Kind, tasks TaskSet) (*Workflow, error) {
	names, err := Definition(kind)
	if err != nil {
		return nil, err
	}

	wf := &Workflow{Kind: kind, Tasks: make([]Task, 0, len(names))}
	for _, name := range names {
		t, ok := tasks[name]
		if !ok {
			return nil, errors.ValidationError(fmt.Sprintf("workflow %s needs task %q, which is not registered", kind, name), map[string]interface{}{
				"kind": string(kind),
				"task": name,
			})
		}
		wf.Tasks = append(wf.Tasks, t)
	}
	return wf, nil
}
