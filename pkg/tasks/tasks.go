// Package tasks implements the workflow tasks named by the workflow
// definitions.
package tasks

import (
	"fmt"
	"log/slog"

	"github.com/davidthor/platctl/pkg/acl"
	"github.com/davidthor/platctl/pkg/cluster"
	"github.com/davidthor/platctl/pkg/command"
	"github.com/davidthor/platctl/pkg/errors"
	"github.com/davidthor/platctl/pkg/identity"
	"github.com/davidthor/platctl/pkg/workflow"
)

// Task names.
const (
	EnsureCluster          = "ensure-cluster"
	UpdateCluster          = "update-cluster"
	PinCluster             = "pin-cluster"
	ReconcileClusterState  = "reconcile-cluster-state"
	EnsureAppRegistration  = "ensure-app-registration"
	EnsureServicePrincipal = "ensure-service-principal"
	GrantGroupOwners       = "grant-group-owners"
	GrantOwners            = "grant-owners"
	RevokeACLEntries       = "revoke-acl-entries"
	ApplyACLEntries        = "apply-acl-entries"
)

// Components are the collaborators tasks are built from.
type Components struct {
	Executor   command.Executor
	Resolver   *identity.Resolver
	Reconciler *cluster.Reconciler
	Propagator *acl.Propagator
	Logger     *slog.Logger
}

// NewComponents wires the default components around one executor.
func NewComponents(exec command.Executor, poll cluster.PollPolicy, logger *slog.Logger) Components {
	if logger == nil {
		logger = slog.Default()
	}
	resolver := identity.NewResolver(exec, logger.With("component", "identity"))
	return Components{
		Executor:   exec,
		Resolver:   resolver,
		Reconciler: cluster.NewReconciler(exec, poll, logger.With("component", "cluster")),
		Propagator: acl.NewPropagator(resolver, exec, logger.With("component", "acl")),
		Logger:     logger,
	}
}

// All returns every task.
func All(c Components) []workflow.Task {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return []workflow.Task{
		&ensureCluster{c},
		&updateCluster{c},
		&pinCluster{c},
		&reconcileClusterState{c},
		&ensureAppRegistration{c},
		&ensureServicePrincipal{c},
		&grantGroupOwners{c},
		&grantOwners{c},
		&revokeACLEntries{c},
		&applyACLEntries{c},
	}
}

// NewTaskSet returns every task indexed by name.
func NewTaskSet(c Components) (workflow.TaskSet, error) {
	return workflow.NewTaskSet(All(c)...)
}

func missingBlock(task, block string) error {
	return errors.ValidationError(fmt.Sprintf("task %s requires a %s block", task, block), map[string]interface{}{
		"task": task,
	})
}

func missingOutput(task, output, producer string) error {
	return errors.ValidationError(fmt.Sprintf("task %s needs %s, which %s sets", task, output, producer), map[string]interface{}{
		"task":   task,
		"output": output,
	})
}
