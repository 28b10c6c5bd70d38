package tasks

import (
	"context"
	"strconv"

	"github.com/davidthor/platctl/pkg/cluster"
	"github.com/davidthor/platctl/pkg/deploy"
	"github.com/davidthor/platctl/pkg/errors"
)

// ensureCluster finds the cluster by id or name and creates it when absent.
type ensureCluster struct{ c Components }

func (t *ensureCluster) Name() string { return EnsureCluster }

func (t *ensureCluster) Run(ctx context.Context, req *deploy.Request) error {
	spec := req.Cluster
	if spec == nil {
		return missingBlock(t.Name(), "cluster")
	}

	if spec.ID != "" {
		h, err := t.c.Reconciler.Get(ctx, spec.ID)
		if err != nil {
			return err
		}
		t.record(req, h, false)
		return nil
	}

	h, err := t.c.Reconciler.Find(ctx, spec.Name)
	switch {
	case err == nil:
		t.c.Logger.Info("cluster exists", "name", spec.Name, "cluster_id", h.ID, "state", h.State)
		t.record(req, h, false)
		return nil
	case errors.Is(err, errors.ErrCodeNotFound):
	default:
		return err
	}

	h, err = t.c.Reconciler.Create(ctx, spec.Spec())
	if err != nil {
		return err
	}
	t.record(req, h, true)
	return nil
}

func (t *ensureCluster) record(req *deploy.Request, h *cluster.Handle, created bool) {
	req.Cluster.ID = h.ID
	req.SetOutput(deploy.OutputClusterID, h.ID)
	req.SetOutput(deploy.OutputClusterCreated, strconv.FormatBool(created))
	req.SetOutput(deploy.OutputClusterState, string(h.State))
}

// updateCluster applies the desired definition to an existing cluster. A
// cluster created in this run already has it.
type updateCluster struct{ c Components }

func (t *updateCluster) Name() string { return UpdateCluster }

func (t *updateCluster) Run(ctx context.Context, req *deploy.Request) error {
	if req.Cluster == nil {
		return missingBlock(t.Name(), "cluster")
	}
	if req.Cluster.ID == "" {
		return missingOutput(t.Name(), "the cluster id", EnsureCluster)
	}
	if req.Output(deploy.OutputClusterCreated) == "true" {
		t.c.Logger.Debug("cluster created in this run, skipping update", "cluster_id", req.Cluster.ID)
		return nil
	}
	return t.c.Reconciler.Update(ctx, req.Cluster.ID, req.Cluster.Spec())
}

type pinCluster struct{ c Components }

func (t *pinCluster) Name() string { return PinCluster }

func (t *pinCluster) Run(ctx context.Context, req *deploy.Request) error {
	if req.Cluster == nil {
		return missingBlock(t.Name(), "cluster")
	}
	if !req.Cluster.Pinned {
		return nil
	}
	if req.Cluster.ID == "" {
		return missingOutput(t.Name(), "the cluster id", EnsureCluster)
	}
	return t.c.Reconciler.Pin(ctx, req.Cluster.ID)
}

// reconcileClusterState leaves the cluster in its desired run state.
type reconcileClusterState struct{ c Components }

func (t *reconcileClusterState) Name() string { return ReconcileClusterState }

func (t *reconcileClusterState) Run(ctx context.Context, req *deploy.Request) error {
	if req.Cluster == nil {
		return missingBlock(t.Name(), "cluster")
	}
	id := req.Cluster.ID
	if id == "" {
		return missingOutput(t.Name(), "the cluster id", EnsureCluster)
	}

	var (
		h   *cluster.Handle
		err error
	)
	switch req.Cluster.DesiredState {
	case deploy.DesiredRunning:
		h, err = t.c.Reconciler.EnsureRunning(ctx, id)
	case deploy.DesiredTerminated:
		// a cluster still coming up would be missed by EnsureStopped
		if _, err = t.c.Reconciler.Settle(ctx, id); err != nil {
			return err
		}
		if h, err = t.c.Reconciler.EnsureStopped(ctx, id); err != nil {
			return err
		}
		// the stop is not awaited; record where it has got to
		if h.State == cluster.StateRunning {
			h, err = t.c.Reconciler.Get(ctx, id)
		}
	default:
		return nil
	}
	if err != nil {
		return err
	}

	req.SetOutput(deploy.OutputClusterState, string(h.State))
	return nil
}
