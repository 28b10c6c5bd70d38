package cluster

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/davidthor/platctl/pkg/command"
	"github.com/davidthor/platctl/pkg/errors"
)

var errNotSettled = stderrors.New("cluster has not reached a terminal state")

// Reconciler drives clusters through their lifecycle.
//
// EnsureRunning blocks until the cluster is usable; EnsureStopped only issues
// the stop and returns. Callers rely on that asymmetry: work scheduled after
// EnsureRunning may use the cluster immediately.
type Reconciler struct {
	exec   command.Executor
	poll   PollPolicy
	logger *slog.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(exec command.Executor, poll PollPolicy, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		exec:   exec,
		poll:   poll.normalized(),
		logger: logger,
	}
}

// Get fetches the cluster's current state.
func (r *Reconciler) Get(ctx context.Context, id string) (*Handle, error) {
	var p payload
	cmd := command.New(command.VerbClusterGet).With(command.FlagClusterID, id)
	if err := command.RunInto(ctx, r.exec, cmd, &p); err != nil {
		return nil, err
	}
	if p.ClusterID == "" {
		p.ClusterID = id
	}
	return p.handle(), nil
}

// Find looks a cluster up by name.
func (r *Reconciler) Find(ctx context.Context, name string) (*Handle, error) {
	var list []payload
	res, err := command.Run(ctx, r.exec, command.New(command.VerbClusterList))
	if err != nil {
		return nil, err
	}
	if len(res.Payload) > 0 {
		if err := decodeList(res.Payload, &list); err != nil {
			return nil, errors.Wrap(errors.ErrCodeParse, "failed to decode cluster list", err)
		}
	}

	var matches []*Handle
	for _, p := range list {
		if p.ClusterName == name {
			matches = append(matches, p.handle())
		}
	}

	switch len(matches) {
	case 0:
		return nil, errors.NotFoundError("cluster", name)
	case 1:
		return matches[0], nil
	default:
		return nil, errors.AmbiguousError("cluster", name, len(matches))
	}
}

// decodeList accepts either a bare array or {"clusters": [...]}.
func decodeList(data json.RawMessage, out *[]payload) error {
	if err := json.Unmarshal(data, out); err == nil {
		return nil
	}
	var wrapped struct {
		Clusters []payload `json:"clusters"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	*out = wrapped.Clusters
	return nil
}

// Create creates a cluster and returns its handle. The control plane starts
// new clusters, so the returned state is usually Pending.
func (r *Reconciler) Create(ctx context.Context, spec Spec) (*Handle, error) {
	spec.ClusterID = ""
	body, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cluster spec: %w", err)
	}

	var created struct {
		ClusterID string `json:"cluster_id"`
	}
	cmd := command.New(command.VerbClusterCreate).With(command.FlagJSON, string(body))
	if err := command.RunInto(ctx, r.exec, cmd, &created); err != nil {
		return nil, err
	}
	if created.ClusterID == "" {
		return nil, errors.New(errors.ErrCodeParse, "cluster create returned no cluster_id")
	}

	r.logger.Info("created cluster", "cluster_id", created.ClusterID, "name", spec.Name)
	return r.Get(ctx, created.ClusterID)
}

// EnsureRunning makes sure the cluster is Running, starting it when it is
// Terminated and blocking until it settles. A cluster that falls back to
// Terminated after the start is reported as FAILED_START.
func (r *Reconciler) EnsureRunning(ctx context.Context, id string) (*Handle, error) {
	h, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if h.State == StatePending {
		r.logger.Info("cluster is transitioning, waiting before deciding", "cluster_id", id)
		if h, err = r.Settle(ctx, id); err != nil {
			return nil, err
		}
	}

	switch h.State {
	case StateRunning:
		r.logger.Debug("cluster already running", "cluster_id", id)
		return h, nil
	case StateError:
		return nil, stateError(h)
	}

	r.logger.Info("starting cluster", "cluster_id", id)
	if _, err := command.Run(ctx, r.exec, command.New(command.VerbClusterStart).With(command.FlagClusterID, id)); err != nil {
		return nil, err
	}

	if h, err = r.Settle(ctx, id); err != nil {
		return nil, err
	}

	switch h.State {
	case StateRunning:
		r.logger.Info("cluster running", "cluster_id", id)
		return h, nil
	case StateTerminated:
		return nil, errors.New(errors.ErrCodeFailedStart, fmt.Sprintf("cluster %s terminated while starting", id)).
			WithDetail("cluster_id", id).
			WithDetail("state_message", h.StateMessage)
	default:
		return nil, stateError(h)
	}
}

// EnsureStopped terminates the cluster if it is Running. It does not wait for
// the termination to complete.
func (r *Reconciler) EnsureStopped(ctx context.Context, id string) (*Handle, error) {
	h, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if h.State != StateRunning {
		r.logger.Debug("cluster not running, nothing to stop", "cluster_id", id, "state", h.State)
		return h, nil
	}

	r.logger.Info("stopping cluster", "cluster_id", id)
	if _, err := command.Run(ctx, r.exec, command.New(command.VerbClusterDelete).With(command.FlagClusterID, id)); err != nil {
		return nil, err
	}
	return h, nil
}

// Pin marks the cluster as pinned. Pinning is idempotent and independent of
// the run state.
func (r *Reconciler) Pin(ctx context.Context, id string) error {
	_, err := command.Run(ctx, r.exec, command.New(command.VerbClusterPin).With(command.FlagClusterID, id))
	return err
}

// Update applies spec to an existing cluster. A cluster that was Terminated
// before the edit is returned to Terminated afterwards so the update never
// leaves idle capacity running.
func (r *Reconciler) Update(ctx context.Context, id string, spec Spec) error {
	h, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if h.State == StatePending {
		if h, err = r.Settle(ctx, id); err != nil {
			return err
		}
	}
	wasTerminated := h.State == StateTerminated

	spec.ClusterID = id
	body, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to encode cluster spec: %w", err)
	}

	r.logger.Info("updating cluster", "cluster_id", id, "was_terminated", wasTerminated)
	if _, err := command.Run(ctx, r.exec, command.New(command.VerbClusterEdit).With(command.FlagJSON, string(body))); err != nil {
		return err
	}

	if !wasTerminated {
		return nil
	}

	if _, err := r.Settle(ctx, id); err != nil {
		return err
	}
	_, err = r.EnsureStopped(ctx, id)
	return err
}

// Settle polls the cluster at a fixed interval until it reaches a terminal
// state. Fetch errors end the wait immediately; exhausting the poll policy
// yields a TIMEOUT error.
func (r *Reconciler) Settle(ctx context.Context, id string) (*Handle, error) {
	var (
		last     *Handle
		attempts int
	)
	start := time.Now()

	op := func() error {
		attempts++
		h, err := r.Get(ctx, id)
		if err != nil {
			return backoff.Permanent(err)
		}
		last = h
		if h.State.Terminal() {
			return nil
		}
		return errNotSettled
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.poll.Interval), uint64(r.poll.MaxAttempts-1)),
		ctx,
	)
	notify := func(_ error, next time.Duration) {
		r.logger.Debug("cluster not settled", "cluster_id", id, "state", last.State, "attempt", attempts, "next_poll", next)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if stderrors.Is(err, errNotSettled) {
			return nil, errors.TimeoutError("cluster "+id, attempts, time.Since(start)).
				WithDetail("cluster_id", id).
				WithDetail("last_state", string(last.State))
		}
		return nil, err
	}
	return last, nil
}

func stateError(h *Handle) error {
	return errors.New(errors.ErrCodeResource, fmt.Sprintf("cluster %s is in state %s", h.ID, h.RawState)).
		WithDetail("cluster_id", h.ID).
		WithDetail("state_message", h.StateMessage)
}
