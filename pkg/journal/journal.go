// Package journal records workflow runs so operators can see what a deploy
// changed after the fact.
package journal

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/davidthor/platctl/pkg/deploy"
	"github.com/davidthor/platctl/pkg/errors"
	"github.com/davidthor/platctl/pkg/journal/backend"
	"github.com/davidthor/platctl/pkg/workflow"
	"github.com/google/uuid"

	// Register the built-in backends.
	_ "github.com/davidthor/platctl/pkg/journal/backend/azurerm"
	_ "github.com/davidthor/platctl/pkg/journal/backend/gcs"
	_ "github.com/davidthor/platctl/pkg/journal/backend/local"
	_ "github.com/davidthor/platctl/pkg/journal/backend/s3"
)

const runsPrefix = "runs"

// RunStatus is the outcome of a recorded run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Run is one recorded workflow execution.
type Run struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Kind       deploy.Kind       `json:"kind"`
	Status     RunStatus         `json:"status"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Tasks      []TaskRecord      `json:"tasks"`
	Outputs    map[string]string `json:"outputs,omitempty"`
	Error      string            `json:"error,omitempty"`

	// Request is the request as it stood when the run ended, including
	// identifiers tasks filled in.
	Request *deploy.Request `json:"request,omitempty"`
}

// TaskRecord is the outcome of one task in a run.
type TaskRecord struct {
	Name     string              `json:"name"`
	Status   workflow.TaskStatus `json:"status"`
	Duration time.Duration       `json:"duration"`
	Error    string              `json:"error,omitempty"`
}

// Failed returns the failed task record, if any.
func (r *Run) Failed() *TaskRecord {
	for i := range r.Tasks {
		if r.Tasks[i].Status == workflow.TaskFailed {
			return &r.Tasks[i]
		}
	}
	return nil
}

// NewRun builds the record of a finished run from the runner's result and
// error.
func NewRun(req *deploy.Request, result *workflow.Result, runErr error, startedAt time.Time) *Run {
	run := &Run{
		ID:         uuid.New().String(),
		Name:       req.Name,
		Kind:       req.Kind,
		Status:     RunSucceeded,
		StartedAt:  startedAt.UTC(),
		FinishedAt: time.Now().UTC(),
		Outputs:    req.Outputs,
		Request:    req,
	}

	if result != nil {
		run.FinishedAt = run.StartedAt.Add(result.Duration)
		for _, t := range result.Tasks {
			rec := TaskRecord{Name: t.Name, Status: t.Status, Duration: t.Duration}
			if t.Error != nil {
				rec.Error = t.Error.Error()
			}
			run.Tasks = append(run.Tasks, rec)
		}
	}

	if runErr != nil {
		run.Error = runErr.Error()
		run.Status = RunFailed
		if stderrors.Is(runErr, context.Canceled) || stderrors.Is(runErr, context.DeadlineExceeded) {
			run.Status = RunCancelled
		}
	}
	return run
}

// Filter narrows ListRuns.
type Filter struct {
	Kind  deploy.Kind
	Name  string
	Limit int
}

// Manager reads and writes run records through a backend.
type Manager interface {
	SaveRun(ctx context.Context, run *Run) error
	// GetRun accepts a full id or an unambiguous prefix of one.
	GetRun(ctx context.Context, id string) (*Run, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, filter Filter) ([]*Run, error)
	// DeleteRun removes one record, addressed like GetRun.
	DeleteRun(ctx context.Context, id string) error
	Backend() backend.Backend
}

type manager struct {
	backend backend.Backend
}

// NewManager creates a journal over the given backend.
func NewManager(b backend.Backend) Manager {
	return &manager{backend: b}
}

// NewManagerFromConfig creates a journal over a registered backend.
func NewManagerFromConfig(config backend.Config) (Manager, error) {
	b, err := backend.Create(config)
	if err != nil {
		return nil, errors.BackendError(config.Type, "create", err)
	}
	return NewManager(b), nil
}

func (m *manager) Backend() backend.Backend { return m.backend }

func runKey(id string) string {
	return path.Join(runsPrefix, id+".json")
}

func (m *manager) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		return errors.ValidationError("run id is required", nil)
	}
	if err := writeJSON(ctx, m.backend, runKey(run.ID), run); err != nil {
		return errors.BackendError(m.backend.Type(), "save run", err)
	}
	return nil
}

func (m *manager) GetRun(ctx context.Context, id string) (*Run, error) {
	key, err := m.resolveKey(ctx, id)
	if err != nil {
		return nil, err
	}
	run, err := readJSON[Run](ctx, m.backend, key)
	if err != nil {
		return nil, errors.BackendError(m.backend.Type(), "read run", err)
	}
	return run, nil
}

// resolveKey finds the record key for a full run id or a unique prefix.
func (m *manager) resolveKey(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", errors.ValidationError("run id is required", nil)
	}
	exists, err := m.backend.Exists(ctx, runKey(id))
	if err != nil {
		return "", errors.BackendError(m.backend.Type(), "read run", err)
	}
	if exists {
		return runKey(id), nil
	}

	keys, err := m.backend.List(ctx, runsPrefix)
	if err != nil {
		return "", errors.BackendError(m.backend.Type(), "list runs", err)
	}
	var matches []string
	for _, k := range keys {
		if strings.HasSuffix(k, ".json") && strings.HasPrefix(idFromKey(k), id) {
			matches = append(matches, k)
		}
	}
	switch len(matches) {
	case 0:
		return "", errors.NotFoundError("run", id)
	case 1:
		return matches[0], nil
	default:
		return "", errors.AmbiguousError("run", id, len(matches))
	}
}

func (m *manager) ListRuns(ctx context.Context, filter Filter) ([]*Run, error) {
	keys, err := m.backend.List(ctx, runsPrefix)
	if err != nil {
		return nil, errors.BackendError(m.backend.Type(), "list runs", err)
	}

	var runs []*Run
	for _, k := range keys {
		if !strings.HasSuffix(k, ".json") {
			continue
		}
		run, err := readJSON[Run](ctx, m.backend, k)
		if err != nil {
			return nil, errors.BackendError(m.backend.Type(), "read run", err)
		}
		if filter.Kind != "" && run.Kind != filter.Kind {
			continue
		}
		if filter.Name != "" && run.Name != filter.Name {
			continue
		}
		runs = append(runs, run)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if filter.Limit > 0 && len(runs) > filter.Limit {
		runs = runs[:filter.Limit]
	}
	return runs, nil
}

func (m *manager) DeleteRun(ctx context.Context, id string) error {
	key, err := m.resolveKey(ctx, id)
	if err != nil {
		return err
	}
	if err := m.backend.Delete(ctx, key); err != nil {
		return errors.BackendError(m.backend.Type(), "delete run", err)
	}
	return nil
}

func idFromKey(key string) string {
	return strings.TrimSuffix(path.Base(key), ".json")
}

func readJSON[T any](ctx context.Context, b backend.Backend, key string) (*T, error) {
	data, err := b.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return &result, nil
}

func writeJSON(ctx context.Context, b backend.Backend, key string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return b.Put(ctx, key, data)
}
