package journal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/davidthor/platctl/pkg/deploy"
	"github.com/davidthor/platctl/pkg/errors"
	"github.com/davidthor/platctl/pkg/journal/backend"
	"github.com/davidthor/platctl/pkg/journal/backend/local"
	"github.com/davidthor/platctl/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) Manager {
	t.Helper()
	b, err := local.NewBackend(map[string]string{"path": t.TempDir()})
	require.NoError(t, err)
	return NewManager(b)
}

func TestNewManagerFromConfig(t *testing.T) {
	m, err := NewManagerFromConfig(backend.Config{Type: "local", Config: map[string]string{"path": t.TempDir()}})
	require.NoError(t, err)
	assert.Equal(t, "local", m.Backend().Type())

	_, err = NewManagerFromConfig(backend.Config{Type: "ftp"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeBackend))
}

func TestBackendTypes_RegisteredByImport(t *testing.T) {
	assert.Equal(t, []string{"azurerm", "gcs", "local", "s3"}, backend.Types())
}

func TestNewRun_FromResult(t *testing.T) {
	req := &deploy.Request{Name: "etl", Kind: deploy.KindCluster}
	req.SetOutput(deploy.OutputClusterID, "c-1")
	boom := fmt.Errorf("boom")
	result := &workflow.Result{
		Kind:     deploy.KindCluster,
		Duration: 3 * time.Second,
		Tasks: []*workflow.TaskResult{
			{Name: "ensure-cluster", Status: workflow.TaskSucceeded, Duration: time.Second},
			{Name: "update-cluster", Status: workflow.TaskFailed, Duration: 2 * time.Second, Error: boom},
			{Name: "pin-cluster", Status: workflow.TaskSkipped},
		},
	}
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	run := NewRun(req, result, errors.TaskError("update-cluster", boom), started)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunFailed, run.Status)
	assert.Equal(t, started.Add(3*time.Second), run.FinishedAt)
	assert.Equal(t, "c-1", run.Outputs[deploy.OutputClusterID])
	require.Len(t, run.Tasks, 3)
	require.NotNil(t, run.Failed())
	assert.Equal(t, "update-cluster", run.Failed().Name)
	assert.Equal(t, "boom", run.Failed().Error)
}

func TestNewRun_Cancelled(t *testing.T) {
	req := &deploy.Request{Name: "etl", Kind: deploy.KindCluster}
	run := NewRun(req, &workflow.Result{}, errors.TaskError("ensure-cluster", context.Canceled), time.Now())
	assert.Equal(t, RunCancelled, run.Status)
}

func TestManager_SaveAndGetRun(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	req := &deploy.Request{Name: "lake", Kind: deploy.KindStorageACL}
	run := NewRun(req, &workflow.Result{Success: true}, nil, time.Now())
	require.NoError(t, m.SaveRun(ctx, run))

	got, err := m.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, RunSucceeded, got.Status)
	assert.Equal(t, "lake", got.Request.Name)

	got, err = m.GetRun(ctx, run.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
}

func TestManager_GetRunErrors(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.GetRun(ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))

	for _, id := range []string{"abc-1", "abc-2"} {
		require.NoError(t, m.SaveRun(ctx, &Run{ID: id}))
	}
	_, err = m.GetRun(ctx, "abc")
	assert.True(t, errors.Is(err, errors.ErrCodeAmbiguous))

	assert.True(t, errors.Is(m.SaveRun(ctx, &Run{}), errors.ErrCodeValidation))
}

func TestManager_ListRuns(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	runs := []*Run{
		{ID: "r1", Name: "etl", Kind: deploy.KindCluster, StartedAt: base},
		{ID: "r2", Name: "etl", Kind: deploy.KindCluster, StartedAt: base.Add(time.Hour)},
		{ID: "r3", Name: "app", Kind: deploy.KindIdentity, StartedAt: base.Add(2 * time.Hour)},
	}
	for _, r := range runs {
		require.NoError(t, m.SaveRun(ctx, r))
	}

	all, err := m.ListRuns(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"r3", "r2", "r1"}, []string{all[0].ID, all[1].ID, all[2].ID})

	clusters, err := m.ListRuns(ctx, Filter{Kind: deploy.KindCluster, Limit: 1})
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, "r2", clusters[0].ID)

	named, err := m.ListRuns(ctx, Filter{Name: "app"})
	require.NoError(t, err)
	require.Len(t, named, 1)

	require.NoError(t, m.DeleteRun(ctx, "r3"))
	all, err = m.ListRuns(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestManager_DeleteRun(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for _, id := range []string{"7f3a-1", "7f3a-2", "c1d9"} {
		require.NoError(t, m.SaveRun(ctx, &Run{ID: id}))
	}

	assert.True(t, errors.Is(m.DeleteRun(ctx, "7f3a"), errors.ErrCodeAmbiguous))
	assert.True(t, errors.Is(m.DeleteRun(ctx, "ffff"), errors.ErrCodeNotFound))
	assert.True(t, errors.Is(m.DeleteRun(ctx, ""), errors.ErrCodeValidation))

	require.NoError(t, m.DeleteRun(ctx, "c1"))
	_, err := m.GetRun(ctx, "c1d9")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))

	require.NoError(t, m.DeleteRun(ctx, "7f3a-1"))
	exists, err := m.Backend().Exists(ctx, "runs/7f3a-1.json")
	require.NoError(t, err)
	assert.False(t, exists)

	left, err := m.ListRuns(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "7f3a-2", left[0].ID)
}
