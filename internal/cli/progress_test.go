package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidthor/platctl/pkg/deploy"
	"github.com/davidthor/platctl/pkg/workflow"
)

func init() {
	color.NoColor = true
}

func testWorkflow(t *testing.T, failing string) *workflow.Workflow {
	t.Helper()
	noop := func(ctx context.Context, req *deploy.Request) error { return nil }
	fail := func(ctx context.Context, req *deploy.Request) error { return assert.AnError }

	var tasks []workflow.Task
	names, err := workflow.Definition(deploy.KindStorageACL)
	require.NoError(t, err)
	for _, name := range names {
		fn := noop
		if name == failing {
			fn = fail
		}
		tasks = append(tasks, workflow.Func{TaskName: name, Fn: fn})
	}
	set, err := workflow.NewTaskSet(tasks...)
	require.NoError(t, err)
	wf, err := workflow.Compose(deploy.KindStorageACL, set)
	require.NoError(t, err)
	return wf
}

func TestTaskProgress_PrintPlan(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewTaskProgress(buf)

	p.PrintPlan("lake", testWorkflow(t, ""))

	out := buf.String()
	assert.Contains(t, out, `Workflow storage-acl for "lake"`)
	assert.Contains(t, out, "1. revoke-acl-entries")
	assert.Contains(t, out, "Total: 2 tasks")
	assert.Equal(t, 2, p.Counts()[workflow.TaskPending])
}

func TestTaskProgress_SuccessfulRun(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewTaskProgress(buf)
	wf := testWorkflow(t, "")
	p.PrintPlan("lake", wf)

	req := &deploy.Request{Name: "lake", Kind: deploy.KindStorageACL}
	req.SetOutput(deploy.OutputACLGranted, "2")
	result, err := workflow.NewRunner(workflow.Options{Observer: p}).Run(context.Background(), wf, req)
	require.NoError(t, err)
	p.PrintSummary(result, req.Outputs)

	out := buf.String()
	assert.Contains(t, out, "◐ Starting revoke-acl-entries...")
	assert.Contains(t, out, "● apply-acl-entries completed")
	assert.Contains(t, out, "Workflow completed successfully")
	assert.Contains(t, out, "acl_granted = 2")
	assert.Equal(t, 2, p.Counts()[workflow.TaskSucceeded])
}

func TestTaskProgress_FailedRunCountsSkipped(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewTaskProgress(buf)
	wf := testWorkflow(t, "revoke-acl-entries")
	p.PrintPlan("lake", wf)

	result, err := workflow.NewRunner(workflow.Options{Observer: p}).Run(context.Background(), wf, &deploy.Request{Name: "lake"})
	require.Error(t, err)
	p.PrintSummary(result, nil)

	out := buf.String()
	assert.Contains(t, out, "✗ revoke-acl-entries failed")
	assert.Contains(t, out, "Workflow failed")
	assert.Contains(t, out, "1 failed, ◌ 1 skipped")
	assert.NotContains(t, out, "Outputs:")
}

func TestTaskProgress_UnplannedTask(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewTaskProgress(buf)

	p.TaskStarted("ad-hoc")
	p.TaskFinished(&workflow.TaskResult{Name: "ad-hoc", Status: workflow.TaskSkipped, Duration: time.Second})

	assert.Contains(t, buf.String(), "◌ ad-hoc skipped")
	assert.Equal(t, 1, p.Counts()[workflow.TaskSkipped])
}
