package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/davidthor/platctl/pkg/deploy"
	"github.com/davidthor/platctl/pkg/errors"
)

// TaskStatus is the outcome of a task in one run.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// TaskResult contains the result of running a single task.
type TaskResult struct {
	Name     string
	Status   TaskStatus
	Duration time.Duration
	Error    error
}

// Result contains the results of a workflow run.
type Result struct {
	Kind     deploy.Kind
	Success  bool
	Duration time.Duration
	Tasks    []*TaskResult
}

// Failed returns the failed task, if any.
func (r *Result) Failed() *TaskResult {
	for _, t := range r.Tasks {
		if t.Status == TaskFailed {
			return t
		}
	}
	return nil
}

// Observer is notified as tasks start and finish.
type Observer interface {
	TaskStarted(name string)
	TaskFinished(result *TaskResult)
}

// Options configures the runner.
type Options struct {
	// Observer receives task progress. Optional.
	Observer Observer

	// Metrics records task durations and outcomes. Optional.
	Metrics *Metrics

	Logger *slog.Logger
}

// Runner runs workflows one task at a time. The first failing task stops the
// run; completed tasks are not rolled back.
type Runner struct {
	options Options
}

// NewRunner creates a runner.
func NewRunner(options Options) *Runner {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Runner{options: options}
}

// Run executes wf against req. The result is returned even when the run
// fails; the error is the failing task's error wrapped as TASK_FAILED, or the
// context error when the run was cancelled between tasks.
func (r *Runner) Run(ctx context.Context, wf *Workflow, req *deploy.Request) (*Result, error) {
	startTime := time.Now()
	logger := r.options.Logger.With("workflow", string(wf.Kind), "request", req.Name)

	result := &Result{
		Kind:  wf.Kind,
		Tasks: make([]*TaskResult, len(wf.Tasks)),
	}
	for i, t := range wf.Tasks {
		result.Tasks[i] = &TaskResult{Name: t.Name(), Status: TaskPending}
	}

	finish := func(err error, from int) (*Result, error) {
		for _, tr := range result.Tasks[from:] {
			if tr.Status == TaskPending {
				tr.Status = TaskSkipped
			}
		}
		result.Success = err == nil
		result.Duration = time.Since(startTime)
		if r.options.Metrics != nil {
			r.options.Metrics.observeRun(wf.Kind, result)
		}
		return result, err
	}

	for i, task := range wf.Tasks {
		if err := ctx.Err(); err != nil {
			logger.Warn("workflow cancelled", "before_task", task.Name())
			return finish(err, i)
		}

		tr := result.Tasks[i]
		tr.Status = TaskRunning
		if r.options.Observer != nil {
			r.options.Observer.TaskStarted(tr.Name)
		}
		logger.Info("running task", "task", tr.Name)

		taskStart := time.Now()
		err := task.Run(ctx, req)
		tr.Duration = time.Since(taskStart)

		if err != nil {
			tr.Status = TaskFailed
			tr.Error = err
		} else {
			tr.Status = TaskSucceeded
		}

		if r.options.Metrics != nil {
			r.options.Metrics.observeTask(wf.Kind, tr)
		}
		if r.options.Observer != nil {
			r.options.Observer.TaskFinished(tr)
		}

		if err != nil {
			logger.Error("task failed", "task", tr.Name, "duration", tr.Duration, "error", err)
			return finish(errors.TaskError(tr.Name, err), i+1)
		}
		logger.Info("task completed", "task", tr.Name, "duration", tr.Duration)
	}

	return finish(nil, len(wf.Tasks))
}
