package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/davidthor/platctl/pkg/workflow"
)

// TaskProgress prints a workflow's plan, one line per task transition, and a
// final summary. It implements workflow.Observer.
type TaskProgress struct {
	mu        sync.Mutex
	writer    io.Writer
	order     []string
	tasks     map[string]*workflow.TaskResult
	startTime time.Time

	green  *color.Color
	red    *color.Color
	yellow *color.Color
	faint  *color.Color
	bold   func(a ...interface{}) string
}

// NewTaskProgress creates a progress printer writing to w.
func NewTaskProgress(w io.Writer) *TaskProgress {
	return &TaskProgress{
		writer:    w,
		tasks:     make(map[string]*workflow.TaskResult),
		startTime: time.Now(),
		green:     color.New(color.FgGreen),
		red:       color.New(color.FgRed, color.Bold),
		yellow:    color.New(color.FgYellow),
		faint:     color.New(color.Faint),
		bold:      color.New(color.Bold).SprintFunc(),
	}
}

// PrintPlan lists the tasks a workflow will run, in order.
func (p *TaskProgress) PrintPlan(requestName string, wf *workflow.Workflow) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.order = wf.TaskNames()
	for _, name := range p.order {
		p.tasks[name] = &workflow.TaskResult{Name: name, Status: workflow.TaskPending}
	}

	fmt.Fprintln(p.writer)
	fmt.Fprintf(p.writer, "Workflow %s for %q:\n", p.bold(string(wf.Kind)), requestName)
	fmt.Fprintln(p.writer, strings.Repeat("─", 60))
	for i, name := range p.order {
		fmt.Fprintf(p.writer, "  %d. %s\n", i+1, name)
	}
	fmt.Fprintln(p.writer, strings.Repeat("─", 60))
	fmt.Fprintf(p.writer, "Total: %d tasks\n", len(p.order))
	fmt.Fprintln(p.writer)
}

func (p *TaskProgress) TaskStarted(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.track(&workflow.TaskResult{Name: name, Status: workflow.TaskRunning})
	fmt.Fprintf(p.writer, "%s Starting %s...\n", p.icon(workflow.TaskRunning), name)
}

func (p *TaskProgress) TaskFinished(result *workflow.TaskResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.track(result)
	switch result.Status {
	case workflow.TaskSucceeded:
		fmt.Fprintf(p.writer, "%s %s completed (%s)\n", p.icon(result.Status), result.Name, result.Duration.Round(time.Millisecond))
	case workflow.TaskFailed:
		line := fmt.Sprintf("%s %s failed", p.icon(result.Status), result.Name)
		if result.Error != nil {
			line += fmt.Sprintf(": %v", result.Error)
		}
		fmt.Fprintln(p.writer, line)
	case workflow.TaskSkipped:
		fmt.Fprintf(p.writer, "%s %s skipped\n", p.icon(result.Status), result.Name)
	}
}

func (p *TaskProgress) track(r *workflow.TaskResult) {
	if _, ok := p.tasks[r.Name]; !ok {
		p.order = append(p.order, r.Name)
	}
	p.tasks[r.Name] = r
}

// PrintSummary prints the outcome of the run and the outputs tasks recorded.
func (p *TaskProgress) PrintSummary(result *workflow.Result, outputs map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// skipped tasks are only visible in the result
	if result != nil {
		for _, t := range result.Tasks {
			p.track(t)
		}
	}
	counts := map[workflow.TaskStatus]int{}
	for _, name := range p.order {
		counts[p.tasks[name].Status]++
	}

	elapsed := time.Since(p.startTime).Round(time.Millisecond)
	if result != nil {
		elapsed = result.Duration.Round(time.Millisecond)
	}

	fmt.Fprintln(p.writer)
	fmt.Fprintln(p.writer, strings.Repeat("─", 60))

	if result != nil && result.Success {
		p.green.Fprintf(p.writer, "Workflow completed successfully in %s\n", elapsed)
		fmt.Fprintf(p.writer, "  ● %d tasks succeeded\n", counts[workflow.TaskSucceeded])
	} else {
		p.red.Fprintf(p.writer, "Workflow failed after %s\n", elapsed)
		fmt.Fprintf(p.writer, "  ● %d succeeded, ✗ %d failed, ◌ %d skipped\n",
			counts[workflow.TaskSucceeded], counts[workflow.TaskFailed], counts[workflow.TaskSkipped])
		for _, name := range p.order {
			if t := p.tasks[name]; t.Status == workflow.TaskFailed {
				fmt.Fprintf(p.writer, "\n  ✗ %s", name)
				if t.Error != nil {
					fmt.Fprintf(p.writer, ": %v", t.Error)
				}
				fmt.Fprintln(p.writer)
			}
		}
	}

	if len(outputs) > 0 {
		fmt.Fprintln(p.writer, "\nOutputs:")
		keys := make([]string, 0, len(outputs))
		for k := range outputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(p.writer, "  %s = %s\n", k, outputs[k])
		}
	}
}

// Counts returns how many tracked tasks are in each status.
func (p *TaskProgress) Counts() map[workflow.TaskStatus]int {
	p.mu.Lock()
	defer p.mu.Unlock()

	counts := map[workflow.TaskStatus]int{}
	for _, r := range p.tasks {
		counts[r.Status]++
	}
	return counts
}

func (p *TaskProgress) icon(status workflow.TaskStatus) string {
	switch status {
	case workflow.TaskPending:
		return "○"
	case workflow.TaskRunning:
		return p.yellow.Sprint("◐")
	case workflow.TaskSucceeded:
		return p.green.Sprint("●")
	case workflow.TaskFailed:
		return p.red.Sprint("✗")
	case workflow.TaskSkipped:
		return p.faint.Sprint("◌")
	default:
		return "?"
	}
}
