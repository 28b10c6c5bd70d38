// Package commandtest provides a scripted command.Executor for tests.
package commandtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/davidthor/platctl/pkg/command"
)

// Handler answers a single command.
type Handler func(cmd command.Command) (*command.Result, error)

// Fake is a command.Executor whose answers are scripted per verb. Queued
// responses are consumed first; after that the verb's handler answers.
// Unscripted verbs are rejected.
type Fake struct {
	mu       sync.Mutex
	handlers map[command.Verb]Handler
	queues   map[command.Verb][]Handler
	calls    []command.Command
}

// New creates an empty fake.
func New() *Fake {
	return &Fake{
		handlers: make(map[command.Verb]Handler),
		queues:   make(map[command.Verb][]Handler),
	}
}

// On sets the handler for a verb.
func (f *Fake) On(verb command.Verb, h Handler) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[verb] = h
	return f
}

// Reply answers every call of verb with v as payload.
func (f *Fake) Reply(verb command.Verb, v interface{}) *Fake {
	return f.On(verb, func(command.Command) (*command.Result, error) {
		return command.OK(v)
	})
}

// Reject answers every call of verb with a rejected result.
func (f *Fake) Reject(verb command.Verb, message string) *Fake {
	return f.On(verb, func(command.Command) (*command.Result, error) {
		return command.Failed("%s", message), nil
	})
}

// Unreachable makes every call of verb fail at the transport level.
func (f *Fake) Unreachable(verb command.Verb) *Fake {
	return f.On(verb, func(command.Command) (*command.Result, error) {
		return nil, fmt.Errorf("control plane unreachable")
	})
}

// Queue appends one-shot payload answers for verb, consumed in order.
func (f *Fake) Queue(verb command.Verb, payloads ...interface{}) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range payloads {
		p := p
		f.queues[verb] = append(f.queues[verb], func(command.Command) (*command.Result, error) {
			return command.OK(p)
		})
	}
	return f
}

// Execute implements command.Executor.
func (f *Fake) Execute(ctx context.Context, cmd command.Command) (*command.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	var h Handler
	if q := f.queues[cmd.Verb]; len(q) > 0 {
		h = q[0]
		f.queues[cmd.Verb] = q[1:]
	} else {
		h = f.handlers[cmd.Verb]
	}
	f.mu.Unlock()

	if h == nil {
		return command.Failed("unscripted command: %s", cmd), nil
	}
	return h(cmd)
}

// Calls returns every command received, in order.
func (f *Fake) Calls() []command.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]command.Command, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo returns the commands received for one verb.
func (f *Fake) CallsTo(verb command.Verb) []command.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []command.Command
	for _, c := range f.calls {
		if c.Verb == verb {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many times verb was executed.
func (f *Fake) Count(verb command.Verb) int {
	return len(f.CallsTo(verb))
}

var _ command.Executor = (*Fake)(nil)
