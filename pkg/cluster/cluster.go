// Package cluster reconciles compute clusters against their desired run
// state by issuing lifecycle commands and polling the observed state.
package cluster

import (
	"strings"
	"time"
)

// State is the reconciler's view of a cluster's lifecycle.
type State string

const (
	StateTerminated State = "Terminated"
	StatePending    State = "Pending"
	StateRunning    State = "Running"
	StateError      State = "Error"
)

// Terminal reports whether no further transition happens without a command.
func (s State) Terminal() bool {
	return s != StatePending
}

// stateTable maps control-plane states onto reconciler states. Unlisted
// states map to Error.
var stateTable = map[string]State{
	"TERMINATED":  StateTerminated,
	"PENDING":     StatePending,
	"RESTARTING":  StatePending,
	"TERMINATING": StatePending,
	"RUNNING":     StateRunning,
	"RESIZING":    StateRunning,
	"ERROR":       StateError,
	"UNKNOWN":     StateError,
}

// ParseState maps a control-plane state string.
func ParseState(raw string) State {
	if s, ok := stateTable[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return s
	}
	return StateError
}

// Handle is a cluster as last observed. Handles are only produced by the
// Reconciler; the state is always fetched, never assumed.
type Handle struct {
	ID           string
	Name         string
	State        State
	RawState     string
	StateMessage string
}

// Spec is the desired cluster definition sent on create and edit.
type Spec struct {
	ClusterID              string            `json:"cluster_id,omitempty"`
	Name                   string            `json:"cluster_name"`
	SparkVersion           string            `json:"spark_version"`
	NodeType               string            `json:"node_type_id"`
	DriverNodeType         string            `json:"driver_node_type_id,omitempty"`
	NumWorkers             int               `json:"num_workers"`
	AutoterminationMinutes int               `json:"autotermination_minutes,omitempty"`
	SparkConf              map[string]string `json:"spark_conf,omitempty"`
	CustomTags             map[string]string `json:"custom_tags,omitempty"`
}

// PollPolicy bounds a wait for a terminal state.
type PollPolicy struct {
	// Interval is the fixed delay between state fetches
	Interval time.Duration

	// MaxAttempts is the maximum number of state fetches per wait
	MaxAttempts int
}

// DefaultPollPolicy polls every 10 seconds for up to 30 minutes.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval:    10 * time.Second,
		MaxAttempts: 180,
	}
}

func (p PollPolicy) normalized() PollPolicy {
	d := DefaultPollPolicy()
	if p.Interval <= 0 {
		p.Interval = d.Interval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	return p
}

// payload is the control plane's cluster representation.
type payload struct {
	ClusterID    string `json:"cluster_id"`
	ClusterName  string `json:"cluster_name"`
	State        string `json:"state"`
	StateMessage string `json:"state_message"`
}

func (p payload) handle() *Handle {
	return &Handle{
		ID:           p.ClusterID,
		Name:         p.ClusterName,
		State:        ParseState(p.State),
		RawState:     p.State,
		StateMessage: p.StateMessage,
	}
}
