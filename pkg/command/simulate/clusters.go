package simulate

import (
	"encoding/json"
	"strings"

	"github.com/davidthor/platctl/pkg/command"
	"github.com/google/uuid"
)

// clusterState tracks one cluster. Transitional states advance on reads, so
// a poller observes PENDING for PendingPolls reads before the next state.
type clusterState struct {
	Cluster
	target    string
	remaining int
}

func newClusterState(c Cluster) *clusterState {
	if c.PendingPolls <= 0 {
		c.PendingPolls = 1
	}
	if c.State == "" {
		c.State = "TERMINATED"
	}
	c.State = strings.ToUpper(c.State)
	return &clusterState{Cluster: c}
}

func (c *clusterState) transition(via, target string) {
	c.State = via
	c.target = target
	c.remaining = c.PendingPolls
}

// observe returns the state seen by one read and advances transitions.
func (c *clusterState) observe() string {
	seen := c.State
	if c.target != "" {
		c.remaining--
		if c.remaining < 0 {
			c.State = c.target
			c.target = ""
			seen = c.State
		}
	}
	return seen
}

func (c *clusterState) payload(state string) map[string]interface{} {
	return map[string]interface{}{
		"cluster_id":   c.ID,
		"cluster_name": c.Name,
		"state":        state,
	}
}

func (cp *ControlPlane) findCluster(id string) *clusterState {
	for _, c := range cp.clusters {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (cp *ControlPlane) clusterByFlag(cmd command.Command) (*clusterState, *command.Result) {
	id, bad := flag(cmd, command.FlagClusterID)
	if bad != nil {
		return nil, bad
	}
	c := cp.findCluster(id)
	if c == nil {
		return nil, command.Failed("Cluster %s does not exist", id)
	}
	return c, nil
}

func (cp *ControlPlane) clusterList(command.Command) (*command.Result, error) {
	rows := make([]map[string]interface{}, 0, len(cp.clusters))
	for _, c := range cp.clusters {
		rows = append(rows, c.payload(c.State))
	}
	return command.OK(rows)
}

func (cp *ControlPlane) clusterGet(cmd command.Command) (*command.Result, error) {
	c, bad := cp.clusterByFlag(cmd)
	if bad != nil {
		return bad, nil
	}
	return command.OK(c.payload(c.observe()))
}

func decodeSpec(cmd command.Command) (map[string]interface{}, *command.Result) {
	body, bad := flag(cmd, command.FlagJSON)
	if bad != nil {
		return nil, bad
	}
	var spec map[string]interface{}
	if err := json.Unmarshal([]byte(body), &spec); err != nil {
		return nil, command.Failed("invalid cluster spec: %v", err)
	}
	return spec, nil
}

// clusterCreate creates and starts a cluster, as the service does.
func (cp *ControlPlane) clusterCreate(cmd command.Command) (*command.Result, error) {
	spec, bad := decodeSpec(cmd)
	if bad != nil {
		return bad, nil
	}
	name, _ := spec["cluster_name"].(string)
	if name == "" {
		return command.Failed("cluster_name is required"), nil
	}

	c := newClusterState(Cluster{ID: uuid.NewString(), Name: name, Spec: spec})
	c.transition("PENDING", "RUNNING")
	cp.clusters = append(cp.clusters, c)
	return command.OK(map[string]string{"cluster_id": c.ID})
}

// clusterEdit restarts a running cluster; a terminated cluster stays
// terminated.
func (cp *ControlPlane) clusterEdit(cmd command.Command) (*command.Result, error) {
	spec, bad := decodeSpec(cmd)
	if bad != nil {
		return bad, nil
	}
	id, _ := spec["cluster_id"].(string)
	c := cp.findCluster(id)
	if c == nil {
		return command.Failed("Cluster %s does not exist", id), nil
	}

	switch c.State {
	case "RUNNING":
		c.transition("RESTARTING", "RUNNING")
	case "TERMINATED":
	default:
		return command.Failed("Cluster %s is in unexpected state %s", id, c.State), nil
	}
	if name, ok := spec["cluster_name"].(string); ok && name != "" {
		c.Name = name
	}
	c.Spec = spec
	return command.OK(nil)
}

func (cp *ControlPlane) clusterStart(cmd command.Command) (*command.Result, error) {
	c, bad := cp.clusterByFlag(cmd)
	if bad != nil {
		return bad, nil
	}
	if c.State != "TERMINATED" {
		return command.Failed("Cluster %s is in unexpected state %s", c.ID, c.State), nil
	}
	if c.FailStart {
		c.transition("PENDING", "TERMINATED")
	} else {
		c.transition("PENDING", "RUNNING")
	}
	return command.OK(nil)
}

// clusterDelete terminates the cluster; the definition is kept.
func (cp *ControlPlane) clusterDelete(cmd command.Command) (*command.Result, error) {
	c, bad := cp.clusterByFlag(cmd)
	if bad != nil {
		return bad, nil
	}
	if c.State == "TERMINATED" {
		return command.OK(nil)
	}
	c.transition("TERMINATING", "TERMINATED")
	return command.OK(nil)
}

func (cp *ControlPlane) clusterPin(cmd command.Command) (*command.Result, error) {
	c, bad := cp.clusterByFlag(cmd)
	if bad != nil {
		return bad, nil
	}
	c.Pinned = true
	return command.OK(nil)
}

// ClusterState returns a cluster's current state without advancing it.
func (cp *ControlPlane) ClusterState(id string) string {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if c := cp.findCluster(id); c != nil {
		return c.State
	}
	return ""
}

// ClusterPinned reports whether a cluster is pinned.
func (cp *ControlPlane) ClusterPinned(id string) bool {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	c := cp.findCluster(id)
	return c != nil && c.Pinned
}
