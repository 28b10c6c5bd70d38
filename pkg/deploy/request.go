// Package deploy defines the deployment request shared by the tasks of one
// workflow run.
package deploy

import (
	"fmt"
	"strings"

	"github.com/davidthor/platctl/pkg/acl"
	"github.com/davidthor/platctl/pkg/cluster"
	"github.com/davidthor/platctl/pkg/errors"
	"github.com/davidthor/platctl/pkg/identity"
)

// Kind selects the workflow a request runs.
type Kind string

const (
	KindCluster    Kind = "cluster"
	KindIdentity   Kind = "identity"
	KindStorageACL Kind = "storage-acl"
)

// Kinds lists every request kind.
var Kinds = []Kind{KindCluster, KindIdentity, KindStorageACL}

// DesiredState is the run state a cluster should be left in.
type DesiredState string

const (
	DesiredUnchanged  DesiredState = ""
	DesiredRunning    DesiredState = "running"
	DesiredTerminated DesiredState = "terminated"
)

// Output keys written by tasks.
const (
	OutputClusterID          = "cluster_id"
	OutputClusterCreated     = "cluster_created"
	OutputClusterState       = "cluster_state"
	OutputAppID              = "app_id"
	OutputAppObjectID        = "app_object_id"
	OutputServicePrincipalID = "service_principal_id"
	OutputOwnerGrants        = "owner_grants"
	OutputACLGranted         = "acl_granted"
	OutputACLRevoked         = "acl_revoked"
)

// Request is the mutable context of one workflow run. Tasks read their
// inputs from it and record what they created in it; that is the only way
// one task sees another's effects besides re-querying the control plane.
type Request struct {
	Name      string `yaml:"name" json:"name" hcl:"name"`
	Kind      Kind   `yaml:"kind" json:"kind" hcl:"kind"`
	Recursive bool   `yaml:"recursive,omitempty" json:"recursive,omitempty" hcl:"recursive,optional"`

	Cluster  *ClusterSpec  `yaml:"cluster,omitempty" json:"cluster,omitempty" hcl:"cluster,block"`
	Identity *IdentitySpec `yaml:"identity,omitempty" json:"identity,omitempty" hcl:"identity,block"`
	Storage  *StorageSpec  `yaml:"storage,omitempty" json:"storage,omitempty" hcl:"storage,block"`

	Outputs map[string]string `yaml:"outputs,omitempty" json:"outputs,omitempty"`
}

// ClusterSpec is the desired cluster.
type ClusterSpec struct {
	Name string `yaml:"name" json:"name" hcl:"name"`

	// ID is set by tasks once the cluster is known.
	ID string `yaml:"id,omitempty" json:"id,omitempty" hcl:"id,optional"`

	SparkVersion           string            `yaml:"spark_version" json:"spark_version" hcl:"spark_version"`
	NodeType               string            `yaml:"node_type" json:"node_type" hcl:"node_type"`
	DriverNodeType         string            `yaml:"driver_node_type,omitempty" json:"driver_node_type,omitempty" hcl:"driver_node_type,optional"`
	NumWorkers             int               `yaml:"num_workers" json:"num_workers" hcl:"num_workers,optional"`
	AutoterminationMinutes int               `yaml:"autotermination_minutes,omitempty" json:"autotermination_minutes,omitempty" hcl:"autotermination_minutes,optional"`
	SparkConf              map[string]string `yaml:"spark_conf,omitempty" json:"spark_conf,omitempty" hcl:"spark_conf,optional"`
	Tags                   map[string]string `yaml:"tags,omitempty" json:"tags,omitempty" hcl:"tags,optional"`
	Pinned                 bool              `yaml:"pinned,omitempty" json:"pinned,omitempty" hcl:"pinned,optional"`
	DesiredState           DesiredState      `yaml:"desired_state,omitempty" json:"desired_state,omitempty" hcl:"desired_state,optional"`
}

// Spec converts the request's cluster into the control-plane definition.
func (c *ClusterSpec) Spec() cluster.Spec {
	return cluster.Spec{
		ClusterID:              c.ID,
		Name:                   c.Name,
		SparkVersion:           c.SparkVersion,
		NodeType:               c.NodeType,
		DriverNodeType:         c.DriverNodeType,
		NumWorkers:             c.NumWorkers,
		AutoterminationMinutes: c.AutoterminationMinutes,
		SparkConf:              c.SparkConf,
		CustomTags:             c.Tags,
	}
}

// IdentitySpec is the desired app registration and its owners.
type IdentitySpec struct {
	DisplayName string `yaml:"display_name" json:"display_name" hcl:"display_name"`

	// SkipServicePrincipal leaves the app registration without a service
	// principal.
	SkipServicePrincipal bool `yaml:"skip_service_principal,omitempty" json:"skip_service_principal,omitempty" hcl:"skip_service_principal,optional"`

	OwnerGroups []identity.Ref `yaml:"owner_groups,omitempty" json:"owner_groups,omitempty" hcl:"owner_group,block"`
	Owners      []identity.Ref `yaml:"owners,omitempty" json:"owners,omitempty" hcl:"owner,block"`

	// Set by tasks.
	AppID              string `yaml:"-" json:"app_id,omitempty"`
	ObjectID           string `yaml:"-" json:"object_id,omitempty"`
	ServicePrincipalID string `yaml:"-" json:"service_principal_id,omitempty"`
}

// StorageSpec is the set of ACL changes on one file system.
type StorageSpec struct {
	Account    string       `yaml:"account" json:"account" hcl:"account"`
	FileSystem string       `yaml:"file_system" json:"file_system" hcl:"file_system"`
	Grant      []ACLRequest `yaml:"grant,omitempty" json:"grant,omitempty" hcl:"grant,block"`
	Revoke     []ACLRequest `yaml:"revoke,omitempty" json:"revoke,omitempty" hcl:"revoke,block"`
}

// ACLRequest is one grant or revocation.
type ACLRequest struct {
	Path        string       `yaml:"path" json:"path" hcl:"path"`
	Principal   identity.Ref `yaml:"principal" json:"principal" hcl:"principal,block"`
	Permissions string       `yaml:"permissions,omitempty" json:"permissions,omitempty" hcl:"permissions,optional"`

	// Recursive overrides the request-level setting when set.
	Recursive *bool `yaml:"recursive,omitempty" json:"recursive,omitempty" hcl:"recursive,optional"`
}

// Location returns where the ACL request applies.
func (s *StorageSpec) Location(path string) acl.Location {
	return acl.Location{Account: s.Account, FileSystem: s.FileSystem, Path: path}
}

// IsRecursive resolves whether an ACL request propagates to descendants.
func (r *Request) IsRecursive(a ACLRequest) bool {
	if a.Recursive != nil {
		return *a.Recursive
	}
	return r.Recursive
}

// SetOutput records a value produced by a task.
func (r *Request) SetOutput(key, value string) {
	if r.Outputs == nil {
		r.Outputs = make(map[string]string)
	}
	r.Outputs[key] = value
}

// Output returns a value recorded by an earlier task.
func (r *Request) Output(key string) string {
	return r.Outputs[key]
}

// Validate checks that the request carries what its kind needs.
func (r *Request) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(r.Name) == "" {
		add("name is required")
	}

	switch r.Kind {
	case KindCluster:
		if r.Cluster == nil {
			add("kind %s requires a cluster block", r.Kind)
			break
		}
		c := r.Cluster
		if c.Name == "" {
			add("cluster.name is required")
		}
		if c.SparkVersion == "" {
			add("cluster.spark_version is required")
		}
		if c.NodeType == "" {
			add("cluster.node_type is required")
		}
		if c.NumWorkers < 0 {
			add("cluster.num_workers must not be negative")
		}
		switch c.DesiredState {
		case DesiredUnchanged, DesiredRunning, DesiredTerminated:
		default:
			add("cluster.desired_state must be %q or %q, got %q", DesiredRunning, DesiredTerminated, c.DesiredState)
		}

	case KindIdentity:
		if r.Identity == nil {
			add("kind %s requires an identity block", r.Kind)
			break
		}
		if r.Identity.DisplayName == "" {
			add("identity.display_name is required")
		}
		for i, ref := range r.Identity.OwnerGroups {
			if err := ref.Validate(); err != nil {
				add("identity.owner_groups[%d]: %s", i, err)
			}
		}
		for i, ref := range r.Identity.Owners {
			if err := ref.Validate(); err != nil {
				add("identity.owners[%d]: %s", i, err)
			}
		}

	case KindStorageACL:
		if r.Storage == nil {
			add("kind %s requires a storage block", r.Kind)
			break
		}
		if err := r.Storage.Location("").Validate(); err != nil {
			add("storage: %s", err)
		}
		for i, g := range r.Storage.Grant {
			validateACL(add, fmt.Sprintf("storage.grant[%d]", i), g, true)
		}
		for i, rv := range r.Storage.Revoke {
			validateACL(add, fmt.Sprintf("storage.revoke[%d]", i), rv, false)
		}

	default:
		add("unknown kind %q", r.Kind)
	}

	if len(problems) > 0 {
		return errors.ValidationError(fmt.Sprintf("invalid request %q: %s", r.Name, strings.Join(problems, "; ")), map[string]interface{}{
			"problems": problems,
		})
	}
	return nil
}

func validateACL(add func(string, ...interface{}), at string, a ACLRequest, grant bool) {
	if a.Path == "" {
		add("%s.path is required", at)
	}
	if err := a.Principal.Validate(); err != nil {
		add("%s.principal: %s", at, err)
	}
	if grant {
		if err := acl.ValidatePermissions(a.Permissions); err != nil {
			add("%s.permissions: %s", at, err)
		}
	}
}
