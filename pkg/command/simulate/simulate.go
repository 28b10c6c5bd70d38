// Package simulate implements an in-memory control plane: a directory, a
// cluster service and a hierarchical storage namespace. It answers the same
// commands as the real CLI so workflows can be rehearsed offline.
package simulate

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/davidthor/platctl/pkg/command"
	"github.com/davidthor/platctl/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Seed is the initial state of a simulated control plane.
type Seed struct {
	SignedInUser      string             `yaml:"signed_in_user"`
	Users             []User             `yaml:"users"`
	Groups            []Group            `yaml:"groups"`
	ServicePrincipals []ServicePrincipal `yaml:"service_principals"`
	Applications      []Application      `yaml:"applications"`
	Clusters          []Cluster          `yaml:"clusters"`
	FileSystems       []FileSystem       `yaml:"file_systems"`
}

// User is a directory user.
type User struct {
	ID                string `yaml:"id"`
	DisplayName       string `yaml:"display_name"`
	Mail              string `yaml:"mail"`
	UserPrincipalName string `yaml:"user_principal_name"`
}

// Group is a directory group. Members are object ids of users, groups or
// service principals.
type Group struct {
	ID          string   `yaml:"id"`
	DisplayName string   `yaml:"display_name"`
	Members     []string `yaml:"members"`
}

// ServicePrincipal is a directory service principal.
type ServicePrincipal struct {
	ID          string `yaml:"id"`
	AppID       string `yaml:"app_id"`
	DisplayName string `yaml:"display_name"`
}

// Application is an app registration.
type Application struct {
	ID          string   `yaml:"id"`
	AppID       string   `yaml:"app_id"`
	DisplayName string   `yaml:"display_name"`
	Owners      []string `yaml:"owners"`
}

// Cluster is a compute cluster.
type Cluster struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	State string `yaml:"state"`

	// FailStart makes every start end in TERMINATED.
	FailStart bool `yaml:"fail_start"`

	// PendingPolls is how many state reads a transition takes. Defaults to 1.
	PendingPolls int `yaml:"pending_polls"`

	Pinned bool                   `yaml:"pinned"`
	Spec   map[string]interface{} `yaml:"spec"`
}

// FileSystem is a storage container with a hierarchical namespace.
type FileSystem struct {
	Account string `yaml:"account"`
	Name    string `yaml:"name"`

	// Paths lists the nodes that exist; parents are implied.
	Paths []string `yaml:"paths"`

	// ACLs maps a path to its initial ACL string.
	ACLs map[string]string `yaml:"acls"`
}

// LoadSeed reads a YAML seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed parses a YAML seed document.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, errors.ParseError("seed", err)
	}
	return &seed, nil
}

type handler func(cmd command.Command) (*command.Result, error)

// ControlPlane is a simulated control plane. It is safe for concurrent use.
type ControlPlane struct {
	mu sync.Mutex

	signedInUser string
	users        []*User
	groups       []*Group
	sps          []*ServicePrincipal
	apps         []*Application
	clusters     []*clusterState
	namespaces   map[string]*namespace

	handlers map[command.Verb]handler
}

// New creates a control plane from seed. A nil seed yields an empty one.
func New(seed *Seed) *ControlPlane {
	if seed == nil {
		seed = &Seed{}
	}

	cp := &ControlPlane{
		signedInUser: seed.SignedInUser,
		namespaces:   make(map[string]*namespace),
	}
	for i := range seed.Users {
		u := seed.Users[i]
		cp.users = append(cp.users, &u)
	}
	for i := range seed.Groups {
		g := seed.Groups[i]
		cp.groups = append(cp.groups, &g)
	}
	for i := range seed.ServicePrincipals {
		sp := seed.ServicePrincipals[i]
		cp.sps = append(cp.sps, &sp)
	}
	for i := range seed.Applications {
		app := seed.Applications[i]
		cp.apps = append(cp.apps, &app)
	}
	for _, c := range seed.Clusters {
		cp.clusters = append(cp.clusters, newClusterState(c))
	}
	for _, fs := range seed.FileSystems {
		cp.namespaces[nsKey(fs.Account, fs.Name)] = newNamespace(fs)
	}

	cp.handlers = map[command.Verb]handler{
		command.VerbUserShow:           cp.userShow,
		command.VerbSignedInUserShow:   cp.signedInUserShow,
		command.VerbGroupShow:          cp.groupShow,
		command.VerbGroupMemberList:    cp.groupMemberList,
		command.VerbSPList:             cp.spList,
		command.VerbSPShow:             cp.spShow,
		command.VerbSPCreate:           cp.spCreate,
		command.VerbAppList:            cp.appList,
		command.VerbAppShow:            cp.appShow,
		command.VerbAppCreate:          cp.appCreate,
		command.VerbAppOwnerAdd:        cp.appOwnerAdd,
		command.VerbClusterList:        cp.clusterList,
		command.VerbClusterGet:         cp.clusterGet,
		command.VerbClusterCreate:      cp.clusterCreate,
		command.VerbClusterEdit:        cp.clusterEdit,
		command.VerbClusterStart:       cp.clusterStart,
		command.VerbClusterDelete:      cp.clusterDelete,
		command.VerbClusterPin:         cp.clusterPin,
		command.VerbACLShow:            cp.aclShow,
		command.VerbACLSet:             cp.aclSet,
		command.VerbACLUpdateRecursive: cp.aclUpdateRecursive,
		command.VerbACLRemoveRecursive: cp.aclRemoveRecursive,
	}
	return cp
}

// Execute implements command.Executor.
func (cp *ControlPlane) Execute(ctx context.Context, cmd command.Command) (*command.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, ok := cp.handlers[cmd.Verb]
	if !ok {
		return command.Failed("unsupported command: %s", cmd.Verb), nil
	}

	cp.mu.Lock()
	defer cp.mu.Unlock()
	return h(cmd)
}

func flag(cmd command.Command, name string) (string, *command.Result) {
	v, ok := cmd.Flag(name)
	if !ok || v == "" {
		return "", command.Failed("argument --%s is required", name)
	}
	return v, nil
}

var _ command.Executor = (*ControlPlane)(nil)
