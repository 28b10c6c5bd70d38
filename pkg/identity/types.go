// Package identity resolves directory principals (users, groups, service
// principals and app registrations) to stable object ids.
package identity

import (
	"fmt"
	"strings"

	"github.com/davidthor/platctl/pkg/errors"
)

// Kind is how a principal reference identifies its target.
type Kind string

const (
	KindObjectID         Kind = "object-id"
	KindEmail            Kind = "email"
	KindGroup            Kind = "group"
	KindServicePrincipal Kind = "service-principal"
	KindAppRegistration  Kind = "app-registration"
	KindCurrentUser      Kind = "current-user"
)

var kindAliases = map[string]Kind{
	"object-id":         KindObjectID,
	"objectid":          KindObjectID,
	"id":                KindObjectID,
	"email":             KindEmail,
	"user":              KindEmail,
	"group":             KindGroup,
	"service-principal": KindServicePrincipal,
	"sp":                KindServicePrincipal,
	"app-registration":  KindAppRegistration,
	"app":               KindAppRegistration,
	"current-user":      KindCurrentUser,
	"me":                KindCurrentUser,
}

// ParseKind parses a kind name, accepting the short aliases used on the
// command line.
func ParseKind(s string) (Kind, error) {
	if k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k, nil
	}
	return "", errors.ValidationError(fmt.Sprintf("unknown principal kind %q", s), map[string]interface{}{
		"kind": s,
	})
}

// ParseRef parses the command-line form of a reference, "<kind>:<value>",
// e.g. "email:ana@example.com" or "group:data-engineers". The current user
// needs no value.
func ParseRef(s string) (Ref, error) {
	kind, value, _ := strings.Cut(strings.TrimSpace(s), ":")
	k, err := ParseKind(kind)
	if err != nil {
		return Ref{}, err
	}
	ref := Ref{Kind: k, Value: value}
	if err := ref.Validate(); err != nil {
		return Ref{}, err
	}
	return ref, nil
}

// ObjectID is the directory's stable identifier for a principal.
type ObjectID string

// Ref points at a principal by kind and value. Refs are immutable inputs.
type Ref struct {
	Kind  Kind   `yaml:"kind" json:"kind" hcl:"kind"`
	Value string `yaml:"value,omitempty" json:"value,omitempty" hcl:"value,optional"`
}

// Validate checks that the reference is well formed.
func (r Ref) Validate() error {
	k, ok := kindAliases[strings.ToLower(string(r.Kind))]
	if !ok {
		return errors.ValidationError(fmt.Sprintf("unknown principal kind %q", r.Kind), nil)
	}
	if k != KindCurrentUser && strings.TrimSpace(r.Value) == "" {
		return errors.ValidationError(fmt.Sprintf("principal of kind %s requires a value", r.Kind), nil)
	}
	return nil
}

// normalized returns the reference with its kind alias expanded.
func (r Ref) normalized() Ref {
	if k, ok := kindAliases[strings.ToLower(string(r.Kind))]; ok {
		r.Kind = k
	}
	return r
}

func (r Ref) String() string {
	if r.Kind == KindCurrentUser {
		return string(r.Kind)
	}
	return fmt.Sprintf("%s:%s", r.Kind, r.Value)
}

// Principal is a resolved directory object.
type Principal struct {
	ObjectID    ObjectID
	DisplayName string
	// AppID is only set for service principals and app registrations.
	AppID string
	Type  ObjectType
}

// ObjectType is the directory's classification of an object.
type ObjectType string

const (
	ObjectTypeUser             ObjectType = "User"
	ObjectTypeGroup            ObjectType = "Group"
	ObjectTypeServicePrincipal ObjectType = "ServicePrincipal"
	ObjectTypeApplication      ObjectType = "Application"
)

// GroupMember is one direct member of a group.
type GroupMember struct {
	ObjectID    ObjectID
	DisplayName string
	ObjectType  ObjectType
}

// IsUser reports whether the member is a user. Only users may receive
// ownership grants.
func (m GroupMember) IsUser() bool {
	return m.ObjectType == ObjectTypeUser
}

// Status is the outcome of a lookup.
type Status int

const (
	StatusFound Status = iota
	StatusNotFound
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not-found"
	default:
		return "failed"
	}
}

// Lookup is the result of resolving a reference: Found, NotFound or Failed.
// NotFound is an expected outcome; Failed carries the error that stopped the
// lookup (transport, ambiguity, malformed output).
type Lookup struct {
	Status    Status
	Principal Principal
	Err       error
}

func found(p Principal) Lookup { return Lookup{Status: StatusFound, Principal: p} }

func notFound() Lookup { return Lookup{Status: StatusNotFound} }

func failed(err error) Lookup { return Lookup{Status: StatusFailed, Err: err} }
