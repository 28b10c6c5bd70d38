// Package acl propagates POSIX-style access control entries over a
// hierarchical storage namespace.
package acl

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/davidthor/platctl/pkg/errors"
	"github.com/davidthor/platctl/pkg/identity"
)

var permPattern = regexp.MustCompile(`^[r-][w-][x-]$`)

// ValidatePermissions checks an rwx permission triple such as "r-x".
func ValidatePermissions(perms string) error {
	if !permPattern.MatchString(perms) {
		return errors.ValidationError(fmt.Sprintf("invalid permissions %q, expected [r-][w-][x-]", perms), map[string]interface{}{
			"permissions": perms,
		})
	}
	return nil
}

// Location addresses a node in a storage account's namespace.
type Location struct {
	Account    string `yaml:"account" json:"account" hcl:"account"`
	FileSystem string `yaml:"file_system" json:"file_system" hcl:"file_system"`
	Path       string `yaml:"path" json:"path" hcl:"path"`
}

// Validate checks that the location is fully specified.
func (l Location) Validate() error {
	var missing []string
	if l.Account == "" {
		missing = append(missing, "account")
	}
	if l.FileSystem == "" {
		missing = append(missing, "file_system")
	}
	if len(missing) > 0 {
		return errors.ValidationError("storage location is missing "+strings.Join(missing, ", "), nil)
	}
	return nil
}

// normalizedPath returns the path relative to the file system root, "/" for
// the root itself.
func (l Location) normalizedPath() string {
	p := strings.Trim(l.Path, "/")
	if p == "" {
		return "/"
	}
	return p
}

func (l Location) String() string {
	return fmt.Sprintf("%s/%s/%s", l.Account, l.FileSystem, strings.TrimLeft(l.Path, "/"))
}

// PrincipalType is the qualifier type of a named ACL entry.
type PrincipalType string

const (
	PrincipalUser  PrincipalType = "user"
	PrincipalGroup PrincipalType = "group"
)

// Entry is one named access entry on a path.
type Entry struct {
	Path          string
	Principal     identity.ObjectID
	PrincipalType PrincipalType
	Permissions   string
	Recursive     bool
}

// spec renders the entry as an ACL spec term, e.g. "user:<oid>:r-x".
func (e Entry) spec() string {
	return fmt.Sprintf("%s:%s:%s", e.PrincipalType, e.Principal, e.Permissions)
}

// removalSpec renders the entry without permissions, as removal expects.
// An entry of unknown type names both qualifier types.
func (e Entry) removalSpec() string {
	if e.PrincipalType == "" {
		return fmt.Sprintf("%s:%s,%s:%s", PrincipalUser, e.Principal, PrincipalGroup, e.Principal)
	}
	return fmt.Sprintf("%s:%s", e.PrincipalType, e.Principal)
}

// Term is one parsed element of an ACL string.
type Term struct {
	Default   bool
	Type      string
	Qualifier string
	Perms     string
}

func (t Term) String() string {
	s := fmt.Sprintf("%s:%s:%s", t.Type, t.Qualifier, t.Perms)
	if t.Default {
		return "default:" + s
	}
	return s
}

func (t Term) sameTarget(o Term) bool {
	return t.Default == o.Default && t.Type == o.Type && t.Qualifier == o.Qualifier
}

// ParseACL parses a comma separated ACL string such as
// "user::rwx,group::r-x,other::---,user:<oid>:r-x".
func ParseACL(s string) ([]Term, error) {
	var out []Term
	for _, raw := range strings.Split(s, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		var t Term
		if strings.HasPrefix(raw, "default:") {
			t.Default = true
			raw = strings.TrimPrefix(raw, "default:")
		}
		parts := strings.Split(raw, ":")
		if len(parts) != 3 {
			return nil, errors.New(errors.ErrCodeParse, fmt.Sprintf("malformed ACL entry %q", raw))
		}
		t.Type, t.Qualifier, t.Perms = parts[0], parts[1], parts[2]
		out = append(out, t)
	}
	return out, nil
}

// FormatACL renders parsed terms back to ACL string form.
func FormatACL(terms []Term) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, ",")
}

// merge replaces the access term for the same principal, or appends it.
func merge(terms []Term, e Entry) []Term {
	add := Term{Type: string(e.PrincipalType), Qualifier: string(e.Principal), Perms: e.Permissions}
	out := make([]Term, 0, len(terms)+1)
	replaced := false
	for _, t := range terms {
		if t.sameTarget(add) {
			if !replaced {
				out = append(out, add)
				replaced = true
			}
			continue
		}
		out = append(out, t)
	}
	if !replaced {
		out = append(out, add)
	}
	return out
}

// named returns the named (qualified) access entries of an ACL.
func named(path string, terms []Term) []Entry {
	var out []Entry
	for _, t := range terms {
		if t.Default || t.Qualifier == "" {
			continue
		}
		out = append(out, Entry{
			Path:          path,
			Principal:     identity.ObjectID(t.Qualifier),
			PrincipalType: PrincipalType(t.Type),
			Permissions:   t.Perms,
		})
	}
	return out
}
