package simulate

import (
	"sort"
	"strings"

	"github.com/davidthor/platctl/pkg/command"
)

const defaultACL = "user::rwx,group::r-x,other::---"

// namespace is one file system's node tree, keyed by normalized path.
type namespace struct {
	acls map[string]string
}

func nsKey(account, fs string) string {
	return account + "/" + fs
}

func cleanPath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return "/"
	}
	return p
}

func newNamespace(fs FileSystem) *namespace {
	ns := &namespace{acls: map[string]string{"/": defaultACL}}
	for _, p := range fs.Paths {
		ns.add(cleanPath(p))
	}
	for p, acl := range fs.ACLs {
		p = cleanPath(p)
		ns.add(p)
		ns.acls[p] = acl
	}
	return ns
}

// add creates a node and its missing parents.
func (ns *namespace) add(p string) {
	if p == "/" {
		return
	}
	parts := strings.Split(p, "/")
	for i := range parts {
		node := strings.Join(parts[:i+1], "/")
		if _, ok := ns.acls[node]; !ok {
			ns.acls[node] = defaultACL
		}
	}
}

// subtree returns p and all of its descendants, sorted.
func (ns *namespace) subtree(p string) []string {
	var out []string
	for node := range ns.acls {
		if p == "/" || node == p || strings.HasPrefix(node, p+"/") {
			out = append(out, node)
		}
	}
	sort.Strings(out)
	return out
}

type aclTerm struct {
	scope     string
	kind      string
	qualifier string
	perms     string
}

func parseTerms(s string) []aclTerm {
	var out []aclTerm
	for _, raw := range strings.Split(s, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		var t aclTerm
		if strings.HasPrefix(raw, "default:") {
			t.scope = "default"
			raw = strings.TrimPrefix(raw, "default:")
		}
		parts := strings.SplitN(raw, ":", 3)
		t.kind = parts[0]
		if len(parts) > 1 {
			t.qualifier = parts[1]
		}
		if len(parts) > 2 {
			t.perms = parts[2]
		}
		out = append(out, t)
	}
	return out
}

func formatTerms(terms []aclTerm) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		s := t.kind + ":" + t.qualifier + ":" + t.perms
		if t.scope != "" {
			s = t.scope + ":" + s
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ",")
}

func (t aclTerm) sameTarget(o aclTerm) bool {
	return t.scope == o.scope && t.kind == o.kind && t.qualifier == o.qualifier
}

func (cp *ControlPlane) locate(cmd command.Command) (*namespace, string, *command.Result) {
	account, bad := flag(cmd, command.FlagAccountName)
	if bad != nil {
		return nil, "", bad
	}
	fs, bad := flag(cmd, command.FlagFileSystem)
	if bad != nil {
		return nil, "", bad
	}
	ns, ok := cp.namespaces[nsKey(account, fs)]
	if !ok {
		return nil, "", command.Failed("The specified filesystem %s does not exist in account %s.", fs, account)
	}
	p, _ := cmd.Flag(command.FlagPath)
	p = cleanPath(p)
	if _, ok := ns.acls[p]; !ok {
		return nil, "", command.Failed("The specified path %s does not exist.", p)
	}
	return ns, p, nil
}

func (cp *ControlPlane) aclShow(cmd command.Command) (*command.Result, error) {
	ns, p, bad := cp.locate(cmd)
	if bad != nil {
		return bad, nil
	}
	return command.OK(map[string]string{"acl": ns.acls[p], "path": p})
}

func (cp *ControlPlane) aclSet(cmd command.Command) (*command.Result, error) {
	ns, p, bad := cp.locate(cmd)
	if bad != nil {
		return bad, nil
	}
	acl, bad := flag(cmd, command.FlagACL)
	if bad != nil {
		return bad, nil
	}
	ns.acls[p] = formatTerms(parseTerms(acl))
	return command.OK(map[string]string{"acl": ns.acls[p], "path": p})
}

func (cp *ControlPlane) aclUpdateRecursive(cmd command.Command) (*command.Result, error) {
	ns, p, bad := cp.locate(cmd)
	if bad != nil {
		return bad, nil
	}
	acl, bad := flag(cmd, command.FlagACL)
	if bad != nil {
		return bad, nil
	}
	updates := parseTerms(acl)

	nodes := ns.subtree(p)
	for _, node := range nodes {
		terms := parseTerms(ns.acls[node])
		for _, u := range updates {
			replaced := false
			for i := range terms {
				if terms[i].sameTarget(u) {
					terms[i] = u
					replaced = true
				}
			}
			if !replaced {
				terms = append(terms, u)
			}
		}
		ns.acls[node] = formatTerms(terms)
	}
	return command.OK(changeSummary(len(nodes)))
}

func (cp *ControlPlane) aclRemoveRecursive(cmd command.Command) (*command.Result, error) {
	ns, p, bad := cp.locate(cmd)
	if bad != nil {
		return bad, nil
	}
	acl, bad := flag(cmd, command.FlagACL)
	if bad != nil {
		return bad, nil
	}
	removals := parseTerms(acl)

	nodes := ns.subtree(p)
	for _, node := range nodes {
		var kept []aclTerm
		for _, t := range parseTerms(ns.acls[node]) {
			drop := false
			for _, r := range removals {
				if t.sameTarget(r) {
					drop = true
				}
			}
			if !drop {
				kept = append(kept, t)
			}
		}
		ns.acls[node] = formatTerms(kept)
	}
	return command.OK(changeSummary(len(nodes)))
}

func changeSummary(n int) map[string]int {
	return map[string]int{
		"directoriesSuccessfulCount": n,
		"failureCount":               0,
	}
}

// ACL returns the ACL string of a node, or "" if the node does not exist.
func (cp *ControlPlane) ACL(account, fs, path string) string {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	ns, ok := cp.namespaces[nsKey(account, fs)]
	if !ok {
		return ""
	}
	return ns.acls[cleanPath(path)]
}

// Paths returns every node of a file system, sorted.
func (cp *ControlPlane) Paths(account, fs string) []string {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	ns, ok := cp.namespaces[nsKey(account, fs)]
	if !ok {
		return nil
	}
	return ns.subtree("/")
}
