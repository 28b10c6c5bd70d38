package acl

import (
	"context"
	"log/slog"

	"github.com/davidthor/platctl/pkg/command"
	"github.com/davidthor/platctl/pkg/errors"
	"github.com/davidthor/platctl/pkg/identity"
)

// PrincipalResolver is the part of the identity resolver the propagator uses.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, ref identity.Ref) (*identity.Principal, error)
	GroupMembers(ctx context.Context, group identity.Ref) ([]identity.GroupMember, error)
}

// Propagator grants and revokes access entries. The storage service is the
// source of truth; nothing is recorded locally.
type Propagator struct {
	resolver PrincipalResolver
	exec     command.Executor
	logger   *slog.Logger
}

// NewPropagator creates a propagator.
func NewPropagator(resolver PrincipalResolver, exec command.Executor, logger *slog.Logger) *Propagator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Propagator{resolver: resolver, exec: exec, logger: logger}
}

// Apply grants perms on loc to the referenced principal. With recursive set
// the storage service propagates the entry to every descendant; otherwise
// only the node's own ACL is rewritten. Apply is additive: an existing entry
// for the same principal is replaced and other entries are kept.
func (p *Propagator) Apply(ctx context.Context, loc Location, ref identity.Ref, perms string, recursive bool) (*Entry, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	if err := ValidatePermissions(perms); err != nil {
		return nil, err
	}

	entry, err := p.entryFor(ctx, loc, ref)
	if err != nil {
		return nil, err
	}
	if entry.PrincipalType == "" {
		if entry.PrincipalType, err = p.probeType(ctx, entry.Principal); err != nil {
			return nil, err
		}
	}
	entry.Permissions = perms
	entry.Recursive = recursive

	if recursive {
		cmd := locate(command.New(command.VerbACLUpdateRecursive), loc).With(command.FlagACL, entry.spec())
		if _, err := command.Run(ctx, p.exec, cmd); err != nil {
			return nil, err
		}
		p.logger.Info("applied ACL entry recursively", "location", loc.String(), "principal", entry.Principal, "permissions", perms)
		return entry, nil
	}

	terms, err := p.show(ctx, loc)
	if err != nil {
		return nil, err
	}
	updated := merge(terms, *entry)

	cmd := locate(command.New(command.VerbACLSet), loc).With(command.FlagACL, FormatACL(updated))
	if _, err := command.Run(ctx, p.exec, cmd); err != nil {
		return nil, err
	}
	p.logger.Info("applied ACL entry", "location", loc.String(), "principal", entry.Principal, "permissions", perms)
	return entry, nil
}

// Remove revokes the principal's entry on loc and every descendant. Removal
// is always recursive; the storage service offers no single-node removal.
// A bare object id removes both the user and the group entry for it.
func (p *Propagator) Remove(ctx context.Context, loc Location, ref identity.Ref) error {
	if err := loc.Validate(); err != nil {
		return err
	}
	entry, err := p.entryFor(ctx, loc, ref)
	if err != nil {
		return err
	}

	cmd := locate(command.New(command.VerbACLRemoveRecursive), loc).With(command.FlagACL, entry.removalSpec())
	if _, err := command.Run(ctx, p.exec, cmd); err != nil {
		return err
	}
	p.logger.Info("removed ACL entry recursively", "location", loc.String(), "principal", entry.Principal)
	return nil
}

// Entries returns the named access entries on a single node.
func (p *Propagator) Entries(ctx context.Context, loc Location) ([]Entry, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	terms, err := p.show(ctx, loc)
	if err != nil {
		return nil, err
	}
	return named(loc.normalizedPath(), terms), nil
}

// GrantOwnerToGroupMembers adds every user in group as an owner of the app
// registration. Members that are not users are skipped; nested groups are not
// expanded. It returns the number of grants issued.
func (p *Propagator) GrantOwnerToGroupMembers(ctx context.Context, app identity.Ref, group identity.Ref) (int, error) {
	target, err := p.resolver.ResolvePrincipal(ctx, app)
	if err != nil {
		return 0, err
	}
	members, err := p.resolver.GroupMembers(ctx, group)
	if err != nil {
		return 0, err
	}

	granted := 0
	for _, m := range members {
		if !m.IsUser() {
			p.logger.Warn("skipping non-user group member",
				"group", group.String(),
				"member", m.ObjectID,
				"display_name", m.DisplayName,
				"type", m.ObjectType,
			)
			continue
		}
		if err := p.addOwner(ctx, target.ObjectID, m.ObjectID); err != nil {
			return granted, err
		}
		granted++
	}

	p.logger.Info("granted app ownership to group members", "app", target.ObjectID, "group", group.String(), "grants", granted)
	return granted, nil
}

// GrantOwner adds a single principal as owner of the app registration.
func (p *Propagator) GrantOwner(ctx context.Context, app identity.Ref, owner identity.Ref) error {
	target, err := p.resolver.ResolvePrincipal(ctx, app)
	if err != nil {
		return err
	}
	o, err := p.resolver.ResolvePrincipal(ctx, owner)
	if err != nil {
		return err
	}
	return p.addOwner(ctx, target.ObjectID, o.ObjectID)
}

func (p *Propagator) addOwner(ctx context.Context, app, owner identity.ObjectID) error {
	cmd := command.New(command.VerbAppOwnerAdd).
		With(command.FlagID, string(app)).
		With(command.FlagOwnerObjectID, string(owner))
	_, err := command.Run(ctx, p.exec, cmd)
	return err
}

func (p *Propagator) show(ctx context.Context, loc Location) ([]Term, error) {
	var out struct {
		ACL string `json:"acl"`
	}
	if err := command.RunInto(ctx, p.exec, locate(command.New(command.VerbACLShow), loc), &out); err != nil {
		return nil, err
	}
	return ParseACL(out.ACL)
}

// entryFor resolves ref into the entry skeleton for loc. Resolution failures
// abort before any ACL is touched. The entry type is left empty when the
// directory did not report the object's type, as for a bare object id.
func (p *Propagator) entryFor(ctx context.Context, loc Location, ref identity.Ref) (*Entry, error) {
	principal, err := p.resolver.ResolvePrincipal(ctx, ref)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, "cannot resolve ACL principal "+ref.String(), err)
	}

	var t PrincipalType
	switch principal.Type {
	case "":
	case identity.ObjectTypeGroup:
		t = PrincipalGroup
	default:
		t = PrincipalUser
	}
	return &Entry{
		Path:          loc.normalizedPath(),
		Principal:     principal.ObjectID,
		PrincipalType: t,
	}, nil
}

// probeType asks the directory whether id is a group. Anything else is
// addressed with a user entry.
func (p *Propagator) probeType(ctx context.Context, id identity.ObjectID) (PrincipalType, error) {
	_, err := p.resolver.ResolvePrincipal(ctx, identity.Ref{Kind: identity.KindGroup, Value: string(id)})
	switch {
	case err == nil:
		return PrincipalGroup, nil
	case errors.Is(err, errors.ErrCodeNotFound):
		return PrincipalUser, nil
	}
	return "", errors.Wrap(errors.ErrCodeValidation, "cannot determine ACL entry type for "+string(id), err)
}

func locate(cmd command.Command, loc Location) command.Command {
	return cmd.
		With(command.FlagAccountName, loc.Account).
		With(command.FlagFileSystem, loc.FileSystem).
		With(command.FlagPath, loc.normalizedPath()).
		With(command.FlagAuthMode, "login")
}
