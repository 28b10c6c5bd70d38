package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/davidthor/platctl/pkg/command"
	"github.com/davidthor/platctl/pkg/errors"
)

// payloadFields names the raw payload fields carrying each model field. The
// directory does not use one shape for every object type, so the mapping is
// kept per type rather than guessed.
type payloadFields struct {
	ID          string
	LegacyID    string
	DisplayName string
	AppID       string
}

var fieldTable = map[ObjectType]payloadFields{
	ObjectTypeUser:             {ID: "id", LegacyID: "objectId", DisplayName: "displayName"},
	ObjectTypeGroup:            {ID: "id", LegacyID: "objectId", DisplayName: "displayName"},
	ObjectTypeServicePrincipal: {ID: "id", LegacyID: "objectId", DisplayName: "displayName", AppID: "appId"},
	ObjectTypeApplication:      {ID: "id", LegacyID: "objectId", DisplayName: "displayName", AppID: "appId"},
}

// memberFields maps group member enumeration rows.
var memberFields = struct {
	ID, DisplayName, ObjectType string
}{ID: "objectId", DisplayName: "displayName", ObjectType: "objectType"}

// kindLookup describes how one principal kind is looked up.
type kindLookup struct {
	objectType ObjectType
	label      string
	show       command.Verb
	showFlag   string
	list       command.Verb
}

var kindTable = map[Kind]kindLookup{
	KindEmail:            {objectType: ObjectTypeUser, label: "user", show: command.VerbUserShow, showFlag: command.FlagID},
	KindGroup:            {objectType: ObjectTypeGroup, label: "group", show: command.VerbGroupShow, showFlag: command.FlagGroup},
	KindServicePrincipal: {objectType: ObjectTypeServicePrincipal, label: "service principal", show: command.VerbSPShow, showFlag: command.FlagID, list: command.VerbSPList},
	KindAppRegistration:  {objectType: ObjectTypeApplication, label: "app registration", show: command.VerbAppShow, showFlag: command.FlagID, list: command.VerbAppList},
}

// displayNameOrder is the order in which DisplayName probes object types.
var displayNameOrder = []Kind{KindEmail, KindServicePrincipal, KindGroup, KindAppRegistration}

// Resolver resolves principal references against the directory.
// It keeps no cache: repeated resolutions re-query the control plane.
type Resolver struct {
	exec   command.Executor
	logger *slog.Logger
}

// NewResolver creates a resolver backed by exec.
func NewResolver(exec command.Executor, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{exec: exec, logger: logger}
}

// Resolve returns the object id for ref, or a NOT_FOUND error when the
// directory has no such principal.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (ObjectID, error) {
	p, err := r.ResolvePrincipal(ctx, ref)
	if err != nil {
		return "", err
	}
	return p.ObjectID, nil
}

// ResolvePrincipal is Resolve returning the full principal.
func (r *Resolver) ResolvePrincipal(ctx context.Context, ref Ref) (*Principal, error) {
	l := r.Lookup(ctx, ref)
	switch l.Status {
	case StatusFound:
		return &l.Principal, nil
	case StatusNotFound:
		return nil, errors.NotFoundError(labelFor(ref.normalized().Kind), ref.Value)
	default:
		return nil, l.Err
	}
}

// Lookup resolves ref and reports the outcome without turning NotFound into
// an error.
func (r *Resolver) Lookup(ctx context.Context, ref Ref) Lookup {
	if err := ref.Validate(); err != nil {
		return failed(err)
	}
	ref = ref.normalized()

	switch ref.Kind {
	case KindObjectID:
		return found(Principal{ObjectID: ObjectID(ref.Value)})
	case KindCurrentUser:
		return r.currentUser(ctx)
	case KindEmail, KindGroup:
		return r.show(ctx, kindTable[ref.Kind], ref.Value)
	case KindServicePrincipal, KindAppRegistration:
		return r.listThenShow(ctx, kindTable[ref.Kind], ref.Value)
	}
	return failed(errors.ValidationError(fmt.Sprintf("unsupported principal kind %q", ref.Kind), nil))
}

func (r *Resolver) currentUser(ctx context.Context) Lookup {
	res, err := command.Run(ctx, r.exec, command.New(command.VerbSignedInUserShow))
	if err != nil {
		return failed(err)
	}
	p, err := decodePrincipal(ObjectTypeUser, res.Payload)
	if err != nil {
		return failed(err)
	}
	return found(p)
}

// show performs a single lookup by attribute. A rejected command means the
// principal does not exist.
func (r *Resolver) show(ctx context.Context, k kindLookup, value string) Lookup {
	cmd := command.New(k.show).With(k.showFlag, value)
	res, err := r.exec.Execute(ctx, cmd)
	if err != nil {
		return failed(errors.TransportError(string(cmd.Verb), err))
	}
	if !res.Success {
		r.logger.Debug("principal lookup rejected", "type", k.label, "value", value, "error", res.Error)
		return notFound()
	}
	p, err := decodePrincipal(k.objectType, res.Payload)
	if err != nil {
		return failed(err)
	}
	return found(p)
}

// listThenShow looks the value up as a display name first and falls back to
// treating it as an id.
func (r *Resolver) listThenShow(ctx context.Context, k kindLookup, value string) Lookup {
	cmd := command.New(k.list).With(command.FlagDisplayName, value)
	res, err := r.exec.Execute(ctx, cmd)
	if err != nil {
		return failed(errors.TransportError(string(cmd.Verb), err))
	}

	if res.Success {
		var rows []json.RawMessage
		if len(res.Payload) > 0 {
			if err := res.Decode(&rows); err != nil {
				return failed(errors.Wrap(errors.ErrCodeParse, fmt.Sprintf("failed to decode %s output", cmd.Verb), err))
			}
		}

		var matches []Principal
		for _, row := range rows {
			p, err := decodePrincipal(k.objectType, row)
			if err != nil {
				return failed(err)
			}
			// The list filter is a prefix match; keep exact names only.
			if p.DisplayName == value {
				matches = append(matches, p)
			}
		}

		switch len(matches) {
		case 0:
		case 1:
			return found(matches[0])
		default:
			return failed(errors.AmbiguousError(k.label, value, len(matches)))
		}
	} else {
		r.logger.Debug("display name lookup rejected, trying id", "type", k.label, "value", value, "error", res.Error)
	}

	return r.show(ctx, k, value)
}

// DisplayName returns the display name of an object of unknown type, probing
// users, service principals, groups and app registrations in that order. It
// returns "" when nothing matches; callers treat that as unknown.
func (r *Resolver) DisplayName(ctx context.Context, id ObjectID) string {
	for _, kind := range displayNameOrder {
		k := kindTable[kind]
		res, err := r.exec.Execute(ctx, command.New(k.show).With(k.showFlag, string(id)))
		if err != nil || !res.Success {
			continue
		}
		p, err := decodePrincipal(k.objectType, res.Payload)
		if err != nil {
			continue
		}
		if p.DisplayName != "" {
			return p.DisplayName
		}
	}
	return ""
}

// GroupMembers lists the direct members of a group. Nested groups are
// returned as members of type Group, not flattened.
func (r *Resolver) GroupMembers(ctx context.Context, group Ref) ([]GroupMember, error) {
	id, err := r.Resolve(ctx, group)
	if err != nil {
		return nil, err
	}

	var rows []map[string]interface{}
	cmd := command.New(command.VerbGroupMemberList).With(command.FlagGroup, string(id))
	if err := command.RunInto(ctx, r.exec, cmd, &rows); err != nil {
		return nil, err
	}

	members := make([]GroupMember, 0, len(rows))
	for _, row := range rows {
		m := GroupMember{
			ObjectID:    ObjectID(stringField(row, memberFields.ID)),
			DisplayName: stringField(row, memberFields.DisplayName),
			ObjectType:  normalizeObjectType(stringField(row, memberFields.ObjectType)),
		}
		if m.ObjectID == "" {
			return nil, errors.New(errors.ErrCodeParse, "group member without "+memberFields.ID).
				WithDetail("group", string(id))
		}
		members = append(members, m)
	}
	return members, nil
}

func decodePrincipal(t ObjectType, payload json.RawMessage) (Principal, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Principal{}, errors.Wrap(errors.ErrCodeParse, fmt.Sprintf("failed to decode %s", t), err)
	}

	f := fieldTable[t]
	id := stringField(raw, f.ID)
	if id == "" {
		id = stringField(raw, f.LegacyID)
	}
	if id == "" {
		return Principal{}, errors.New(errors.ErrCodeParse, fmt.Sprintf("%s payload has no %s or %s field", t, f.ID, f.LegacyID))
	}

	p := Principal{
		ObjectID:    ObjectID(id),
		DisplayName: stringField(raw, f.DisplayName),
		Type:        t,
	}
	if f.AppID != "" {
		p.AppID = stringField(raw, f.AppID)
	}
	return p, nil
}

func stringField(raw map[string]interface{}, name string) string {
	if name == "" {
		return ""
	}
	if s, ok := raw[name].(string); ok {
		return s
	}
	return ""
}

func normalizeObjectType(s string) ObjectType {
	switch strings.ToLower(strings.TrimPrefix(s, "#microsoft.graph.")) {
	case "user":
		return ObjectTypeUser
	case "group":
		return ObjectTypeGroup
	case "serviceprincipal":
		return ObjectTypeServicePrincipal
	case "application":
		return ObjectTypeApplication
	}
	return ObjectType(s)
}

func labelFor(k Kind) string {
	if l, ok := kindTable[k]; ok {
		return l.label
	}
	return string(k)
}
