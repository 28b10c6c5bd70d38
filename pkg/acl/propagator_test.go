package acl

import (
	"context"
	"testing"

	"github.com/davidthor/platctl/pkg/command"
	"github.com/davidthor/platctl/pkg/command/commandtest"
	"github.com/davidthor/platctl/pkg/command/simulate"
	"github.com/davidthor/platctl/pkg/errors"
	"github.com/davidthor/platctl/pkg/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seed = `
users:
  - {id: u-ana, display_name: Ana, mail: ana@example.com}
  - {id: u-bo, display_name: Bo, mail: bo@example.com}
  - {id: u-cy, display_name: Cy, mail: cy@example.com}
groups:
  - id: g-eng
    display_name: data-engineers
    members: [u-ana, u-bo, u-cy, g-sub, sp-etl]
  - id: g-sub
    display_name: subgroup
    members: [u-ana]
service_principals:
  - {id: sp-etl, app_id: app-etl, display_name: etl-runner}
applications:
  - {id: o-etl, app_id: app-etl, display_name: etl-runner}
file_systems:
  - account: lake
    name: raw
    paths: [sales/2024/q1, sales/2024/q2, finance]
    acls:
      finance: "user::rwx,group::r-x,other::---,user:u-bo:r--"
`

func newTestPropagator(t *testing.T) (*Propagator, *simulate.ControlPlane) {
	t.Helper()
	s, err := simulate.ParseSeed([]byte(seed))
	require.NoError(t, err)
	cp := simulate.New(s)
	return NewPropagator(identity.NewResolver(cp, nil), cp, nil), cp
}

var sales = Location{Account: "lake", FileSystem: "raw", Path: "/sales"}

func TestValidatePermissions(t *testing.T) {
	for _, ok := range []string{"rwx", "r-x", "---", "r--", "-w-"} {
		assert.NoError(t, ValidatePermissions(ok), ok)
	}
	for _, bad := range []string{"", "rw", "rwxr", "xwr", "RWX", "r x"} {
		err := ValidatePermissions(bad)
		assert.True(t, errors.Is(err, errors.ErrCodeValidation), bad)
	}
}

func TestParseAndFormatACL(t *testing.T) {
	terms, err := ParseACL("user::rwx,group::r-x,other::---,user:abc:r-x,default:group:g1:rwx")
	require.NoError(t, err)
	require.Len(t, terms, 5)
	assert.True(t, terms[4].Default)
	assert.Equal(t, "g1", terms[4].Qualifier)
	assert.Equal(t, "user::rwx,group::r-x,other::---,user:abc:r-x,default:group:g1:rwx", FormatACL(terms))

	_, err = ParseACL("user:rwx")
	assert.Error(t, err)
}

func TestApply_Recursive(t *testing.T) {
	p, cp := newTestPropagator(t)

	entry, err := p.Apply(context.Background(), sales, identity.Ref{Kind: identity.KindEmail, Value: "ana@example.com"}, "r-x", true)
	require.NoError(t, err)
	assert.Equal(t, identity.ObjectID("u-ana"), entry.Principal)
	assert.Equal(t, PrincipalUser, entry.PrincipalType)

	for _, path := range []string{"sales", "sales/2024", "sales/2024/q1", "sales/2024/q2"} {
		assert.Contains(t, cp.ACL("lake", "raw", path), "user:u-ana:r-x", path)
	}
	assert.NotContains(t, cp.ACL("lake", "raw", "finance"), "u-ana")
}

func TestApply_NonRecursiveMergesNodeOnly(t *testing.T) {
	p, cp := newTestPropagator(t)
	finance := Location{Account: "lake", FileSystem: "raw", Path: "finance"}

	_, err := p.Apply(context.Background(), finance, identity.Ref{Kind: identity.KindGroup, Value: "data-engineers"}, "r-x", false)
	require.NoError(t, err)
	assert.Equal(t, "user::rwx,group::r-x,other::---,user:u-bo:r--,group:g-eng:r-x", cp.ACL("lake", "raw", "finance"))

	// re-applying for an existing principal replaces its entry and keeps the rest
	_, err = p.Apply(context.Background(), finance, identity.Ref{Kind: identity.KindObjectID, Value: "u-bo"}, "rwx", false)
	require.NoError(t, err)
	assert.Equal(t, "user::rwx,group::r-x,other::---,user:u-bo:rwx,group:g-eng:r-x", cp.ACL("lake", "raw", "finance"))

	entries, err := p.Entries(context.Background(), finance)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestApply_NonRecursiveDoesNotTouchChildren(t *testing.T) {
	p, cp := newTestPropagator(t)

	_, err := p.Apply(context.Background(), sales, identity.Ref{Kind: identity.KindEmail, Value: "cy@example.com"}, "r--", false)
	require.NoError(t, err)
	assert.Contains(t, cp.ACL("lake", "raw", "sales"), "user:u-cy:r--")
	assert.NotContains(t, cp.ACL("lake", "raw", "sales/2024"), "u-cy")
}

func TestApply_UnresolvablePrincipalAbortsBeforeAnyChange(t *testing.T) {
	fake := commandtest.New().Reject(command.VerbUserShow, "does not exist")
	p := NewPropagator(identity.NewResolver(fake, nil), fake, nil)

	_, err := p.Apply(context.Background(), sales, identity.Ref{Kind: identity.KindEmail, Value: "ghost@example.com"}, "r-x", true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
	assert.Equal(t, 0, fake.Count(command.VerbACLUpdateRecursive))
	assert.Equal(t, 0, fake.Count(command.VerbACLShow))
}

func TestApply_InvalidInput(t *testing.T) {
	p, _ := newTestPropagator(t)
	ana := identity.Ref{Kind: identity.KindEmail, Value: "ana@example.com"}

	_, err := p.Apply(context.Background(), sales, ana, "rwxx", true)
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))

	_, err = p.Apply(context.Background(), Location{Path: "x"}, ana, "rwx", true)
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))
}

func TestRemove_IsAlwaysRecursive(t *testing.T) {
	p, cp := newTestPropagator(t)
	ana := identity.Ref{Kind: identity.KindEmail, Value: "ana@example.com"}
	root := Location{Account: "lake", FileSystem: "raw", Path: "/"}

	_, err := p.Apply(context.Background(), root, ana, "rwx", true)
	require.NoError(t, err)

	require.NoError(t, p.Remove(context.Background(), root, ana))
	for _, path := range cp.Paths("lake", "raw") {
		assert.NotContains(t, cp.ACL("lake", "raw", path), "u-ana", path)
	}
}

func TestRemove_ObjectIDRevokesGroupEntry(t *testing.T) {
	p, cp := newTestPropagator(t)
	root := Location{Account: "lake", FileSystem: "raw", Path: "/"}

	_, err := p.Apply(context.Background(), root, identity.Ref{Kind: identity.KindGroup, Value: "data-engineers"}, "r-x", true)
	require.NoError(t, err)
	require.Contains(t, cp.ACL("lake", "raw", "sales/2024/q1"), "group:g-eng:r-x")

	require.NoError(t, p.Remove(context.Background(), root, identity.Ref{Kind: identity.KindObjectID, Value: "g-eng"}))
	for _, path := range cp.Paths("lake", "raw") {
		assert.NotContains(t, cp.ACL("lake", "raw", path), "g-eng", path)
	}
	// named user entries of other principals survive
	assert.Contains(t, cp.ACL("lake", "raw", "finance"), "user:u-bo:r--")
}

func TestApply_ObjectIDOfGroupWritesGroupEntry(t *testing.T) {
	p, cp := newTestPropagator(t)
	finance := Location{Account: "lake", FileSystem: "raw", Path: "finance"}

	_, err := p.Apply(context.Background(), finance, identity.Ref{Kind: identity.KindGroup, Value: "data-engineers"}, "r-x", false)
	require.NoError(t, err)

	entry, err := p.Apply(context.Background(), finance, identity.Ref{Kind: identity.KindObjectID, Value: "g-eng"}, "rwx", false)
	require.NoError(t, err)
	assert.Equal(t, PrincipalGroup, entry.PrincipalType)
	assert.Equal(t, "user::rwx,group::r-x,other::---,user:u-bo:r--,group:g-eng:rwx", cp.ACL("lake", "raw", "finance"))
}

func TestApply_ObjectIDTypeLookupUnreachable(t *testing.T) {
	fake := commandtest.New().Unreachable(command.VerbGroupShow)
	p := NewPropagator(identity.NewResolver(fake, nil), fake, nil)

	_, err := p.Apply(context.Background(), sales, identity.Ref{Kind: identity.KindObjectID, Value: "oid-1"}, "r-x", true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))
	assert.Equal(t, 0, fake.Count(command.VerbACLUpdateRecursive))
}

func TestRemove_SendsPrincipalWithoutPermissions(t *testing.T) {
	fake := commandtest.New().Reply(command.VerbACLRemoveRecursive, nil)
	p := NewPropagator(identity.NewResolver(fake, nil), fake, nil)

	err := p.Remove(context.Background(), sales, identity.Ref{Kind: identity.KindObjectID, Value: "oid-1"})
	require.NoError(t, err)

	calls := fake.CallsTo(command.VerbACLRemoveRecursive)
	require.Len(t, calls, 1)
	acl, _ := calls[0].Flag(command.FlagACL)
	assert.Equal(t, "user:oid-1,group:oid-1", acl)
	path, _ := calls[0].Flag(command.FlagPath)
	assert.Equal(t, "sales", path)
}

func TestGrantOwnerToGroupMembers_OnlyUsers(t *testing.T) {
	p, cp := newTestPropagator(t)

	n, err := p.GrantOwnerToGroupMembers(context.Background(),
		identity.Ref{Kind: identity.KindAppRegistration, Value: "etl-runner"},
		identity.Ref{Kind: identity.KindGroup, Value: "data-engineers"},
	)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []string{"u-ana", "u-bo", "u-cy"}, cp.AppOwners("o-etl"))
}

func TestGrantOwnerToGroupMembers_StopsOnFailedGrant(t *testing.T) {
	fake := commandtest.New().
		Reply(command.VerbGroupShow, map[string]string{"id": "g-1", "displayName": "team"}).
		Reply(command.VerbGroupMemberList, []map[string]string{
			{"objectId": "u-1", "objectType": "#microsoft.graph.user"},
			{"objectId": "u-2", "objectType": "#microsoft.graph.user"},
		}).
		Queue(command.VerbAppOwnerAdd, nil).
		Reject(command.VerbAppOwnerAdd, "insufficient privileges")
	p := NewPropagator(identity.NewResolver(fake, nil), fake, nil)

	n, err := p.GrantOwnerToGroupMembers(context.Background(),
		identity.Ref{Kind: identity.KindObjectID, Value: "app-obj"},
		identity.Ref{Kind: identity.KindGroup, Value: "team"},
	)
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, fake.Count(command.VerbAppOwnerAdd))
}

func TestGrantOwner(t *testing.T) {
	p, cp := newTestPropagator(t)

	err := p.GrantOwner(context.Background(),
		identity.Ref{Kind: identity.KindObjectID, Value: "o-etl"},
		identity.Ref{Kind: identity.KindEmail, Value: "bo@example.com"},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"u-bo"}, cp.AppOwners("o-etl"))
}
