package simulate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/davidthor/platctl/pkg/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlane(t *testing.T) *ControlPlane {
	t.Helper()
	seed, err := LoadSeed("testdata/seed.yaml")
	require.NoError(t, err)
	return New(seed)
}

func run(t *testing.T, cp *ControlPlane, cmd command.Command) *command.Result {
	t.Helper()
	res, err := cp.Execute(context.Background(), cmd)
	require.NoError(t, err)
	return res
}

func decode(t *testing.T, res *command.Result) map[string]interface{} {
	t.Helper()
	require.True(t, res.Success, res.Error)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(res.Payload, &out))
	return out
}

func TestParseSeed_Invalid(t *testing.T) {
	_, err := ParseSeed([]byte("users: [unterminated"))
	require.Error(t, err)
}

func TestDirectoryLookups(t *testing.T) {
	cp := newTestPlane(t)

	user := decode(t, run(t, cp, command.New(command.VerbUserShow).With(command.FlagID, "ana@example.com")))
	assert.Equal(t, "u-ana", user["id"])

	me := decode(t, run(t, cp, command.New(command.VerbSignedInUserShow)))
	assert.Equal(t, "u-ops", me["id"])

	group := decode(t, run(t, cp, command.New(command.VerbGroupShow).With(command.FlagGroup, "data-engineers")))
	assert.Equal(t, "g-eng", group["id"])

	missing := run(t, cp, command.New(command.VerbUserShow).With(command.FlagID, "nobody@example.com"))
	assert.False(t, missing.Success)
	assert.NotEmpty(t, missing.Error)
}

func TestGroupMemberList(t *testing.T) {
	cp := newTestPlane(t)

	res := run(t, cp, command.New(command.VerbGroupMemberList).With(command.FlagGroup, "g-eng"))
	require.True(t, res.Success)

	var rows []map[string]string
	require.NoError(t, json.Unmarshal(res.Payload, &rows))
	require.Len(t, rows, 5)

	types := map[string]string{}
	for _, r := range rows {
		types[r["objectId"]] = r["objectType"]
	}
	assert.Equal(t, "#microsoft.graph.user", types["u-ana"])
	assert.Equal(t, "#microsoft.graph.group", types["g-nested"])
	assert.Equal(t, "#microsoft.graph.servicePrincipal", types["sp-etl"])
}

func TestAppAndServicePrincipalCreate(t *testing.T) {
	cp := newTestPlane(t)

	app := decode(t, run(t, cp, command.New(command.VerbAppCreate).With(command.FlagDisplayName, "reporting")))
	require.NotEmpty(t, app["appId"])

	sp := decode(t, run(t, cp, command.New(command.VerbSPCreate).With(command.FlagID, app["appId"].(string))))
	assert.Equal(t, app["appId"], sp["appId"])

	again := run(t, cp, command.New(command.VerbSPCreate).With(command.FlagID, app["appId"].(string)))
	assert.False(t, again.Success)

	res := run(t, cp, command.New(command.VerbSPList).With(command.FlagDisplayName, "report"))
	var rows []map[string]string
	require.NoError(t, json.Unmarshal(res.Payload, &rows))
	assert.Len(t, rows, 1)
}

func TestAppOwnerAdd(t *testing.T) {
	cp := newTestPlane(t)

	add := command.New(command.VerbAppOwnerAdd).With(command.FlagID, "o-etl").With(command.FlagOwnerObjectID, "u-ana")
	assert.True(t, run(t, cp, add).Success)
	assert.True(t, run(t, cp, add).Success)
	assert.Equal(t, []string{"u-ana"}, cp.AppOwners("app-etl"))

	bad := command.New(command.VerbAppOwnerAdd).With(command.FlagID, "o-etl").With(command.FlagOwnerObjectID, "u-ghost")
	assert.False(t, run(t, cp, bad).Success)
}

func observedState(t *testing.T, cp *ControlPlane, id string) string {
	t.Helper()
	return decode(t, run(t, cp, command.New(command.VerbClusterGet).With(command.FlagClusterID, id)))["state"].(string)
}

func TestClusterLifecycle(t *testing.T) {
	cp := newTestPlane(t)

	assert.Equal(t, "TERMINATED", observedState(t, cp, "c-etl"))

	require.True(t, run(t, cp, command.New(command.VerbClusterStart).With(command.FlagClusterID, "c-etl")).Success)
	assert.Equal(t, "PENDING", observedState(t, cp, "c-etl"))
	assert.Equal(t, "RUNNING", observedState(t, cp, "c-etl"))

	// starting a running cluster is rejected
	assert.False(t, run(t, cp, command.New(command.VerbClusterStart).With(command.FlagClusterID, "c-etl")).Success)

	require.True(t, run(t, cp, command.New(command.VerbClusterDelete).With(command.FlagClusterID, "c-etl")).Success)
	assert.Equal(t, "TERMINATING", observedState(t, cp, "c-etl"))
	assert.Equal(t, "TERMINATED", observedState(t, cp, "c-etl"))

	require.True(t, run(t, cp, command.New(command.VerbClusterPin).With(command.FlagClusterID, "c-etl")).Success)
	assert.True(t, cp.ClusterPinned("c-etl"))
}

func TestClusterFailStart(t *testing.T) {
	cp := newTestPlane(t)

	require.True(t, run(t, cp, command.New(command.VerbClusterStart).With(command.FlagClusterID, "c-bad")).Success)
	assert.Equal(t, "PENDING", observedState(t, cp, "c-bad"))
	assert.Equal(t, "TERMINATED", observedState(t, cp, "c-bad"))
}

func TestClusterEditRestartsRunningCluster(t *testing.T) {
	cp := newTestPlane(t)

	edit := command.New(command.VerbClusterEdit).With(command.FlagJSON, `{"cluster_id":"c-busy","cluster_name":"busy","num_workers":8}`)
	require.True(t, run(t, cp, edit).Success)

	assert.Equal(t, "RESTARTING", observedState(t, cp, "c-busy"))
	assert.Equal(t, "RESTARTING", observedState(t, cp, "c-busy"))
	assert.Equal(t, "RUNNING", observedState(t, cp, "c-busy"))
}

func TestClusterCreate(t *testing.T) {
	cp := newTestPlane(t)

	created := decode(t, run(t, cp, command.New(command.VerbClusterCreate).With(command.FlagJSON, `{"cluster_name":"adhoc"}`)))
	id := created["cluster_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "PENDING", cp.ClusterState(id))

	noName := run(t, cp, command.New(command.VerbClusterCreate).With(command.FlagJSON, `{}`))
	assert.False(t, noName.Success)
}

func locate(cmd command.Command, path string) command.Command {
	return cmd.
		With(command.FlagAccountName, "lake").
		With(command.FlagFileSystem, "raw").
		With(command.FlagPath, path)
}

func TestACLRecursiveUpdateAndRemove(t *testing.T) {
	cp := newTestPlane(t)

	update := locate(command.New(command.VerbACLUpdateRecursive), "sales").With(command.FlagACL, "user:u-ana:r-x")
	require.True(t, run(t, cp, update).Success)

	for _, p := range []string{"sales", "sales/2024", "sales/2024/q1", "sales/2024/q2"} {
		assert.Contains(t, cp.ACL("lake", "raw", p), "user:u-ana:r-x", p)
	}
	assert.NotContains(t, cp.ACL("lake", "raw", "finance"), "u-ana")

	// a second update replaces, never duplicates
	update = locate(command.New(command.VerbACLUpdateRecursive), "sales").With(command.FlagACL, "user:u-ana:rwx")
	require.True(t, run(t, cp, update).Success)
	assert.Equal(t, "user::rwx,group::r-x,other::---,user:u-ana:rwx", cp.ACL("lake", "raw", "sales/2024"))

	remove := locate(command.New(command.VerbACLRemoveRecursive), "/").With(command.FlagACL, "user:u-ana")
	require.True(t, run(t, cp, remove).Success)
	for _, p := range cp.Paths("lake", "raw") {
		assert.NotContains(t, cp.ACL("lake", "raw", p), "u-ana", p)
	}
}

func TestACLShowAndSet(t *testing.T) {
	cp := newTestPlane(t)

	shown := decode(t, run(t, cp, locate(command.New(command.VerbACLShow), "finance")))
	assert.Equal(t, "user::rwx,group::r-x,other::---,user:u-bo:r--", shown["acl"])

	set := locate(command.New(command.VerbACLSet), "finance").With(command.FlagACL, "user::rwx,group::---,other::---")
	require.True(t, run(t, cp, set).Success)
	assert.Equal(t, "user::rwx,group::---,other::---", cp.ACL("lake", "raw", "finance"))

	missing := run(t, cp, locate(command.New(command.VerbACLShow), "does/not/exist"))
	assert.False(t, missing.Success)
}

func TestExecute_CancelledContext(t *testing.T) {
	cp := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cp.Execute(ctx, command.New(command.VerbClusterList))
	assert.ErrorIs(t, err, context.Canceled)
}
