package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/davidthor/platctl/pkg/journal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := NewBackend(map[string]string{"path": t.TempDir()})
	require.NoError(t, err)
	return b.(*Backend)
}

func TestNewBackend_RegisteredAsLocal(t *testing.T) {
	b, err := backend.Create(backend.Config{Type: "local", Config: map[string]string{"path": t.TempDir()}})
	require.NoError(t, err)
	assert.Equal(t, "local", b.Type())
}

func TestBackend_PutGet(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "runs/cluster/a.json", []byte(`{"id":"a"}`)))

	data, err := b.Get(ctx, "runs/cluster/a.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a"}`, string(data))

	_, err = os.Stat(filepath.Join(b.Root(), "runs", "cluster", "a.json.tmp"))
	assert.True(t, os.IsNotExist(err), "temporary file should be renamed away")
}

func TestBackend_GetMissing(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.Get(context.Background(), "nope.json")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestBackend_DeleteIsIdempotent(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "x.json", []byte("{}")))
	require.NoError(t, b.Delete(ctx, "x.json"))
	require.NoError(t, b.Delete(ctx, "x.json"))

	ok, err := b.Exists(ctx, "x.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBackend_List(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	for _, k := range []string{"runs/b.json", "runs/a.json", "other/c.json"} {
		require.NoError(t, b.Put(ctx, k, []byte("{}")))
	}

	keys, err := b.List(ctx, "runs")
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/a.json", "runs/b.json"}, keys)

	keys, err = b.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
