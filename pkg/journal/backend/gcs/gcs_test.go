package gcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackend_RequiresBucket(t *testing.T) {
	_, err := NewBackend(map[string]string{"prefix": "platctl"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}

func TestNewBackend_WithEmulatorEndpoint(t *testing.T) {
	b, err := NewBackend(map[string]string{
		"bucket":   "journal",
		"prefix":   "/platctl/",
		"endpoint": "http://127.0.0.1:4443/storage/v1/",
	})
	require.NoError(t, err)
	defer b.(*Backend).Close()

	gb := b.(*Backend)
	assert.Equal(t, "gcs", gb.Type())
	assert.Equal(t, "platctl", gb.prefix)
	assert.Equal(t, "platctl/runs/a.json", gb.object("runs/a.json").ObjectName())
	assert.Equal(t, "runs/a.json", gb.relative("platctl/runs/a.json"))
}
