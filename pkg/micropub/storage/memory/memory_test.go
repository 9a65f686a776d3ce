package memory

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-micropub/pkg/micropub"
)

func TestMemoryBackend(t *testing.T) {
	src := filepath.Join(t.TempDir(), "spool")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0600))

	b := New()
	location, err := b.Move(context.Background(), src, "tok/hello.txt", "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "memory://tok/hello.txt", location)
	assert.Equal(t, 1, b.Len())

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))

	rc, contentType, err := b.Open(context.Background(), "tok/hello.txt")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "text/plain", contentType)

	_, _, err = b.Open(context.Background(), "missing")
	assert.ErrorIs(t, err, micropub.ErrMediaNotFound)
}

func TestMemoryBackend_MissingTempFile(t *testing.T) {
	_, err := New().Move(context.Background(), filepath.Join(t.TempDir(), "nope"), "k", "")
	assert.Error(t, err)
}
