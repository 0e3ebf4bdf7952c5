package resource

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/jaywantadh/pullsrc/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStaged(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	obj, err := store.Put(strings.NewReader("ABCDEFGHIJ"), storage.PackOptions{Compress: true, Password: "pw"})
	require.NoError(t, err)

	r, err := OpenStaged(store, obj.ID, "demo.bin", "pw")
	require.NoError(t, err)
	assert.Equal(t, "demo.bin", r.Name())
	assert.Equal(t, int64(10), r.Size())

	got, err := r.ReadAt(context.Background(), 6, 10)
	require.NoError(t, err)
	assert.Equal(t, "GHIJ", string(got))

	path := r.Path()
	require.NoError(t, r.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "temporary copy of a sealed object must be removed")
}

func TestOpenStagedMissing(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	_, err = OpenStaged(store, strings.Repeat("0", 64), "x", "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
