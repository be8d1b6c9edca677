package storage_test

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/docvault/internal/storage"
)

func TestMemoryStore(t *testing.T) {
	var _ storage.BlobStore = storage.NewMemoryStore()
	var _ storage.BlobStore = (*storage.LocalStore)(nil)

	store := storage.NewMemoryStore()
	require.NoError(t, store.Write("encrypted/a.enc", []byte("a"), 0600))
	require.NoError(t, store.Write("encrypted/sub/b.enc", []byte("b"), 0600))
	require.NoError(t, store.Write("other/c.enc", []byte("c"), 0600))

	files, err := store.ListDir("encrypted")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "encrypted/a.enc", files[0].Path)

	_, err = store.Read("missing")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, store.Move("encrypted/a.enc", "encrypted/z.enc"))
	assert.Equal(t, []string{"encrypted/sub/b.enc", "encrypted/z.enc", "other/c.enc"}, store.Paths())
}

func TestMemoryStoreFailOn(t *testing.T) {
	store := storage.NewMemoryStore()
	boom := errors.New("disk on fire")

	store.FailOn("delete", "encrypted/a.enc", boom)
	require.NoError(t, store.Write("encrypted/a.enc", []byte("a"), 0600))
	assert.ErrorIs(t, store.Delete("encrypted/a.enc"), boom)

	store.FailOn("delete", "encrypted/a.enc", nil)
	assert.NoError(t, store.Delete("encrypted/a.enc"))

	store.FailOn("write", "*", boom)
	assert.ErrorIs(t, store.Write("x", nil, 0600), boom)
}
