package fsblob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/appgen/core/asset"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	key := "artifacts/job-1/app.apk"
	ok, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Get(ctx, key)
	assert.Equal(t, asset.ErrNotFound, err)

	require.NoError(t, store.Put(ctx, key, []byte("v1"), "application/octet-stream"))
	require.NoError(t, store.Put(ctx, key, []byte("v2"), "application/octet-stream"))

	ok, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	obj, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), obj.Data)

	_, err = os.Stat(filepath.Join(dir, "artifacts", "job-1", "app.apk.tmp"))
	assert.True(t, os.IsNotExist(err))

	assert.Error(t, store.Put(ctx, "../outside", []byte("x"), ""))
}
