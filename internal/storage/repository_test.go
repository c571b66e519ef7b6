package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizdash/internal/storage"
	"bizdash/internal/storage/storagetest"
)

func TestSQLiteRepository(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "bizdash.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	storagetest.Run(t, repo)
}

func TestSQLiteRepository_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bizdash.db")
	ctx := context.Background()

	repo, err := storage.NewSQLiteRepository(path)
	require.NoError(t, err)
	id, err := repo.Add(ctx, "customers", map[string]any{"name": "Ana"})
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	// migrations must be idempotent on an existing database
	repo, err = storage.NewSQLiteRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	doc, err := repo.GetByID(ctx, "customers", id)
	require.NoError(t, err)
	assert.Equal(t, "Ana", doc.Data["name"])
}

func TestValidField(t *testing.T) {
	assert.True(t, storage.ValidField("customerId"))
	assert.True(t, storage.ValidField("_created"))
	assert.False(t, storage.ValidField(""))
	assert.False(t, storage.ValidField("a.b"))
	assert.False(t, storage.ValidField("1abc"))
}

func TestCopyDataDropsID(t *testing.T) {
	in := map[string]any{"id": "x", "name": "Ana"}
	out := storage.CopyData(in)
	assert.Equal(t, map[string]any{"name": "Ana"}, out)
	out["name"] = "Bia"
	assert.Equal(t, "Ana", in["name"])
}
