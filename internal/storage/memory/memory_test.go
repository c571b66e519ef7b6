package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizdash/internal/storage"
	"bizdash/internal/storage/storagetest"
)

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, New())
}

func TestNewFromFilesSeeds(t *testing.T) {
	dir := t.TempDir()
	mustWrite := func(name, content string) {
		t.Helper()
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	mustWrite("seed_products.json", `[
		{"id": "p1", "name": "Coffee", "price": "4,50"},
		{"name": "Tea", "price": 3}
	]`)

	s, err := NewFromFiles(dir, "products", "customers")
	require.NoError(t, err)

	docs, err := s.ListAll(context.Background(), "products")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "p1", docs[0].ID)
	assert.Equal(t, "4,50", docs[0].Data["price"])
	assert.NotContains(t, docs[0].Data, "id")
	assert.NotEmpty(t, docs[1].ID)

	customers, err := s.ListAll(context.Background(), "customers")
	require.NoError(t, err)
	assert.Empty(t, customers)
}

func TestNewFromFilesRejectsMalformedSeed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed_sales.json"), []byte(`{"not": "an array"}`), 0o644))
	_, err := NewFromFiles(dir, "sales")
	assert.Error(t, err)
}

func TestReturnedDocumentsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	id, err := s.Add(ctx, "customers", map[string]any{"name": "Ana"})
	require.NoError(t, err)

	doc, err := s.GetByID(ctx, "customers", id)
	require.NoError(t, err)
	doc.Data["name"] = "changed"

	again, err := s.GetByID(ctx, "customers", id)
	require.NoError(t, err)
	assert.Equal(t, "Ana", again.Data["name"])
}

var _ storage.RecordStore = (*Store)(nil)
