// Package storagetest holds a behavioural test suite shared by every
// storage.RecordStore implementation.
package storagetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizdash/internal/storage"
)

// Run exercises store against the RecordStore contract. The store must be
// empty.
func Run(t *testing.T, store storage.RecordStore) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	ids := make([]string, 0, 3)
	for i, customer := range []string{"c1", "c2", "c1"} {
		id, err := store.Add(ctx, "sales", map[string]any{
			"productId":  fmt.Sprintf("p%d", i),
			"customerId": customer,
			"amount":     i + 1,
		})
		require.NoError(t, err)
		require.NotEmpty(t, id)
		ids = append(ids, id)
	}

	t.Run("list keeps insertion order", func(t *testing.T) {
		docs, err := store.ListAll(ctx, "sales")
		require.NoError(t, err)
		require.Len(t, docs, 3)
		for i, d := range docs {
			assert.Equal(t, ids[i], d.ID)
			assert.NotContains(t, d.Data, "id")
		}
	})

	t.Run("collections are isolated", func(t *testing.T) {
		docs, err := store.ListAll(ctx, "products")
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("get by id", func(t *testing.T) {
		doc, err := store.GetByID(ctx, "sales", ids[1])
		require.NoError(t, err)
		assert.Equal(t, "c2", doc.Data["customerId"])
		assert.Equal(t, "2", fmt.Sprint(doc.Data["amount"]))

		_, err = store.GetByID(ctx, "sales", "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = store.GetByID(ctx, "products", ids[1])
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("get many skips missing ids", func(t *testing.T) {
		docs, err := store.GetMany(ctx, "sales", []string{ids[2], "missing", ids[0]})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.ElementsMatch(t, []string{ids[0], ids[2]}, []string{docs[0].ID, docs[1].ID})

		docs, err = store.GetMany(ctx, "sales", nil)
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("query by field", func(t *testing.T) {
		docs, err := store.QueryByField(ctx, "sales", "customerId", "c1")
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, ids[0], docs[0].ID)
		assert.Equal(t, ids[2], docs[1].ID)

		docs, err = store.QueryByField(ctx, "sales", "customerId", "nobody")
		require.NoError(t, err)
		assert.Empty(t, docs)

		_, err = store.QueryByField(ctx, "sales", "customerId') OR 1=1 --", "x")
		assert.ErrorIs(t, err, storage.ErrInvalidField)
	})

	t.Run("update merges", func(t *testing.T) {
		require.NoError(t, store.Update(ctx, "sales", ids[0], map[string]any{"amount": 9}))
		doc, err := store.GetByID(ctx, "sales", ids[0])
		require.NoError(t, err)
		assert.Equal(t, "9", fmt.Sprint(doc.Data["amount"]))
		assert.Equal(t, "c1", doc.Data["customerId"])

		err = store.Update(ctx, "sales", "missing", map[string]any{"amount": 1})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("put creates and replaces", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "report_snapshots", "2024-07", map[string]any{"a": "1", "b": "2"}))
		require.NoError(t, store.Put(ctx, "report_snapshots", "2024-07", map[string]any{"a": "3"}))
		doc, err := store.GetByID(ctx, "report_snapshots", "2024-07")
		require.NoError(t, err)
		assert.Equal(t, "3", doc.Data["a"])
		assert.NotContains(t, doc.Data, "b")
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "sales", ids[1]))
		_, err := store.GetByID(ctx, "sales", ids[1])
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, store.Delete(ctx, "sales", ids[1]), storage.ErrNotFound)

		docs, err := store.ListAll(ctx, "sales")
		require.NoError(t, err)
		assert.Len(t, docs, 2)
	})
}
