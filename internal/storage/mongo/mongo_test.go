package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"bizdash/internal/storage"
	"bizdash/internal/storage/storagetest"
)

func TestToDocumentConvertsDriverTypes(t *testing.T) {
	when := time.Date(2024, time.July, 4, 10, 0, 0, 0, time.UTC)
	raw := bson.M{
		"_id":        "s1",
		createdField: int64(1),
		"date":       primitive.NewDateTimeFromTime(when),
		"amount":     int32(3),
		"meta":       primitive.D{{Key: "seconds", Value: int64(10)}},
		"tags":       primitive.A{"a", primitive.M{"b": "c"}},
	}

	doc := toDocument(raw)
	assert.Equal(t, "s1", doc.ID)
	assert.NotContains(t, doc.Data, createdField)
	assert.NotContains(t, doc.Data, "_id")
	assert.Equal(t, when, doc.Data["date"])
	assert.Equal(t, int32(3), doc.Data["amount"])
	assert.Equal(t, map[string]any{"seconds": int64(10)}, doc.Data["meta"])
	assert.Equal(t, []any{"a", map[string]any{"b": "c"}}, doc.Data["tags"])
}

func TestToDocumentObjectID(t *testing.T) {
	oid := primitive.NewObjectID()
	doc := toDocument(bson.M{"_id": oid, "name": "Ana"})
	assert.Equal(t, oid.Hex(), doc.ID)
	assert.Equal(t, "Ana", doc.Data["name"])
}

func TestIDFilterMatchesObjectIDs(t *testing.T) {
	oid := primitive.NewObjectID()
	f := idFilter(oid.Hex(), "p1")
	assert.Equal(t, bson.M{"_id": bson.M{"$in": []any{oid.Hex(), oid, "p1"}}}, f)
}

func TestToBSONDropsEmbeddedID(t *testing.T) {
	doc := toBSON("x", 42, map[string]any{"id": "ignored", "name": "Ana"})
	assert.Equal(t, "x", doc["_id"])
	assert.Equal(t, "Ana", doc["name"])
	assert.NotContains(t, doc, "id")
	assert.Equal(t, int64(42), doc[createdField])
}

func TestNextCreatedIncreases(t *testing.T) {
	s := &Store{}
	prev := s.nextCreated()
	for i := 0; i < 1000; i++ {
		next := s.nextCreated()
		require.Greater(t, next, prev)
		prev = next
	}
}

// Runs against a real server when MONGODB_TEST_URI is set.
func TestStoreContract(t *testing.T) {
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbName := "bizdash_test_" + storage.NewID()[:8]
	s, err := Connect(ctx, uri, dbName)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.db.Drop(context.Background())
		_ = s.Close()
	})

	storagetest.Run(t, s)
}
