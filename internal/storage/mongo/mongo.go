// Package mongo implements storage.RecordStore on MongoDB. Every collection
// maps to a MongoDB collection of the same name. New documents get string
// ids; documents written by other tools with ObjectID ids are addressed by
// their hex form.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bizdash/internal/storage"
)

// createdField orders documents by insertion.
const createdField = "_created"

type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	created atomic.Int64
}

// Connect opens a client for uri and verifies it with a ping.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}
	return &Store{client: client, db: client.Database(dbName)}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) find(ctx context.Context, collection string, filter bson.M) ([]storage.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: createdField, Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	docs := make([]storage.Document, 0)
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		docs = append(docs, toDocument(raw))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return docs, nil
}

func (s *Store) ListAll(ctx context.Context, collection string) ([]storage.Document, error) {
	return s.find(ctx, collection, bson.M{})
}

func (s *Store) GetByID(ctx context.Context, collection, id string) (storage.Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, idFilter(id)).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.Document{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return toDocument(raw), nil
}

func (s *Store) GetMany(ctx context.Context, collection string, ids []string) ([]storage.Document, error) {
	if len(ids) == 0 {
		return []storage.Document{}, nil
	}
	return s.find(ctx, collection, idFilter(ids...))
}

func (s *Store) QueryByField(ctx context.Context, collection, field string, value any) ([]storage.Document, error) {
	if !storage.ValidField(field) {
		return nil, fmt.Errorf("%w: %q", storage.ErrInvalidField, field)
	}
	return s.find(ctx, collection, bson.M{field: value})
}

func (s *Store) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := storage.NewID()
	if _, err := s.db.Collection(collection).InsertOne(ctx, toBSON(id, s.nextCreated(), data)); err != nil {
		return "", fmt.Errorf("insert %s: %w", collection, err)
	}
	return id, nil
}

func (s *Store) Put(ctx context.Context, collection, id string, data map[string]any) error {
	coll := s.db.Collection(collection)

	// keep the original position of a replaced document
	created := s.nextCreated()
	var key any = id
	var existing struct {
		ID      any   `bson:"_id"`
		Created int64 `bson:"_created"`
	}
	proj := options.FindOne().SetProjection(bson.M{"_id": 1, createdField: 1})
	err := coll.FindOne(ctx, idFilter(id), proj).Decode(&existing)
	switch {
	case err == nil:
		created = existing.Created
		key = existing.ID
	case !errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}

	doc := toBSON(id, created, data)
	doc["_id"] = key
	_, err = coll.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	set := bson.M{}
	for k, v := range storage.CopyData(patch) {
		set[k] = v
	}
	res, err := s.db.Collection(collection).UpdateOne(ctx, idFilter(id), bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, idFilter(id))
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// nextCreated returns a strictly increasing insertion stamp.
func (s *Store) nextCreated() int64 {
	for {
		last := s.created.Load()
		next := time.Now().UnixNano()
		if next <= last {
			next = last + 1
		}
		if s.created.CompareAndSwap(last, next) {
			return next
		}
	}
}

func toBSON(id string, created int64, data map[string]any) bson.M {
	doc := bson.M{"_id": id, createdField: created}
	for k, v := range storage.CopyData(data) {
		doc[k] = v
	}
	return doc
}

// idFilter matches ids stored as strings and, for valid hex ids, as
// ObjectIDs.
func idFilter(ids ...string) bson.M {
	values := make([]any, 0, len(ids))
	for _, id := range ids {
		values = append(values, id)
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			values = append(values, oid)
		}
	}
	return bson.M{"_id": bson.M{"$in": values}}
}

func toDocument(raw bson.M) storage.Document {
	var id string
	if v := raw["_id"]; v != nil {
		id = fmt.Sprint(plain(v))
	}
	data := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "_id" || k == createdField {
			continue
		}
		data[k] = plain(v)
	}
	return storage.Document{ID: id, Data: data}
}

// plain converts driver types into the Go types the other stores return.
func plain(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Decimal128:
		return t.String()
	case primitive.ObjectID:
		return t.Hex()
	case primitive.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = plain(e.Value)
		}
		return m
	case primitive.M:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = plain(e)
		}
		return m
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}
