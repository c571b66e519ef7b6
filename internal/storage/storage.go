// Package storage defines the document store the dashboard persists its
// records in, plus the SQLite implementation. Memory and MongoDB
// implementations live in subpackages.
package storage

import (
	"context"
	"errors"
	"regexp"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a document id does not exist in a collection.
var ErrNotFound = errors.New("document not found")

// ErrInvalidField is returned by QueryByField for field names that are not
// plain identifiers.
var ErrInvalidField = errors.New("invalid field name")

// Document is a schemaless record. Data never contains the id.
type Document struct {
	ID   string
	Data map[string]any
}

// RecordStore is a collection-oriented document store.
type RecordStore interface {
	// ListAll returns every document of a collection in insertion order.
	ListAll(ctx context.Context, collection string) ([]Document, error)
	GetByID(ctx context.Context, collection, id string) (Document, error)
	// GetMany returns the documents that exist among ids; missing ids are
	// silently absent from the result.
	GetMany(ctx context.Context, collection string, ids []string) ([]Document, error)
	QueryByField(ctx context.Context, collection, field string, value any) ([]Document, error)
	// Add stores data under a new generated id.
	Add(ctx context.Context, collection string, data map[string]any) (string, error)
	// Put creates or replaces the document with the given id.
	Put(ctx context.Context, collection, id string, data map[string]any) error
	// Update merges patch into an existing document.
	Update(ctx context.Context, collection, id string, patch map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// NewID generates a document id.
func NewID() string {
	return uuid.NewString()
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidField reports whether name can be used as a query field.
func ValidField(name string) bool {
	return fieldPattern.MatchString(name)
}

// CopyData returns a shallow copy of a document body without an "id" key.
func CopyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if k == "id" {
			continue
		}
		out[k] = v
	}
	return out
}
