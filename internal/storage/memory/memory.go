// Package memory is an in-process storage.RecordStore used for development
// and tests.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"bizdash/internal/storage"
)

type collection struct {
	order []string
	docs  map[string]map[string]any
}

type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

// NewFromFiles seeds a store from base/seed_<collection>.json files. Each file
// holds a JSON array of objects; an "id" field is used as the document id
// when present. Missing files leave the collection empty.
func NewFromFiles(base string, collections ...string) (*Store, error) {
	s := New()
	for _, name := range collections {
		docs, err := readSeed(filepath.Join(base, "seed_"+name+".json"))
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", name, err)
		}
		for _, d := range docs {
			id, _ := d["id"].(string)
			if id == "" {
				id = storage.NewID()
			}
			s.put(name, id, d)
		}
	}
	return s, nil
}

func (s *Store) coll(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{docs: make(map[string]map[string]any)}
		s.collections[name] = c
	}
	return c
}

func (s *Store) put(name, id string, data map[string]any) {
	c := s.coll(name)
	if _, exists := c.docs[id]; !exists {
		c.order = append(c.order, id)
	}
	c.docs[id] = storage.CopyData(data)
}

func (s *Store) ListAll(_ context.Context, name string) ([]storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return []storage.Document{}, nil
	}
	out := make([]storage.Document, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, storage.Document{ID: id, Data: storage.CopyData(c.docs[id])})
	}
	return out, nil
}

func (s *Store) GetByID(_ context.Context, name, id string) (storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return storage.Document{}, storage.ErrNotFound
	}
	data, ok := c.docs[id]
	if !ok {
		return storage.Document{}, storage.ErrNotFound
	}
	return storage.Document{ID: id, Data: storage.CopyData(data)}, nil
}

func (s *Store) GetMany(_ context.Context, name string, ids []string) ([]storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.Document, 0, len(ids))
	c, ok := s.collections[name]
	if !ok || len(ids) == 0 {
		return out, nil
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	for _, id := range c.order {
		if _, ok := wanted[id]; ok {
			out = append(out, storage.Document{ID: id, Data: storage.CopyData(c.docs[id])})
		}
	}
	return out, nil
}

func (s *Store) QueryByField(_ context.Context, name, field string, value any) ([]storage.Document, error) {
	if !storage.ValidField(field) {
		return nil, fmt.Errorf("%w: %q", storage.ErrInvalidField, field)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.Document, 0)
	c, ok := s.collections[name]
	if !ok {
		return out, nil
	}
	want := fmt.Sprint(value)
	for _, id := range c.order {
		v, ok := c.docs[id][field]
		if ok && fmt.Sprint(v) == want {
			out = append(out, storage.Document{ID: id, Data: storage.CopyData(c.docs[id])})
		}
	}
	return out, nil
}

func (s *Store) Add(_ context.Context, name string, data map[string]any) (string, error) {
	id := storage.NewID()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(name, id, data)
	return id, nil
}

func (s *Store) Put(_ context.Context, name, id string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(name, id, data)
	return nil
}

func (s *Store) Update(_ context.Context, name, id string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return storage.ErrNotFound
	}
	data, ok := c.docs[id]
	if !ok {
		return storage.ErrNotFound
	}
	merged := storage.CopyData(data)
	for k, v := range storage.CopyData(patch) {
		merged[k] = v
	}
	c.docs[id] = merged
	return nil
}

func (s *Store) Delete(_ context.Context, name, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return storage.ErrNotFound
	}
	if _, ok := c.docs[id]; !ok {
		return storage.ErrNotFound
	}
	delete(c.docs, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func readSeed(path string) ([]map[string]any, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var docs []map[string]any
	if err := dec.Decode(&docs); err != nil {
		return nil, err
	}
	return docs, nil
}
