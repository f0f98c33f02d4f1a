// Package memstore is an in-process docstore.Store used for local runs and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/docstore"
)

type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]docstore.Fields
}

func New() *Store {
	return &Store{collections: make(map[string]map[string]docstore.Fields)}
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.collections[collection][id]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return docstore.Document{ID: id, Fields: fields.Clone()}, nil
}

func (s *Store) Insert(ctx context.Context, collection, id string, fields docstore.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collections[collection]
	if coll == nil {
		coll = make(map[string]docstore.Fields)
		s.collections[collection] = coll
	}
	if _, exists := coll[id]; exists {
		return docstore.ErrAlreadyExists
	}
	coll[id] = fields.Clone()
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return docstore.ErrNotFound
	}
	for k, v := range fields {
		doc[k] = v
	}
	return nil
}

// Query returns matches ordered by id so results are deterministic.
func (s *Store) Query(ctx context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error) {
	if err := docstore.ValidateFilter(filter); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []docstore.Document
	for id, fields := range s.collections[collection] {
		v, ok := fields[filter.Field]
		if !ok {
			continue
		}
		if docstore.Compare(v, filter.Op, filter.Value) {
			out = append(out, docstore.Document{ID: id, Fields: fields.Clone()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Adjust(ctx context.Context, collection, id string, adj docstore.Adjustment) (int, error) {
	if err := docstore.ValidateAdjustment(adj); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return 0, docstore.ErrNotFound
	}
	// A missing field counts as zero.
	current, ok := doc.Int(adj.Field)
	if _, present := doc[adj.Field]; present && !ok {
		return 0, fmt.Errorf("%w: %s.%s", docstore.ErrNotInteger, id, adj.Field)
	}
	next := current + adj.Delta
	if adj.Floor != nil && next < *adj.Floor {
		return current, &docstore.BelowFloorError{Current: current}
	}
	doc[adj.Field] = next
	for k, v := range adj.Set {
		doc[k] = v
	}
	return next, nil
}
