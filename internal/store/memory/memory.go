// Package memory is an in-process store, used in development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/dropDatabas3/authdata/internal/store/core"
)

type Store struct {
	mu      sync.Mutex
	records map[string]core.Record
}

func New() *Store {
	return &Store{records: map[string]core.Record{}}
}

func (s *Store) Get(_ context.Context, userID string) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		return core.Record{}, core.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *Store) CompareAndSwap(_ context.Context, userID string, expected int64, rec core.Record) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.records[userID].Version
	if cur != expected {
		return core.Record{}, core.ErrConflict
	}
	next := rec.Clone()
	next.UserID = userID
	next.Version = expected + 1
	s.records[userID] = next
	return next.Clone(), nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
