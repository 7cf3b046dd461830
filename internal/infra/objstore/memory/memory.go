// Package memory provides an in-memory object store used by tests and local
// development. It mirrors the S3 adapter's error taxonomy and supports fault
// injection for exercising retry paths.
package memory

import (
	"context"
	"sync"

	"github.com/ahrav/pii-armada/internal/domain/scanning"
)

// Store implements scanning.ObjectStore over a map.
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte

	headErr map[string]error
	getErr  map[string]error
}

// NewStore creates an empty in-memory object store.
func NewStore() *Store {
	return &Store{
		objects: make(map[string][]byte),
		headErr: make(map[string]error),
		getErr:  make(map[string]error),
	}
}

// Put stores an object, replacing any existing content.
func (s *Store) Put(ref scanning.ObjectRef, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[ref.String()] = data
}

// Delete removes an object.
func (s *Store) Delete(ref scanning.ObjectRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, ref.String())
}

// FailHead makes the next calls to Head for ref return err. A nil err clears
// the injection.
func (s *Store) FailHead(ref scanning.ObjectRef, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.headErr, ref.String())
		return
	}
	s.headErr[ref.String()] = err
}

// FailGet makes the next calls to Get for ref return err. A nil err clears
// the injection.
func (s *Store) FailGet(ref scanning.ObjectRef, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.getErr, ref.String())
		return
	}
	s.getErr[ref.String()] = err
}

// Head implements scanning.ObjectStore.
func (s *Store) Head(ctx context.Context, ref scanning.ObjectRef) (scanning.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return scanning.ObjectInfo{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err, ok := s.headErr[ref.String()]; ok {
		return scanning.ObjectInfo{}, err
	}
	data, ok := s.objects[ref.String()]
	if !ok {
		return scanning.ObjectInfo{}, scanning.ErrObjectNotFound
	}
	return scanning.ObjectInfo{SizeBytes: int64(len(data))}, nil
}

// Get implements scanning.ObjectStore.
func (s *Store) Get(ctx context.Context, ref scanning.ObjectRef) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err, ok := s.getErr[ref.String()]; ok {
		return nil, err
	}
	data, ok := s.objects[ref.String()]
	if !ok {
		return nil, scanning.ErrObjectNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
