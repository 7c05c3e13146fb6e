package dosattr

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore keeps attributes in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	attrs  map[string]uint16
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{attrs: make(map[string]uint16)}
}

func (s *MemoryStore) Get(ctx context.Context, share, path string) (uint16, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, false, ErrClosed
	}
	a, ok := s.attrs[key(share, path)]
	return a, ok, nil
}

func (s *MemoryStore) Set(ctx context.Context, share, path string, attrs uint16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.attrs[key(share, path)] = attrs
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, share, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	prefix := key(share, "")
	for k := range s.attrs {
		if p, ok := strings.CutPrefix(k, prefix); ok && isUnder(p, path) {
			delete(s.attrs, k)
		}
	}
	return nil
}

func (s *MemoryStore) Rename(ctx context.Context, share, oldPath, newPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	prefix := key(share, "")
	moved := make(map[string]uint16)
	for k, v := range s.attrs {
		p, ok := strings.CutPrefix(k, prefix)
		if !ok {
			continue
		}
		if isUnder(p, newPath) {
			// The destination was replaced.
			delete(s.attrs, k)
			continue
		}
		if isUnder(p, oldPath) {
			moved[key(share, newPath+strings.TrimPrefix(p, oldPath))] = v
			delete(s.attrs, k)
		}
	}
	for k, v := range moved {
		s.attrs[k] = v
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
