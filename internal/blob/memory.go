package blob

import (
	"context"
	"fmt"
	"sync"

	"github.com/netflixcritic/checker/internal/catalog"
)

// Memory keeps page bodies in-process for development and tests.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Put stores a copy of the body and returns a pseudo URI.
func (s *Memory) Put(_ context.Context, kind catalog.PageKind, id catalog.ID, body []byte) (string, error) {
	key := objectName(kind, id)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), body...)
	return "memory://" + key, nil
}

// Get returns a previously stored body.
func (s *Memory) Get(_ context.Context, kind catalog.PageKind, id catalog.ID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[objectName(kind, id)]
	if !ok {
		return nil, fmt.Errorf("no stored body for %s/%d", kind, id)
	}
	return append([]byte(nil), data...), nil
}
