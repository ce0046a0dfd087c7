package publisher

import (
	"context"
	"fmt"
	"sync"
)

// Memory stores published payloads for inspection in tests and local
// runs.
type Memory struct {
	mu       sync.RWMutex
	payloads []any
}

func NewMemory() *Memory {
	return &Memory{}
}

// Publish records the payload and returns a pseudo ID.
func (p *Memory) Publish(_ context.Context, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return fmt.Sprintf("memory-%d", len(p.payloads)), nil
}

// Payloads returns the recorded publishes.
func (p *Memory) Payloads() []any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]any, len(p.payloads))
	copy(out, p.payloads)
	return out
}

// Close is a no-op.
func (p *Memory) Close() error { return nil }
