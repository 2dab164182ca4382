package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryManager is the in-memory Manager used by tests. It keeps every
// session it ever started so tests can assert the cleanup protocol: each
// internally opened session ended exactly once, external ones never.
type MemoryManager struct {
	mu      sync.Mutex
	started []*MemorySession
}

func NewMemoryManager() *MemoryManager {
	return &MemoryManager{}
}

func (m *MemoryManager) StartSession(ctx context.Context) (Session, error) {
	s := &MemorySession{id: uuid.NewString()}
	m.mu.Lock()
	m.started = append(m.started, s)
	m.mu.Unlock()
	return s, nil
}

// Sessions returns every session this manager has started.
func (m *MemoryManager) Sessions() []*MemorySession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MemorySession, len(m.started))
	copy(out, m.started)
	return out
}

// MemorySession records its lifecycle instead of talking to a store. The
// in-memory store applies writes directly, so WithTransaction only runs the
// body; tests exercise the scoping protocol, not store atomicity.
type MemorySession struct {
	id string

	mu   sync.Mutex
	ends int
	txns int
}

func (s *MemorySession) ID() string { return s.id }

func (s *MemorySession) Bind(ctx context.Context) context.Context { return ctx }

func (s *MemorySession) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	s.txns++
	s.mu.Unlock()
	return fn(ctx)
}

func (s *MemorySession) End(ctx context.Context) {
	s.mu.Lock()
	s.ends++
	s.mu.Unlock()
}

// EndCount reports how many times End was called.
func (s *MemorySession) EndCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ends
}

// TransactionCount reports how many transactions ran on the session.
func (s *MemorySession) TransactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txns
}
