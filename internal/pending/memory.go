// Package pending keeps share-unlock tokens between issue and confirmation.
package pending

import (
	"context"
	"sync"
	"time"

	"github.com/bwise1/voteledger/internal/ledger"
	"github.com/bwise1/voteledger/internal/model"
)

// ConfirmedTTL is how long a claimed token is remembered so a replay is
// reported as already confirmed rather than expired.
const ConfirmedTTL = 24 * time.Hour

type memoryEntry struct {
	unlock    model.PendingUnlock
	expiresAt time.Time
}

// MemoryStore is a single-process PendingStore. Safe for concurrent use.
type MemoryStore struct {
	mu        sync.Mutex
	clock     ledger.Clock
	pending   map[string]memoryEntry
	confirmed map[string]time.Time
}

var _ ledger.PendingStore = (*MemoryStore)(nil)

func NewMemoryStore(clock ledger.Clock) *MemoryStore {
	if clock == nil {
		clock = ledger.RealClock{}
	}
	return &MemoryStore{
		clock:     clock,
		pending:   make(map[string]memoryEntry),
		confirmed: make(map[string]time.Time),
	}
}

func (m *MemoryStore) Put(_ context.Context, p model.PendingUnlock, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	m.prune(now)
	m.pending[p.Token] = memoryEntry{unlock: p, expiresAt: now.Add(ttl)}
	return nil
}

func (m *MemoryStore) Claim(_ context.Context, token string) (model.PendingUnlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if until, ok := m.confirmed[token]; ok && now.Before(until) {
		return model.PendingUnlock{}, ledger.ErrAlreadyConfirmed
	}

	entry, ok := m.pending[token]
	if !ok {
		return model.PendingUnlock{}, ledger.ErrExpired
	}
	delete(m.pending, token)
	if !now.Before(entry.expiresAt) {
		return model.PendingUnlock{}, ledger.ErrExpired
	}

	m.confirmed[token] = now.Add(ConfirmedTTL)
	return entry.unlock, nil
}

func (m *MemoryStore) Release(_ context.Context, p model.PendingUnlock, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.confirmed, p.Token)
	if ttl > 0 {
		m.pending[p.Token] = memoryEntry{unlock: p, expiresAt: m.clock.Now().Add(ttl)}
	}
	return nil
}

// Len returns the number of live pending tokens.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune(m.clock.Now())
	return len(m.pending)
}

func (m *MemoryStore) prune(now time.Time) {
	for token, e := range m.pending {
		if !now.Before(e.expiresAt) {
			delete(m.pending, token)
		}
	}
	for token, until := range m.confirmed {
		if !now.Before(until) {
			delete(m.confirmed, token)
		}
	}
}
