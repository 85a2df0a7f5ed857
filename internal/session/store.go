package session

import (
	"sync"

	"github.com/vectorquant/strategy-engine/pkg/types"
)

// Store holds live session state. Implementations must be safe for
// concurrent use; mutation of a stored session is serialized by the
// manager's per-session lock, not by the store.
type Store interface {
	Put(s *types.TradingSession)
	Get(id string) (*types.TradingSession, bool)
	ListByOwner(ownerID string) []*types.TradingSession
	ListNonTerminal() []*types.TradingSession
	Delete(id string)
}

// MemoryStore is the in-memory Store used by the daemon.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.TradingSession
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*types.TradingSession)}
}

func (st *MemoryStore) Put(s *types.TradingSession) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = s
}

func (st *MemoryStore) Get(id string) (*types.TradingSession, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

func (st *MemoryStore) ListByOwner(ownerID string) []*types.TradingSession {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var out []*types.TradingSession
	for _, s := range st.sessions {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	return out
}

func (st *MemoryStore) ListNonTerminal() []*types.TradingSession {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var out []*types.TradingSession
	for _, s := range st.sessions {
		if !s.Status.Terminal() {
			out = append(out, s)
		}
	}
	return out
}

func (st *MemoryStore) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}
