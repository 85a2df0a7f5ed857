package collab

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/vectorquant/strategy-engine/pkg/types"
)

// MemoryPersistence is an in-memory Persistence implementation used in
// paper mode and in tests.
type MemoryPersistence struct {
	mu       sync.RWMutex
	records  map[string]*types.TradingSession
	statuses map[string]types.SessionStatus
}

// NewMemoryPersistence creates an empty in-memory persistence layer.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		records:  make(map[string]*types.TradingSession),
		statuses: make(map[string]types.SessionStatus),
	}
}

// SavePerformanceRecord stores the finalized session keyed by ID.
func (p *MemoryPersistence) SavePerformanceRecord(_ context.Context, session *types.TradingSession) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[session.ID] = session
	return nil
}

// UpdateSessionStatus records the latest status for a session.
func (p *MemoryPersistence) UpdateSessionStatus(_ context.Context, sessionID string, status types.SessionStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[sessionID] = status
	return nil
}

// LoadActiveSessions returns stored sessions whose last recorded status
// is non-terminal.
func (p *MemoryPersistence) LoadActiveSessions(_ context.Context) ([]*types.TradingSession, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*types.TradingSession
	for id, status := range p.statuses {
		if status.Terminal() {
			continue
		}
		if s, ok := p.records[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// Record returns the stored performance record for a session, if any.
func (p *MemoryPersistence) Record(sessionID string) (*types.TradingSession, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.records[sessionID]
	return s, ok
}

// Status returns the last recorded status for a session, if any.
func (p *MemoryPersistence) Status(sessionID string) (types.SessionStatus, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st, ok := p.statuses[sessionID]
	return st, ok
}

// LogNotifier writes lifecycle events to the structured log. It is the
// default Notifier when no streaming hub is attached.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

// Notify logs the event. It never fails.
func (n *LogNotifier) Notify(event types.NotificationEvent, session *types.TradingSession) {
	n.logger.Info("session event",
		zap.String("event", string(event)),
		zap.String("sessionId", session.ID),
		zap.String("ownerId", session.OwnerID),
		zap.String("symbol", session.Symbol),
		zap.String("status", string(session.Status)),
	)
}

// AllowAllEntitlements permits every owner to start sessions in any
// mode. Paper deployments and tests use this.
type AllowAllEntitlements struct{}

// CanOwnerStartSession always succeeds.
func (AllowAllEntitlements) CanOwnerStartSession(context.Context, string, types.SessionMode) error {
	return nil
}

// StaticEntitlements gates live sessions to an explicit allow list.
// Paper sessions are always permitted.
type StaticEntitlements struct {
	mu      sync.RWMutex
	allowed map[string]bool
}

// NewStaticEntitlements creates entitlements from an owner allow list.
func NewStaticEntitlements(liveOwners []string) *StaticEntitlements {
	allowed := make(map[string]bool, len(liveOwners))
	for _, id := range liveOwners {
		allowed[id] = true
	}
	return &StaticEntitlements{allowed: allowed}
}

// CanOwnerStartSession rejects live sessions for owners outside the
// allow list.
func (e *StaticEntitlements) CanOwnerStartSession(_ context.Context, ownerID string, mode types.SessionMode) error {
	if mode != types.SessionModeLive {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.allowed[ownerID] {
		return &CollabError{Message: "owner not entitled to live trading: " + ownerID}
	}
	return nil
}
