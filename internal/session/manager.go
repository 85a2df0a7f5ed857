package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vectorquant/strategy-engine/internal/collab"
	"github.com/vectorquant/strategy-engine/internal/simulator"
	"github.com/vectorquant/strategy-engine/internal/strategy"
	"github.com/vectorquant/strategy-engine/pkg/types"
)

// StartParams are the inputs to Manager.Start.
type StartParams struct {
	OwnerID          string                   `json:"ownerId"`
	Mode             types.SessionMode        `json:"mode"`
	Strategy         types.StrategyDefinition `json:"strategy"`
	Symbol           string                   `json:"symbol"`
	InitialCash      decimal.Decimal          `json:"initialCash"`
	SharesPerTrade   decimal.Decimal          `json:"sharesPerTrade"`
	ScheduledEndTime *time.Time               `json:"scheduledEndTime,omitempty"`
}

// Manager owns session lifecycle transitions and per-bar stepping.
// All mutation of a session happens under its per-session lock, so
// concurrent transitions and monitor ticks serialize cleanly.
type Manager struct {
	logger       *zap.Logger
	store        Store
	persistence  collab.Persistence
	notifier     collab.Notifier
	entitlements collab.Entitlements
	metrics      *Metrics

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	sources map[string]strategy.SignalSource
}

// NewManager creates a session manager. metrics may be nil.
func NewManager(
	logger *zap.Logger,
	store Store,
	persistence collab.Persistence,
	notifier collab.Notifier,
	entitlements collab.Entitlements,
	metrics *Metrics,
) *Manager {
	return &Manager{
		logger:       logger.Named("session"),
		store:        store,
		persistence:  persistence,
		notifier:     notifier,
		entitlements: entitlements,
		metrics:      metrics,
		locks:        make(map[string]*sync.Mutex),
		sources:      make(map[string]strategy.SignalSource),
	}
}

func (m *Manager) lockFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// Start validates and creates a new ACTIVE session. An owner may hold
// at most one non-terminal session at a time.
func (m *Manager) Start(ctx context.Context, params StartParams) (*types.TradingSession, error) {
	if err := m.entitlements.CanOwnerStartSession(ctx, params.OwnerID, params.Mode); err != nil {
		return nil, err
	}
	if params.Symbol == "" {
		return nil, &SessionError{Message: "symbol is required"}
	}
	if !params.InitialCash.IsPositive() {
		return nil, &SessionError{Message: "initial cash must be positive"}
	}
	if !params.SharesPerTrade.IsPositive() {
		return nil, &SessionError{Message: "shares per trade must be positive"}
	}

	src, err := strategy.NewSource(params.Strategy)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if params.ScheduledEndTime != nil && !params.ScheduledEndTime.After(now) {
		// Allowed: the monitor completes it on its first scan.
		m.logger.Warn("session scheduled end is already in the past",
			zap.String("ownerId", params.OwnerID),
			zap.Time("scheduledEndTime", *params.ScheduledEndTime),
		)
	}

	s := &types.TradingSession{
		ID:               uuid.New().String(),
		OwnerID:          params.OwnerID,
		Mode:             params.Mode,
		Status:           types.SessionActive,
		Strategy:         params.Strategy,
		Symbol:           params.Symbol,
		StartTime:        now,
		ScheduledEndTime: params.ScheduledEndTime,
		InitialCash:      params.InitialCash,
		Cash:             params.InitialCash,
		SharesPerTrade:   params.SharesPerTrade,
		PositionQty:      decimal.Zero,
		EntryPrice:       decimal.Zero,
	}

	// Conflict check and registration are one critical section so two
	// concurrent starts for the same owner cannot both pass.
	m.mu.Lock()
	for _, existing := range m.store.ListByOwner(params.OwnerID) {
		if !existing.Status.Terminal() {
			m.mu.Unlock()
			return nil, ErrActiveSessionExists
		}
	}
	m.store.Put(s)
	m.locks[s.ID] = &sync.Mutex{}
	m.sources[s.ID] = src
	m.mu.Unlock()

	if err := m.persistence.UpdateSessionStatus(ctx, s.ID, s.Status); err != nil {
		m.logger.Warn("failed to persist session status", zap.String("sessionId", s.ID), zap.Error(err))
	}
	m.notifier.Notify(types.EventSessionStarted, s)
	m.metrics.Transition(types.SessionActive)

	m.logger.Info("session started",
		zap.String("sessionId", s.ID),
		zap.String("ownerId", s.OwnerID),
		zap.String("symbol", s.Symbol),
		zap.String("mode", string(s.Mode)),
		zap.String("strategy", s.Strategy.Name),
	)
	return s, nil
}

// Get returns a session after an ownership check.
func (m *Manager) Get(id, ownerID string) (*types.TradingSession, error) {
	s, ok := m.store.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return s, nil
}

// Pause moves an ACTIVE session to PAUSED. Position and history are
// retained untouched.
func (m *Manager) Pause(ctx context.Context, id, ownerID string) error {
	return m.simpleTransition(ctx, id, ownerID, types.SessionPaused)
}

// Resume moves a PAUSED session back to ACTIVE.
func (m *Manager) Resume(ctx context.Context, id, ownerID string) error {
	return m.simpleTransition(ctx, id, ownerID, types.SessionActive)
}

func (m *Manager) simpleTransition(ctx context.Context, id, ownerID string, to types.SessionStatus) error {
	s, err := m.Get(id, ownerID)
	if err != nil {
		return err
	}

	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if err := transition(s, to); err != nil {
		return err
	}
	if err := m.persistence.UpdateSessionStatus(ctx, id, to); err != nil {
		m.logger.Warn("failed to persist session status", zap.String("sessionId", id), zap.Error(err))
	}
	m.metrics.Transition(to)
	m.logger.Info("session transition", zap.String("sessionId", id), zap.String("to", string(to)))
	return nil
}

// Stop terminates a session on user request: liquidates any open
// position, computes the final summary, persists the record, and emits
// SESSION_STOPPED.
func (m *Manager) Stop(ctx context.Context, id, ownerID string) error {
	s, err := m.Get(id, ownerID)
	if err != nil {
		return err
	}
	return m.finalize(ctx, s, types.SessionStopped, types.EventSessionStopped)
}

// Complete terminates a session whose scheduled end has passed. Called
// by the monitor, so there is no ownership check.
func (m *Manager) Complete(ctx context.Context, id string) error {
	s, ok := m.store.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	return m.finalize(ctx, s, types.SessionCompleted, types.EventSessionCompleted)
}

func (m *Manager) finalize(ctx context.Context, s *types.TradingSession, to types.SessionStatus, event types.NotificationEvent) error {
	lock := m.lockFor(s.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := transition(s, to); err != nil {
		return err
	}

	// Liquidate at the last observed close. A session that never saw a
	// bar has no position to close.
	if s.HasPosition() && len(s.Bars) > 0 {
		p := simulator.RestorePortfolio(s.Cash, s.PositionQty, s.EntryPrice)
		bar := s.Bars.Last()
		if trade, ok := p.Sell(s.Symbol, bar); ok {
			s.Trades = append(s.Trades, trade)
			s.Cash = p.Cash()
			s.PositionQty = p.PositionQty()
			s.EntryPrice = p.EntryPrice()
			s.Snapshots = append(s.Snapshots, p.Snapshot(bar))
		}
	}

	now := time.Now().UTC()
	s.EndTime = &now
	s.Summary = simulator.Summarize(s.Trades, s.Snapshots, s.InitialCash)

	if err := m.persistence.SavePerformanceRecord(ctx, s); err != nil {
		m.logger.Warn("failed to save performance record", zap.String("sessionId", s.ID), zap.Error(err))
	}
	if err := m.persistence.UpdateSessionStatus(ctx, s.ID, to); err != nil {
		m.logger.Warn("failed to persist session status", zap.String("sessionId", s.ID), zap.Error(err))
	}
	m.notifier.Notify(event, s)
	m.metrics.Transition(to)

	m.mu.Lock()
	delete(m.sources, s.ID)
	m.mu.Unlock()

	m.logger.Info("session finalized",
		zap.String("sessionId", s.ID),
		zap.String("status", string(to)),
		zap.Int("trades", len(s.Trades)),
		zap.String("finalCapital", s.Summary.FinalCapital.String()),
	)
	return nil
}

// Tick advances an ACTIVE session by one bar: append the bar, evaluate
// one signal, execute at most one trade, and record one snapshot. The
// executed trade is returned, or nil when the bar produced none.
func (m *Manager) Tick(ctx context.Context, id string, bar types.PriceBar) (*types.Trade, error) {
	s, ok := m.store.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}

	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if s.Status != types.SessionActive {
		return nil, ErrSessionNotSteppable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Out-of-order bars are dropped rather than corrupting the series.
	if len(s.Bars) > 0 && !bar.Timestamp.After(s.Bars.Last().Timestamp) {
		return nil, &simulator.DataError{Reason: "bar timestamp not after last bar"}
	}

	m.mu.Lock()
	src := m.sources[id]
	m.mu.Unlock()
	if src == nil {
		return nil, ErrSessionNotFound
	}

	s.Bars = append(s.Bars, bar)
	i := len(s.Bars) - 1

	sig := src.Next(s.Bars, i, s.HasPosition())

	p := simulator.RestorePortfolio(s.Cash, s.PositionQty, s.EntryPrice)
	var executed *types.Trade
	switch sig {
	case types.SignalBuy:
		if trade, ok := p.Buy(s.Symbol, bar, s.SharesPerTrade); ok {
			executed = &trade
		}
	case types.SignalSell:
		if trade, ok := p.Sell(s.Symbol, bar); ok {
			executed = &trade
		}
	}
	if err := p.Check(); err != nil {
		return nil, err
	}
	if executed != nil {
		s.Trades = append(s.Trades, *executed)
	}
	s.Cash = p.Cash()
	s.PositionQty = p.PositionQty()
	s.EntryPrice = p.EntryPrice()
	s.Snapshots = append(s.Snapshots, p.Snapshot(bar))

	return executed, nil
}
