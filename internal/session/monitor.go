package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vectorquant/strategy-engine/internal/collab"
	"github.com/vectorquant/strategy-engine/internal/simulator"
	"github.com/vectorquant/strategy-engine/pkg/types"
)

// DefaultPollInterval is how often the monitor steps active sessions.
const DefaultPollInterval = 5 * time.Second

// Monitor drives active sessions forward on a fixed interval: one bar
// of market data and one Tick per active session per pass, plus the
// scheduled-end sweep. A failure in one session never stalls the rest.
type Monitor struct {
	logger   *zap.Logger
	manager  *Manager
	store    Store
	market   collab.MarketData
	metrics  *Metrics
	interval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMonitor creates a session monitor. metrics may be nil.
func NewMonitor(
	logger *zap.Logger,
	manager *Manager,
	store Store,
	market collab.MarketData,
	metrics *Metrics,
	interval time.Duration,
) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Monitor{
		logger:   logger.Named("monitor"),
		manager:  manager,
		store:    store,
		market:   market,
		metrics:  metrics,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the polling loop. The first pass runs immediately, so
// a session whose scheduled end was already in the past at startup
// completes on the first scan.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.loop()
	m.logger.Info("session monitor started", zap.Duration("interval", m.interval))
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.pass()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.pass()
		}
	}
}

func (m *Monitor) pass() {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()

	m.metrics.TickPass()
	now := time.Now().UTC()

	active := 0
	for _, s := range m.store.ListNonTerminal() {
		if s.ScheduledEndTime != nil && !now.Before(*s.ScheduledEndTime) {
			if err := m.manager.Complete(ctx, s.ID); err != nil {
				m.metrics.StepFailure()
				m.logger.Error("failed to complete expired session",
					zap.String("sessionId", s.ID), zap.Error(err))
			}
			continue
		}
		if s.Status != types.SessionActive {
			continue
		}
		active++
		m.step(ctx, s)
	}
	m.metrics.SetActive(active)
}

// step fetches one bar and ticks one session. Transient market data
// failures are skipped quietly; anything else is logged and counted
// but never propagated to other sessions.
func (m *Monitor) step(ctx context.Context, s *types.TradingSession) {
	defer func() {
		if r := recover(); r != nil {
			m.metrics.StepFailure()
			m.logger.Error("session step panicked",
				zap.String("sessionId", s.ID), zap.Any("panic", r))
		}
	}()

	bar, err := m.market.NextBar(ctx, s.Symbol)
	if err != nil {
		if collab.IsTransient(err) {
			m.logger.Debug("market data unavailable this pass",
				zap.String("sessionId", s.ID), zap.String("symbol", s.Symbol))
			return
		}
		m.metrics.StepFailure()
		m.logger.Error("market data failure",
			zap.String("sessionId", s.ID), zap.String("symbol", s.Symbol), zap.Error(err))
		return
	}

	trade, err := m.manager.Tick(ctx, s.ID, bar)
	if err != nil {
		m.metrics.StepFailure()
		var inv *simulator.InvariantError
		if errors.As(err, &inv) {
			// Corrupted simulation state is fatal for this session
			// only. Stop it so the monitor never re-steps it.
			m.logger.Error("session state corrupted, stopping",
				zap.String("sessionId", s.ID), zap.Error(err))
			if stopErr := m.manager.Stop(ctx, s.ID, s.OwnerID); stopErr != nil {
				m.logger.Error("failed to stop corrupted session",
					zap.String("sessionId", s.ID), zap.Error(stopErr))
			}
			return
		}
		m.logger.Error("session tick failed",
			zap.String("sessionId", s.ID), zap.Error(err))
		return
	}
	if trade != nil {
		m.logger.Info("session trade",
			zap.String("sessionId", s.ID),
			zap.String("side", string(trade.Side)),
			zap.String("quantity", trade.Quantity.String()),
			zap.String("price", trade.Price.String()),
		)
	}
}

// Stop halts the loop and waits for the in-flight pass to finish.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	m.logger.Info("session monitor stopped")
}
