// Package session_test provides tests for the session lifecycle.
package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vectorquant/strategy-engine/internal/collab"
	"github.com/vectorquant/strategy-engine/internal/session"
	"github.com/vectorquant/strategy-engine/pkg/types"
)

func bar(minute int, close float64) types.PriceBar {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := decimal.NewFromFloat(close)
	return types.PriceBar{
		Timestamp: base.Add(time.Duration(minute) * time.Minute),
		Open:      d,
		High:      d,
		Low:       d,
		Close:     d,
		Volume:    decimal.NewFromInt(1000),
	}
}

// alwaysBuy fires its buy tree on every bar with a close above 1. The
// sell tree can never fire.
func alwaysBuy() types.StrategyDefinition {
	return types.StrategyDefinition{
		Kind: types.StrategyCustom,
		Name: "always-buy",
		BuyConditions: &types.ConditionNode{
			Kind: types.NodeComparison, Compare: types.CmpGT,
			Left:  &types.Operand{Kind: types.OperandPrice, Field: types.PriceClose},
			Right: &types.Operand{Kind: types.OperandConstant, Value: 1},
		},
		SellConditions: &types.ConditionNode{
			Kind: types.NodeComparison, Compare: types.CmpLT,
			Left:  &types.Operand{Kind: types.OperandPrice, Field: types.PriceClose},
			Right: &types.Operand{Kind: types.OperandConstant, Value: 0},
		},
	}
}

func startParams(owner string) session.StartParams {
	return session.StartParams{
		OwnerID:        owner,
		Mode:           types.SessionModePaper,
		Strategy:       alwaysBuy(),
		Symbol:         "AAPL",
		InitialCash:    decimal.NewFromInt(1000),
		SharesPerTrade: decimal.NewFromInt(5),
	}
}

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []types.NotificationEvent
}

func (n *recordingNotifier) Notify(event types.NotificationEvent, _ *types.TradingSession) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) all() []types.NotificationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]types.NotificationEvent(nil), n.events...)
}

func newManager(t *testing.T) (*session.Manager, *session.MemoryStore, *collab.MemoryPersistence, *recordingNotifier) {
	t.Helper()
	store := session.NewMemoryStore()
	persistence := collab.NewMemoryPersistence()
	notifier := &recordingNotifier{}
	manager := session.NewManager(zap.NewNop(), store, persistence, notifier,
		collab.AllowAllEntitlements{}, nil)
	return manager, store, persistence, notifier
}

func TestStartRejectsSecondActiveSessionPerOwner(t *testing.T) {
	manager, _, _, _ := newManager(t)
	ctx := context.Background()

	first, err := manager.Start(ctx, startParams("user-1"))
	if err != nil {
		t.Fatalf("first Start failed: %v", err)
	}

	if _, err := manager.Start(ctx, startParams("user-1")); err != session.ErrActiveSessionExists {
		t.Errorf("second Start error = %v, want ErrActiveSessionExists", err)
	}

	// A different owner is unaffected.
	if _, err := manager.Start(ctx, startParams("user-2")); err != nil {
		t.Errorf("other owner Start failed: %v", err)
	}

	// After the first session terminates, the owner can start again.
	if err := manager.Stop(ctx, first.ID, "user-1"); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if _, err := manager.Start(ctx, startParams("user-1")); err != nil {
		t.Errorf("Start after Stop failed: %v", err)
	}
}

func TestStartValidatesInputs(t *testing.T) {
	manager, _, _, _ := newManager(t)
	ctx := context.Background()

	bad := startParams("user-1")
	bad.InitialCash = decimal.Zero
	if _, err := manager.Start(ctx, bad); err == nil {
		t.Error("zero initial cash should be rejected")
	}

	bad = startParams("user-1")
	bad.Symbol = ""
	if _, err := manager.Start(ctx, bad); err == nil {
		t.Error("empty symbol should be rejected")
	}

	bad = startParams("user-1")
	bad.Strategy = types.StrategyDefinition{Kind: types.StrategyBuiltIn, Name: "nope"}
	if _, err := manager.Start(ctx, bad); err == nil {
		t.Error("unknown strategy should be rejected")
	}
}

func TestLifecycleTransitions(t *testing.T) {
	manager, _, _, _ := newManager(t)
	ctx := context.Background()

	s, err := manager.Start(ctx, startParams("user-1"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// active -> active is not a transition.
	if err := manager.Resume(ctx, s.ID, "user-1"); err == nil {
		t.Error("Resume of an active session should fail")
	}

	if err := manager.Pause(ctx, s.ID, "user-1"); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if s.Status != types.SessionPaused {
		t.Errorf("status = %s, want paused", s.Status)
	}

	if err := manager.Resume(ctx, s.ID, "user-1"); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if s.Status != types.SessionActive {
		t.Errorf("status = %s, want active", s.Status)
	}

	if err := manager.Stop(ctx, s.ID, "user-1"); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Terminal states admit nothing.
	var transErr *session.StateTransitionError
	err = manager.Pause(ctx, s.ID, "user-1")
	if err == nil {
		t.Fatal("Pause of a stopped session should fail")
	}
	if te, ok := err.(*session.StateTransitionError); !ok {
		t.Errorf("error type = %T, want %T", err, transErr)
	} else if te.From != types.SessionStopped || te.To != types.SessionPaused {
		t.Errorf("transition error = %s -> %s, want stopped -> paused", te.From, te.To)
	}
	if err := manager.Stop(ctx, s.ID, "user-1"); err == nil {
		t.Error("double Stop should fail")
	}
}

func TestOwnershipEnforced(t *testing.T) {
	manager, _, _, _ := newManager(t)
	ctx := context.Background()

	s, err := manager.Start(ctx, startParams("user-1"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := manager.Stop(ctx, s.ID, "intruder"); err != session.ErrNotOwner {
		t.Errorf("Stop by non-owner error = %v, want ErrNotOwner", err)
	}
	if _, err := manager.Get(s.ID, "intruder"); err != session.ErrNotOwner {
		t.Errorf("Get by non-owner error = %v, want ErrNotOwner", err)
	}
	if _, err := manager.Get("missing", "user-1"); err != session.ErrSessionNotFound {
		t.Errorf("Get of missing session error = %v, want ErrSessionNotFound", err)
	}
}

func TestTickExecutesAtMostOneTrade(t *testing.T) {
	manager, _, _, _ := newManager(t)
	ctx := context.Background()

	s, err := manager.Start(ctx, startParams("user-1"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	trade, err := manager.Tick(ctx, s.ID, bar(0, 100))
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if trade == nil || trade.Side != types.TradeSideBuy {
		t.Fatal("first tick of an always-buy strategy should buy")
	}

	// Second buy signal while long collapses to hold.
	trade, err = manager.Tick(ctx, s.ID, bar(1, 101))
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if trade != nil {
		t.Errorf("second tick executed %s, want no trade while long", trade.Side)
	}

	if len(s.Trades) != 1 {
		t.Errorf("trade log length = %d, want 1", len(s.Trades))
	}
	if len(s.Snapshots) != 2 || len(s.Bars) != 2 {
		t.Errorf("snapshots/bars = %d/%d, want 2/2", len(s.Snapshots), len(s.Bars))
	}

	// Out-of-order bars are rejected.
	if _, err := manager.Tick(ctx, s.ID, bar(1, 99)); err == nil {
		t.Error("non-increasing bar timestamp should be rejected")
	}

	// Paused sessions are not steppable.
	if err := manager.Pause(ctx, s.ID, "user-1"); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if _, err := manager.Tick(ctx, s.ID, bar(2, 102)); err != session.ErrSessionNotSteppable {
		t.Errorf("Tick of paused session error = %v, want ErrSessionNotSteppable", err)
	}
}

func TestStopLiquidatesAndFinalizes(t *testing.T) {
	manager, _, persistence, notifier := newManager(t)
	ctx := context.Background()

	s, err := manager.Start(ctx, startParams("user-1"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := manager.Tick(ctx, s.ID, bar(0, 100)); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if _, err := manager.Tick(ctx, s.ID, bar(1, 120)); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if !s.HasPosition() {
		t.Fatal("session should hold a position before Stop")
	}

	if err := manager.Stop(ctx, s.ID, "user-1"); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if s.HasPosition() {
		t.Error("Stop should liquidate the open position")
	}
	if s.EndTime == nil {
		t.Error("EndTime should be set")
	}
	if s.Summary == nil {
		t.Fatal("Summary should be computed")
	}
	// 1000 - 500 + 5*120 = 1100.
	if !s.Summary.FinalCapital.Equal(decimal.NewFromInt(1100)) {
		t.Errorf("final capital = %s, want 1100", s.Summary.FinalCapital)
	}

	if _, ok := persistence.Record(s.ID); !ok {
		t.Error("performance record should be persisted")
	}
	if status, _ := persistence.Status(s.ID); status != types.SessionStopped {
		t.Errorf("persisted status = %s, want stopped", status)
	}

	events := notifier.all()
	if len(events) != 2 || events[0] != types.EventSessionStarted || events[1] != types.EventSessionStopped {
		t.Errorf("events = %v, want [SESSION_STARTED SESSION_STOPPED]", events)
	}
}

func TestMonitorCompletesExpiredSession(t *testing.T) {
	manager, store, _, notifier := newManager(t)
	ctx := context.Background()

	// Scheduled end already in the past at start: the monitor's first
	// scan must complete it.
	params := startParams("user-1")
	past := time.Now().UTC().Add(-time.Minute)
	params.ScheduledEndTime = &past

	s, err := manager.Start(ctx, params)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	feed := collab.NewReplayFeed(map[string]types.PriceSeries{
		"AAPL": {bar(0, 100), bar(1, 101), bar(2, 102)},
	})
	monitor := session.NewMonitor(zap.NewNop(), manager, store, feed, nil, 10*time.Millisecond)
	monitor.Start()
	defer monitor.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Status == types.SessionCompleted {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if s.Status != types.SessionCompleted {
		t.Fatalf("status = %s, want completed", s.Status)
	}

	events := notifier.all()
	if len(events) < 2 || events[len(events)-1] != types.EventSessionCompleted {
		t.Errorf("events = %v, want SESSION_COMPLETED last", events)
	}
}

func TestMonitorStepsActiveSessions(t *testing.T) {
	manager, store, _, _ := newManager(t)
	ctx := context.Background()

	s, err := manager.Start(ctx, startParams("user-1"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	feed := collab.NewReplayFeed(map[string]types.PriceSeries{
		"AAPL": {bar(0, 100), bar(1, 101), bar(2, 102)},
	})
	monitor := session.NewMonitor(zap.NewNop(), manager, store, feed, nil, 10*time.Millisecond)
	monitor.Start()
	defer monitor.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(s.Bars) >= 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(s.Bars) < 3 {
		t.Fatalf("bars consumed = %d, want 3", len(s.Bars))
	}
	if len(s.Trades) == 0 {
		t.Error("always-buy session should have traded")
	}

	// The feed is exhausted now; exhaustion is transient and must not
	// kill the session.
	time.Sleep(50 * time.Millisecond)
	if s.Status != types.SessionActive {
		t.Errorf("status after feed exhaustion = %s, want active", s.Status)
	}
}

func TestStaticEntitlementsGateLiveMode(t *testing.T) {
	store := session.NewMemoryStore()
	manager := session.NewManager(zap.NewNop(), store, collab.NewMemoryPersistence(),
		&recordingNotifier{}, collab.NewStaticEntitlements([]string{"pro-user"}), nil)
	ctx := context.Background()

	params := startParams("free-user")
	params.Mode = types.SessionModeLive
	if _, err := manager.Start(ctx, params); err == nil {
		t.Error("live session for unentitled owner should be rejected")
	}

	params = startParams("pro-user")
	params.Mode = types.SessionModeLive
	if _, err := manager.Start(ctx, params); err != nil {
		t.Errorf("live session for entitled owner failed: %v", err)
	}

	// Paper mode is open to everyone.
	if _, err := manager.Start(ctx, startParams("free-user")); err != nil {
		t.Errorf("paper session failed: %v", err)
	}
}
