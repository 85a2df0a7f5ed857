// Package collab defines the external collaborator interfaces the
// engine depends on (market data, persistence, notifications,
// entitlements) together with the in-process implementations used by
// the daemon and by tests.
package collab

import (
	"context"

	"github.com/vectorquant/strategy-engine/pkg/types"
)

// CollabError represents a collaborator error.
type CollabError struct {
	Message   string
	Transient bool
}

func (e *CollabError) Error() string { return e.Message }

var (
	// ErrSymbolNotFound means the symbol does not exist in the data
	// source. Not retryable.
	ErrSymbolNotFound = &CollabError{Message: "symbol not found"}

	// ErrTransient means the data source failed temporarily and the
	// caller may retry on the next pass.
	ErrTransient = &CollabError{Message: "transient data source failure", Transient: true}
)

// IsTransient reports whether err is a retryable collaborator failure.
func IsTransient(err error) bool {
	ce, ok := err.(*CollabError)
	return ok && ce.Transient
}

// MarketData supplies price bars. GetBars returns full history for
// backtests; NextBar advances a live feed by one bar per call.
type MarketData interface {
	GetBars(ctx context.Context, symbol string) (types.PriceSeries, error)
	NextBar(ctx context.Context, symbol string) (types.PriceBar, error)
}

// Persistence records session outcomes. The engine treats it as
// write-mostly: performance records on finalization, status on every
// transition.
type Persistence interface {
	SavePerformanceRecord(ctx context.Context, session *types.TradingSession) error
	UpdateSessionStatus(ctx context.Context, sessionID string, status types.SessionStatus) error
	LoadActiveSessions(ctx context.Context) ([]*types.TradingSession, error)
}

// Notifier delivers session lifecycle events. Delivery is best-effort;
// a failed notification never blocks or reverses a state transition.
type Notifier interface {
	Notify(event types.NotificationEvent, session *types.TradingSession)
}

// Entitlements gates session creation per owner.
type Entitlements interface {
	CanOwnerStartSession(ctx context.Context, ownerID string, mode types.SessionMode) error
}
