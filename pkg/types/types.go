// Package types provides shared type definitions for the strategy engine.
package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Signal is the per-bar directive produced by a strategy.
type Signal string

const (
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
	SignalHold Signal = "hold"
)

// TradeSide represents buy or sell.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// SessionMode distinguishes paper from live execution.
type SessionMode string

const (
	SessionModePaper SessionMode = "paper"
	SessionModeLive  SessionMode = "live"
)

// SessionStatus is the lifecycle state of a trading session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionStopped   SessionStatus = "stopped"
	SessionCompleted SessionStatus = "completed"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionStopped || s == SessionCompleted
}

// PriceBar represents a single candlestick.
type PriceBar struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// PriceSeries is an ordered sequence of bars, monotonically increasing
// in timestamp. Gaps are tolerated but never interpolated.
type PriceSeries []PriceBar

// Validate checks ordering. An empty series is valid; callers that need
// a minimum length enforce it themselves.
func (ps PriceSeries) Validate() error {
	for i := 1; i < len(ps); i++ {
		if !ps[i].Timestamp.After(ps[i-1].Timestamp) {
			return fmt.Errorf("series out of order at index %d: %s !> %s",
				i, ps[i].Timestamp, ps[i-1].Timestamp)
		}
	}
	return nil
}

// Last returns the final bar. Panics on an empty series.
func (ps PriceSeries) Last() PriceBar {
	return ps[len(ps)-1]
}

// Trade represents an executed simulated trade. RealizedPnL is set on
// sell trades only.
type Trade struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Symbol      string          `json:"symbol"`
	Side        TradeSide       `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	RealizedPnL decimal.Decimal `json:"realizedPnl"`
}

// PortfolioSnapshot is the end-of-bar portfolio state, one per bar
// processed, with the open position marked to the bar's close.
type PortfolioSnapshot struct {
	Timestamp     time.Time       `json:"timestamp"`
	Cash          decimal.Decimal `json:"cash"`
	PositionQty   decimal.Decimal `json:"positionQty"`
	PositionValue decimal.Decimal `json:"positionValue"`
	TotalValue    decimal.Decimal `json:"totalValue"`
}

// PerformanceSummary is the read-only aggregate over a completed trade
// log and snapshot series. Computed once at simulation end.
type PerformanceSummary struct {
	TotalReturn       decimal.Decimal `json:"totalReturn"`
	TotalReturnDollar decimal.Decimal `json:"totalReturnDollar"`
	FinalCapital      decimal.Decimal `json:"finalCapital"`
	MaxDrawdown       decimal.Decimal `json:"maxDrawdown"`
	WinRate           decimal.Decimal `json:"winRate"`
	TotalTrades       int             `json:"totalTrades"`
	WinningTrades     int             `json:"winningTrades"`
	LosingTrades      int             `json:"losingTrades"`
	BreakEvenTrades   int             `json:"breakEvenTrades"`
	AvgWin            decimal.Decimal `json:"avgWin"`
	AvgLoss           decimal.Decimal `json:"avgLoss"`
	ProfitFactor      decimal.Decimal `json:"profitFactor"`
	LargestWin        decimal.Decimal `json:"largestWin"`
	LargestLoss       decimal.Decimal `json:"largestLoss"`
	Volatility        decimal.Decimal `json:"volatility"`
	SharpeRatio       decimal.Decimal `json:"sharpeRatio"`
	SortinoRatio      decimal.Decimal `json:"sortinoRatio"`
}

// NotificationEvent names a session lifecycle notification.
type NotificationEvent string

const (
	EventSessionStarted   NotificationEvent = "SESSION_STARTED"
	EventSessionStopped   NotificationEvent = "SESSION_STOPPED"
	EventSessionCompleted NotificationEvent = "SESSION_COMPLETED"
)
