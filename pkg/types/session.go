// Package types provides the trading session model.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradingSession is a continuously-running (paper or live) execution of
// a strategy. State is mutated only by the session manager through
// defined transitions; the session exclusively owns its trade log and
// snapshot history for its lifetime.
type TradingSession struct {
	ID               string              `json:"id"`
	OwnerID          string              `json:"ownerId"`
	Mode             SessionMode         `json:"mode"`
	Status           SessionStatus       `json:"status"`
	Strategy         StrategyDefinition  `json:"strategy"`
	Symbol           string              `json:"symbol"`
	StartTime        time.Time           `json:"startTime"`
	ScheduledEndTime *time.Time          `json:"scheduledEndTime,omitempty"`
	EndTime          *time.Time          `json:"endTime,omitempty"`
	InitialCash      decimal.Decimal     `json:"initialCash"`
	Cash             decimal.Decimal     `json:"cash"`
	SharesPerTrade   decimal.Decimal     `json:"sharesPerTrade"`
	PositionQty      decimal.Decimal     `json:"positionQty"`
	EntryPrice       decimal.Decimal     `json:"entryPrice"`
	Trades           []Trade             `json:"trades"`
	Snapshots        []PortfolioSnapshot `json:"snapshots"`
	Bars             PriceSeries         `json:"-"`
	Summary          *PerformanceSummary `json:"summary,omitempty"`
}

// HasPosition reports whether the session currently holds shares.
func (s *TradingSession) HasPosition() bool {
	return s.PositionQty.IsPositive()
}

// Equity returns cash plus the open position marked at the given price.
func (s *TradingSession) Equity(price decimal.Decimal) decimal.Decimal {
	return s.Cash.Add(s.PositionQty.Mul(price))
}
