package simulator

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vectorquant/strategy-engine/pkg/types"
)

// Config parametrizes a simulation run.
type Config struct {
	Symbol         string
	InitialCapital decimal.Decimal
	SharesPerTrade decimal.Decimal
}

// Result is the complete output of one simulation: the per-bar signal
// stream, the ordered trade log, one snapshot per bar, and the summary
// computed once at the end.
type Result struct {
	Signals   []types.Signal            `json:"signals"`
	Trades    []types.Trade             `json:"trades"`
	Snapshots []types.PortfolioSnapshot `json:"snapshots"`
	Summary   *types.PerformanceSummary `json:"summary"`
}

// SignalFunc produces the signal for bar i. The long argument reflects
// the portfolio's executed position, so a skipped buy leaves it false.
type SignalFunc func(series types.PriceSeries, i int, long bool) types.Signal

// Simulate replays a precomputed per-bar signal stream against a price
// series. Callers evaluating a strategy should prefer Run, which feeds
// executed position state back into each signal decision.
func Simulate(signals []types.Signal, series types.PriceSeries, cfg Config) (*Result, error) {
	if len(signals) != len(series) {
		return nil, &DataError{
			Reason: fmt.Sprintf("signal count %d does not match bar count %d", len(signals), len(series)),
		}
	}
	return Run(func(_ types.PriceSeries, i int, _ bool) types.Signal {
		return signals[i]
	}, series, cfg)
}

// Run drives a signal function through a price series bar by bar.
// Deterministic: identical inputs always produce identical output. On
// buy with no open position it buys min(sharesPerTrade, floor(cash/
// price)) shares; on sell it liquidates the entire position; at the
// final bar any open position is force-liquidated at the last close so
// final capital is fully realized. One snapshot is appended per bar
// regardless of trading activity. The signal function sees the same
// executed position state a live session observes, so backtest and
// live runs agree for identical inputs.
func Run(next SignalFunc, series types.PriceSeries, cfg Config) (*Result, error) {
	if len(series) == 0 {
		return nil, &DataError{Reason: "empty price series"}
	}
	if err := series.Validate(); err != nil {
		return nil, &DataError{Reason: err.Error()}
	}
	if !cfg.InitialCapital.IsPositive() {
		return nil, &DataError{Reason: "initial capital must be positive"}
	}
	if !cfg.SharesPerTrade.IsPositive() {
		return nil, &DataError{Reason: "shares per trade must be positive"}
	}

	portfolio := NewPortfolio(cfg.InitialCapital)
	signals := make([]types.Signal, 0, len(series))
	trades := make([]types.Trade, 0)
	snapshots := make([]types.PortfolioSnapshot, 0, len(series))

	for i, bar := range series {
		sig := next(series, i, portfolio.HasPosition())
		signals = append(signals, sig)

		switch sig {
		case types.SignalBuy:
			if trade, ok := portfolio.Buy(cfg.Symbol, bar, cfg.SharesPerTrade); ok {
				trades = append(trades, trade)
			}
		case types.SignalSell:
			if trade, ok := portfolio.Sell(cfg.Symbol, bar); ok {
				trades = append(trades, trade)
			}
		}

		// Force-liquidate at the last bar so the run ends all-cash. The
		// closing trade is part of the log and the win/loss statistics.
		if i == len(series)-1 {
			if trade, ok := portfolio.Sell(cfg.Symbol, bar); ok {
				trades = append(trades, trade)
			}
		}

		if err := portfolio.Check(); err != nil {
			return nil, err
		}

		snapshots = append(snapshots, portfolio.Snapshot(bar))
	}

	summary := Summarize(trades, snapshots, cfg.InitialCapital)
	return &Result{Signals: signals, Trades: trades, Snapshots: snapshots, Summary: summary}, nil
}
