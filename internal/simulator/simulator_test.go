// Package simulator_test provides tests for the portfolio simulator.
package simulator_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vectorquant/strategy-engine/internal/simulator"
	"github.com/vectorquant/strategy-engine/internal/strategy"
	"github.com/vectorquant/strategy-engine/pkg/types"
)

func series(closes ...float64) types.PriceSeries {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make(types.PriceSeries, len(closes))
	for i, c := range closes {
		d := decimal.NewFromFloat(c)
		out[i] = types.PriceBar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      d,
			High:      d,
			Low:       d,
			Close:     d,
			Volume:    decimal.NewFromInt(1000),
		}
	}
	return out
}

func cfg(capital, shares int64) simulator.Config {
	return simulator.Config{
		Symbol:         "AAPL",
		InitialCapital: decimal.NewFromInt(capital),
		SharesPerTrade: decimal.NewFromInt(shares),
	}
}

func TestSimulateRejectsBadInput(t *testing.T) {
	s := series(10, 11)
	signals := []types.Signal{types.SignalHold, types.SignalHold}

	if _, err := simulator.Simulate(signals, nil, cfg(1000, 10)); err == nil {
		t.Error("empty series should be rejected")
	}
	if _, err := simulator.Simulate(signals[:1], s, cfg(1000, 10)); err == nil {
		t.Error("signal/bar count mismatch should be rejected")
	}
	if _, err := simulator.Simulate(signals, s, cfg(0, 10)); err == nil {
		t.Error("non-positive capital should be rejected")
	}
	if _, err := simulator.Simulate(signals, s, cfg(1000, 0)); err == nil {
		t.Error("non-positive shares per trade should be rejected")
	}

	unordered := series(10, 11)
	unordered[1].Timestamp = unordered[0].Timestamp
	if _, err := simulator.Simulate(signals, unordered, cfg(1000, 10)); err == nil {
		t.Error("out-of-order series should be rejected")
	}
}

// Mean reversion over a dip-and-recover series: one buy on the dip, one
// sell on the rally, both fully realized.
func TestSimulateMeanReversionScenario(t *testing.T) {
	src, err := strategy.NewSource(types.StrategyDefinition{
		Kind:       types.StrategyBuiltIn,
		Name:       types.BuiltInMeanReversion,
		Parameters: map[string]float64{"window": 3, "threshold": 0.05},
	})
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}

	s := series(100, 100, 100, 80, 130, 100)
	signals := strategy.GenerateSignals(src, s)

	result, err := simulator.Simulate(signals, s, cfg(1000, 10))
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	if len(result.Trades) != 2 {
		t.Fatalf("trade count = %d, want 2", len(result.Trades))
	}
	buy, sell := result.Trades[0], result.Trades[1]
	if buy.Side != types.TradeSideBuy || sell.Side != types.TradeSideSell {
		t.Fatalf("trade sides = %s, %s; want buy, sell", buy.Side, sell.Side)
	}
	if !buy.Price.Equal(decimal.NewFromInt(80)) || !buy.Quantity.Equal(decimal.NewFromInt(10)) {
		t.Errorf("buy = %s x %s, want 10 x 80", buy.Quantity, buy.Price)
	}
	if !sell.Price.Equal(decimal.NewFromInt(130)) {
		t.Errorf("sell price = %s, want 130", sell.Price)
	}
	if !sell.RealizedPnL.Equal(decimal.NewFromInt(500)) {
		t.Errorf("realized PnL = %s, want 500", sell.RealizedPnL)
	}

	// 1000 - 800 + 1300 = 1500, all cash at the end.
	if !result.Summary.FinalCapital.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("final capital = %s, want 1500", result.Summary.FinalCapital)
	}
	if !result.Summary.TotalReturnDollar.Equal(decimal.NewFromInt(500)) {
		t.Errorf("total return = %s, want 500", result.Summary.TotalReturnDollar)
	}
	if result.Summary.TotalTrades != 2 || result.Summary.WinningTrades != 1 {
		t.Errorf("trade stats = %d total / %d winning, want 2 / 1",
			result.Summary.TotalTrades, result.Summary.WinningTrades)
	}
}

func TestSimulateOneSnapshotPerBar(t *testing.T) {
	s := series(10, 11, 12, 13, 14)
	signals := []types.Signal{
		types.SignalHold, types.SignalBuy, types.SignalHold, types.SignalHold, types.SignalHold,
	}

	result, err := simulator.Simulate(signals, s, cfg(1000, 5))
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	if len(result.Snapshots) != len(s) {
		t.Fatalf("snapshot count = %d, want %d", len(result.Snapshots), len(s))
	}
	for i, snap := range result.Snapshots {
		want := snap.Cash.Add(snap.PositionValue)
		if !snap.TotalValue.Equal(want) {
			t.Errorf("snapshot %d: total %s != cash %s + position %s",
				i, snap.TotalValue, snap.Cash, snap.PositionValue)
		}
	}
}

func TestSimulateForceLiquidatesAtLastBar(t *testing.T) {
	s := series(10, 20)
	signals := []types.Signal{types.SignalBuy, types.SignalHold}

	result, err := simulator.Simulate(signals, s, cfg(100, 5))
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	if len(result.Trades) != 2 {
		t.Fatalf("trade count = %d, want buy plus forced liquidation", len(result.Trades))
	}
	last := result.Trades[1]
	if last.Side != types.TradeSideSell || !last.Price.Equal(decimal.NewFromInt(20)) {
		t.Errorf("forced liquidation = %s at %s, want sell at 20", last.Side, last.Price)
	}

	final := result.Snapshots[len(result.Snapshots)-1]
	if !final.PositionQty.IsZero() {
		t.Errorf("final position = %s, want 0", final.PositionQty)
	}
	// 100 - 50 + 100 = 150.
	if !result.Summary.FinalCapital.Equal(decimal.NewFromInt(150)) {
		t.Errorf("final capital = %s, want 150", result.Summary.FinalCapital)
	}
}

func TestSimulateSkipsUnaffordableBuy(t *testing.T) {
	s := series(1000, 1000)
	signals := []types.Signal{types.SignalBuy, types.SignalHold}

	result, err := simulator.Simulate(signals, s, cfg(500, 10))
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if len(result.Trades) != 0 {
		t.Errorf("trade count = %d, want 0 when cash affords zero shares", len(result.Trades))
	}
	if !result.Summary.FinalCapital.Equal(decimal.NewFromInt(500)) {
		t.Errorf("final capital = %s, want untouched 500", result.Summary.FinalCapital)
	}
}

func TestSimulateCapsBuyAtAffordableShares(t *testing.T) {
	s := series(30, 30)
	signals := []types.Signal{types.SignalBuy, types.SignalHold}

	result, err := simulator.Simulate(signals, s, cfg(100, 10))
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if len(result.Trades) == 0 {
		t.Fatal("expected a capped buy")
	}
	// floor(100/30) = 3 shares, not the requested 10.
	if !result.Trades[0].Quantity.Equal(decimal.NewFromInt(3)) {
		t.Errorf("buy quantity = %s, want 3", result.Trades[0].Quantity)
	}
}

func TestSimulateDeterministic(t *testing.T) {
	s := series(100, 100, 100, 80, 130, 100, 70, 140)

	run := func() *simulator.Result {
		src, err := strategy.NewSource(types.StrategyDefinition{
			Kind:       types.StrategyBuiltIn,
			Name:       types.BuiltInMeanReversion,
			Parameters: map[string]float64{"window": 3, "threshold": 0.05},
		})
		if err != nil {
			t.Fatalf("NewSource failed: %v", err)
		}
		result, err := simulator.Simulate(strategy.GenerateSignals(src, s), s, cfg(1000, 10))
		if err != nil {
			t.Fatalf("Simulate failed: %v", err)
		}
		return result
	}

	first, second := run(), run()
	if len(first.Trades) != len(second.Trades) {
		t.Fatalf("trade counts differ: %d != %d", len(first.Trades), len(second.Trades))
	}
	for i := range first.Trades {
		a, b := first.Trades[i], second.Trades[i]
		if a.Side != b.Side || !a.Price.Equal(b.Price) || !a.Quantity.Equal(b.Quantity) {
			t.Errorf("trade %d differs between runs", i)
		}
	}
	if !first.Summary.FinalCapital.Equal(second.Summary.FinalCapital) {
		t.Errorf("final capital differs: %s != %s",
			first.Summary.FinalCapital, second.Summary.FinalCapital)
	}
}

func TestSummarizeTradeStatistics(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	trade := func(side types.TradeSide, pnl int64, minute int) types.Trade {
		return types.Trade{
			Timestamp:   base.Add(time.Duration(minute) * time.Minute),
			Side:        side,
			Quantity:    decimal.NewFromInt(1),
			Price:       decimal.NewFromInt(100),
			RealizedPnL: decimal.NewFromInt(pnl),
		}
	}

	trades := []types.Trade{
		trade(types.TradeSideBuy, 0, 0),
		trade(types.TradeSideSell, 100, 1),
		trade(types.TradeSideBuy, 0, 2),
		trade(types.TradeSideSell, -40, 3),
	}
	snapshots := []types.PortfolioSnapshot{
		{Timestamp: base, Cash: decimal.NewFromInt(1000), TotalValue: decimal.NewFromInt(1000)},
		{Timestamp: base.Add(time.Minute), Cash: decimal.NewFromInt(1060), TotalValue: decimal.NewFromInt(1060)},
	}

	summary := simulator.Summarize(trades, snapshots, decimal.NewFromInt(1000))

	if summary.TotalTrades != 4 {
		t.Errorf("total trades = %d, want 4", summary.TotalTrades)
	}
	if summary.WinningTrades != 1 || summary.LosingTrades != 1 || summary.BreakEvenTrades != 2 {
		t.Errorf("win/loss/breakeven = %d/%d/%d, want 1/1/2",
			summary.WinningTrades, summary.LosingTrades, summary.BreakEvenTrades)
	}
	// 1 winner out of 4 trades.
	if !summary.WinRate.Equal(decimal.NewFromFloat(0.25)) {
		t.Errorf("win rate = %s, want 0.25", summary.WinRate)
	}
	if !summary.ProfitFactor.Equal(decimal.NewFromFloat(2.5)) {
		t.Errorf("profit factor = %s, want 2.5", summary.ProfitFactor)
	}
	if !summary.LargestWin.Equal(decimal.NewFromInt(100)) || !summary.LargestLoss.Equal(decimal.NewFromInt(40)) {
		t.Errorf("largest win/loss = %s/%s, want 100/40", summary.LargestWin, summary.LargestLoss)
	}
	if !summary.AvgWin.Equal(decimal.NewFromInt(100)) || !summary.AvgLoss.Equal(decimal.NewFromInt(40)) {
		t.Errorf("avg win/loss = %s/%s, want 100/40", summary.AvgWin, summary.AvgLoss)
	}
}

func TestSummarizeProfitFactorCap(t *testing.T) {
	trades := []types.Trade{
		{Side: types.TradeSideSell, RealizedPnL: decimal.NewFromInt(100)},
	}
	summary := simulator.Summarize(trades, nil, decimal.NewFromInt(1000))
	if !summary.ProfitFactor.Equal(decimal.NewFromInt(9999)) {
		t.Errorf("profit factor with no losses = %s, want capped 9999", summary.ProfitFactor)
	}

	empty := simulator.Summarize(nil, nil, decimal.NewFromInt(1000))
	if !empty.ProfitFactor.IsZero() {
		t.Errorf("profit factor with no trades = %s, want 0", empty.ProfitFactor)
	}
	if !empty.WinRate.IsZero() {
		t.Errorf("win rate with no trades = %s, want 0", empty.WinRate)
	}
}

func TestSummarizeMaxDrawdown(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := func(total int64, minute int) types.PortfolioSnapshot {
		return types.PortfolioSnapshot{
			Timestamp:  base.Add(time.Duration(minute) * time.Minute),
			Cash:       decimal.NewFromInt(total),
			TotalValue: decimal.NewFromInt(total),
		}
	}

	// Peak 1200, trough 900: drawdown 25%.
	snapshots := []types.PortfolioSnapshot{
		snap(1000, 0), snap(1200, 1), snap(900, 2), snap(1100, 3),
	}
	summary := simulator.Summarize(nil, snapshots, decimal.NewFromInt(1000))
	if !summary.MaxDrawdown.Equal(decimal.NewFromFloat(0.25)) {
		t.Errorf("max drawdown = %s, want 0.25", summary.MaxDrawdown)
	}
}
