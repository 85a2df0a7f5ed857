package simulator

import (
	"math"

	"github.com/shopspring/decimal"
	"github.com/vectorquant/strategy-engine/pkg/types"
)

// profitFactorCap is reported when there are winning trades and no
// losing ones, where the true ratio is unbounded.
var profitFactorCap = decimal.NewFromInt(9999)

// Summarize computes the performance summary over a completed trade
// log and snapshot series. Buy trades carry no realized P&L and count
// as break-even; win/loss statistics come from sell trades only.
func Summarize(trades []types.Trade, snapshots []types.PortfolioSnapshot, initialCapital decimal.Decimal) *types.PerformanceSummary {
	summary := &types.PerformanceSummary{
		FinalCapital: initialCapital,
		TotalTrades:  len(trades),
	}

	var totalWins, totalLosses decimal.Decimal
	for _, trade := range trades {
		if trade.Side != types.TradeSideSell {
			summary.BreakEvenTrades++
			continue
		}
		switch {
		case trade.RealizedPnL.IsPositive():
			summary.WinningTrades++
			totalWins = totalWins.Add(trade.RealizedPnL)
			if trade.RealizedPnL.GreaterThan(summary.LargestWin) {
				summary.LargestWin = trade.RealizedPnL
			}
		case trade.RealizedPnL.IsNegative():
			summary.LosingTrades++
			loss := trade.RealizedPnL.Abs()
			totalLosses = totalLosses.Add(loss)
			if loss.GreaterThan(summary.LargestLoss) {
				summary.LargestLoss = loss
			}
		default:
			summary.BreakEvenTrades++
		}
	}

	if summary.TotalTrades > 0 {
		summary.WinRate = decimal.NewFromInt(int64(summary.WinningTrades)).
			Div(decimal.NewFromInt(int64(summary.TotalTrades)))
	}
	if summary.WinningTrades > 0 {
		summary.AvgWin = totalWins.Div(decimal.NewFromInt(int64(summary.WinningTrades)))
	}
	if summary.LosingTrades > 0 {
		summary.AvgLoss = totalLosses.Div(decimal.NewFromInt(int64(summary.LosingTrades)))
	}

	switch {
	case !totalLosses.IsZero():
		summary.ProfitFactor = totalWins.Div(totalLosses)
	case totalWins.IsPositive():
		summary.ProfitFactor = profitFactorCap
	}

	if len(snapshots) > 0 {
		final := snapshots[len(snapshots)-1].TotalValue
		summary.FinalCapital = final
		summary.TotalReturnDollar = final.Sub(initialCapital)
		if !initialCapital.IsZero() {
			summary.TotalReturn = summary.TotalReturnDollar.Div(initialCapital)
		}
	}

	summary.MaxDrawdown = maxDrawdown(snapshots)

	returns := barReturns(snapshots)
	if len(returns) > 1 {
		avg := mean(returns)
		vol := stdDev(returns)
		summary.Volatility = decimal.NewFromFloat(vol)
		if vol > 0 {
			summary.SharpeRatio = decimal.NewFromFloat(avg / vol * math.Sqrt(252))
		}
		if downside := downsideDeviation(returns); downside > 0 {
			summary.SortinoRatio = decimal.NewFromFloat(avg / downside * math.Sqrt(252))
		}
	}

	return summary
}

// maxDrawdown is the maximum peak-to-trough fractional decline of
// total value, tracked against a running high-water mark.
func maxDrawdown(snapshots []types.PortfolioSnapshot) decimal.Decimal {
	if len(snapshots) == 0 {
		return decimal.Zero
	}

	maxDD := decimal.Zero
	peak := snapshots[0].TotalValue
	for _, snap := range snapshots {
		if snap.TotalValue.GreaterThan(peak) {
			peak = snap.TotalValue
		}
		if peak.IsPositive() {
			dd := peak.Sub(snap.TotalValue).Div(peak)
			if dd.GreaterThan(maxDD) {
				maxDD = dd
			}
		}
	}
	return maxDD
}

func barReturns(snapshots []types.PortfolioSnapshot) []float64 {
	if len(snapshots) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(snapshots)-1)
	for i := 1; i < len(snapshots); i++ {
		prev := snapshots[i-1].TotalValue
		if prev.IsZero() {
			continue
		}
		ret := snapshots[i].TotalValue.Sub(prev).Div(prev)
		returns = append(returns, ret.InexactFloat64())
	}
	return returns
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sumSquares float64
	for _, v := range values {
		diff := v - m
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}

func downsideDeviation(returns []float64) float64 {
	var negative []float64
	for _, r := range returns {
		if r < 0 {
			negative = append(negative, r)
		}
	}
	return stdDev(negative)
}
