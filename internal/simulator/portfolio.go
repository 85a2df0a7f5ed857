// Package simulator turns a signal stream and a price series into
// trades, portfolio state and a performance summary.
package simulator

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vectorquant/strategy-engine/pkg/types"
)

// DataError reports an unusable input series or configuration. The
// simulation aborts cleanly with no partial result.
type DataError struct {
	Reason string
}

func (e *DataError) Error() string { return "data error: " + e.Reason }

// InvariantError reports corrupted simulation state such as negative
// cash. Fatal for the affected run only.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string { return "simulation invariant violated: " + e.Reason }

// Portfolio tracks cash and a single open position. Single-symbol,
// single-open-position model: no partial fills, no short selling. A
// Portfolio is owned by exactly one simulation run or session and is
// not safe for concurrent use.
type Portfolio struct {
	cash        decimal.Decimal
	positionQty decimal.Decimal
	entryPrice  decimal.Decimal
}

// NewPortfolio creates an all-cash portfolio.
func NewPortfolio(initialCash decimal.Decimal) *Portfolio {
	return &Portfolio{cash: initialCash}
}

// RestorePortfolio rebuilds a portfolio from persisted session state.
func RestorePortfolio(cash, positionQty, entryPrice decimal.Decimal) *Portfolio {
	return &Portfolio{cash: cash, positionQty: positionQty, entryPrice: entryPrice}
}

// Cash returns available cash.
func (p *Portfolio) Cash() decimal.Decimal { return p.cash }

// PositionQty returns the open position quantity, zero when flat.
func (p *Portfolio) PositionQty() decimal.Decimal { return p.positionQty }

// EntryPrice returns the open position's entry price, zero when flat.
func (p *Portfolio) EntryPrice() decimal.Decimal { return p.entryPrice }

// HasPosition reports whether a position is open.
func (p *Portfolio) HasPosition() bool { return p.positionQty.IsPositive() }

// BuyQuantity returns the whole-share quantity a buy at price can
// afford: min(sharesPerTrade, floor(cash/price)). Fractional shares are
// not supported.
func BuyQuantity(cash, price, sharesPerTrade decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	affordable := cash.Div(price).Floor()
	if affordable.LessThan(sharesPerTrade) {
		return affordable
	}
	return sharesPerTrade
}

// Buy opens a position at the bar's close. Returns false when no
// position can be opened (already long, or cash affords zero shares);
// such buys are skipped, not recorded as trades.
func (p *Portfolio) Buy(symbol string, bar types.PriceBar, sharesPerTrade decimal.Decimal) (types.Trade, bool) {
	if p.HasPosition() {
		return types.Trade{}, false
	}
	price := bar.Close
	qty := BuyQuantity(p.cash, price, sharesPerTrade)
	if !qty.IsPositive() {
		return types.Trade{}, false
	}

	p.cash = p.cash.Sub(qty.Mul(price))
	p.positionQty = qty
	p.entryPrice = price

	return types.Trade{
		ID:        uuid.New().String(),
		Timestamp: bar.Timestamp,
		Symbol:    symbol,
		Side:      types.TradeSideBuy,
		Quantity:  qty,
		Price:     price,
	}, true
}

// Sell liquidates the entire open position at the bar's close,
// realizing P&L against the entry price. Returns false when flat.
func (p *Portfolio) Sell(symbol string, bar types.PriceBar) (types.Trade, bool) {
	if !p.HasPosition() {
		return types.Trade{}, false
	}
	price := bar.Close
	qty := p.positionQty
	pnl := price.Sub(p.entryPrice).Mul(qty)

	p.cash = p.cash.Add(qty.Mul(price))
	p.positionQty = decimal.Zero
	p.entryPrice = decimal.Zero

	return types.Trade{
		ID:          uuid.New().String(),
		Timestamp:   bar.Timestamp,
		Symbol:      symbol,
		Side:        types.TradeSideSell,
		Quantity:    qty,
		Price:       price,
		RealizedPnL: pnl,
	}, true
}

// Snapshot marks the portfolio to the bar's close.
func (p *Portfolio) Snapshot(bar types.PriceBar) types.PortfolioSnapshot {
	positionValue := p.positionQty.Mul(bar.Close)
	return types.PortfolioSnapshot{
		Timestamp:     bar.Timestamp,
		Cash:          p.cash,
		PositionQty:   p.positionQty,
		PositionValue: positionValue,
		TotalValue:    p.cash.Add(positionValue),
	}
}

// Check verifies portfolio invariants after an operation.
func (p *Portfolio) Check() error {
	if p.cash.IsNegative() {
		return &InvariantError{Reason: fmt.Sprintf("negative cash %s", p.cash)}
	}
	if p.positionQty.IsNegative() {
		return &InvariantError{Reason: fmt.Sprintf("negative position %s", p.positionQty)}
	}
	return nil
}
