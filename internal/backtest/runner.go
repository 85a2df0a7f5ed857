// Package backtest orchestrates strategy evaluation over historical
// price data: it resolves a strategy definition into a signal source,
// generates one signal per bar, and replays the stream through the
// portfolio simulator.
package backtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vectorquant/strategy-engine/internal/simulator"
	"github.com/vectorquant/strategy-engine/internal/strategy"
	"github.com/vectorquant/strategy-engine/internal/workers"
	"github.com/vectorquant/strategy-engine/pkg/types"
)

// Request describes a single backtest.
type Request struct {
	ID             string                   `json:"id,omitempty"`
	Symbol         string                   `json:"symbol"`
	Strategy       types.StrategyDefinition `json:"strategy"`
	Series         types.PriceSeries        `json:"series"`
	InitialCapital decimal.Decimal          `json:"initialCapital"`
	SharesPerTrade decimal.Decimal          `json:"sharesPerTrade"`
}

// Result holds the outcome of a single backtest.
type Result struct {
	ID        string                    `json:"id"`
	Symbol    string                    `json:"symbol"`
	Strategy  string                    `json:"strategy"`
	Signals   []types.Signal            `json:"signals"`
	Trades    []types.Trade             `json:"trades"`
	Snapshots []types.PortfolioSnapshot `json:"snapshots"`
	Summary   types.PerformanceSummary  `json:"summary"`
	Duration  time.Duration             `json:"duration"`
}

// BatchItem pairs one batch request with its result or error.
type BatchItem struct {
	Request *Request `json:"request"`
	Result  *Result  `json:"result,omitempty"`
	Err     error    `json:"-"`
}

// Runner executes backtests, optionally fanning batches out over a
// worker pool.
type Runner struct {
	logger *zap.Logger
	pool   *workers.Pool
}

// NewRunner creates a backtest runner. The pool may be nil, in which
// case batches run sequentially.
func NewRunner(logger *zap.Logger, pool *workers.Pool) *Runner {
	return &Runner{
		logger: logger.Named("backtest"),
		pool:   pool,
	}
}

// Run executes one backtest synchronously. The strategy definition is
// validated before any bar is evaluated, so a malformed custom
// condition tree fails fast instead of mid-run.
func (r *Runner) Run(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return nil, &simulator.DataError{Reason: "nil request"}
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	start := time.Now()

	src, err := strategy.NewSource(req.Strategy)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The source sees the portfolio's executed position each bar, the
	// same state a live session's Tick passes it, so a buy the
	// portfolio could not afford does not suppress later entries.
	src.Reset()
	simResult, err := simulator.Run(src.Next, req.Series, simulator.Config{
		Symbol:         req.Symbol,
		InitialCapital: req.InitialCapital,
		SharesPerTrade: req.SharesPerTrade,
	})
	if err != nil {
		return nil, fmt.Errorf("simulation failed: %w", err)
	}

	duration := time.Since(start)
	r.logger.Info("backtest complete",
		zap.String("id", req.ID),
		zap.String("symbol", req.Symbol),
		zap.String("strategy", req.Strategy.Name),
		zap.Int("bars", len(req.Series)),
		zap.Int("trades", len(simResult.Trades)),
		zap.Duration("duration", duration),
	)

	return &Result{
		ID:        req.ID,
		Symbol:    req.Symbol,
		Strategy:  req.Strategy.Name,
		Signals:   simResult.Signals,
		Trades:    simResult.Trades,
		Snapshots: simResult.Snapshots,
		Summary:   *simResult.Summary,
		Duration:  duration,
	}, nil
}

// RunBatch executes independent backtests concurrently over the worker
// pool and returns one item per request, in request order. Individual
// failures are recorded per item and do not abort the batch.
func (r *Runner) RunBatch(ctx context.Context, reqs []*Request) []BatchItem {
	items := make([]BatchItem, len(reqs))

	if r.pool == nil || !r.pool.IsRunning() {
		for i, req := range reqs {
			items[i].Request = req
			items[i].Result, items[i].Err = r.Run(ctx, req)
		}
		return items
	}

	var wg sync.WaitGroup
	for i, req := range reqs {
		i, req := i, req
		items[i].Request = req

		wg.Add(1)
		err := r.pool.SubmitFunc(func() error {
			defer wg.Done()
			items[i].Result, items[i].Err = r.Run(ctx, req)
			return items[i].Err
		})
		if err != nil {
			// Queue full or pool stopped: fall back to running inline.
			items[i].Result, items[i].Err = r.Run(ctx, req)
			wg.Done()
		}
	}
	wg.Wait()

	return items
}
