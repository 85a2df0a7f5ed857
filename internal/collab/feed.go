package collab

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vectorquant/strategy-engine/pkg/types"
)

// ReplayFeed serves pre-loaded historical series and replays them one
// bar at a time for live-mode ticks. Once a symbol's series is
// exhausted, NextBar reports a transient error so callers skip the
// pass instead of terminating the session.
type ReplayFeed struct {
	mu      sync.Mutex
	series  map[string]types.PriceSeries
	cursors map[string]int
}

// NewReplayFeed creates a feed over the given per-symbol series.
func NewReplayFeed(series map[string]types.PriceSeries) *ReplayFeed {
	return &ReplayFeed{
		series:  series,
		cursors: make(map[string]int),
	}
}

// GetBars returns the full series for a symbol.
func (f *ReplayFeed) GetBars(_ context.Context, symbol string) (types.PriceSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.series[symbol]
	if !ok {
		return nil, ErrSymbolNotFound
	}
	return s, nil
}

// NextBar returns the next unreplayed bar for the symbol.
func (f *ReplayFeed) NextBar(_ context.Context, symbol string) (types.PriceBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.series[symbol]
	if !ok {
		return types.PriceBar{}, ErrSymbolNotFound
	}
	i := f.cursors[symbol]
	if i >= len(s) {
		return types.PriceBar{}, ErrTransient
	}
	f.cursors[symbol] = i + 1
	return s[i], nil
}

// SyntheticFeed generates a deterministic random-walk price stream per
// symbol. Useful for paper sessions when no real data source is wired.
type SyntheticFeed struct {
	mu     sync.Mutex
	seed   int64
	states map[string]*walkState
}

type walkState struct {
	rng   *rand.Rand
	last  float64
	stamp time.Time
}

// NewSyntheticFeed creates a feed seeded for reproducible streams.
func NewSyntheticFeed(seed int64) *SyntheticFeed {
	return &SyntheticFeed{
		seed:   seed,
		states: make(map[string]*walkState),
	}
}

func (f *SyntheticFeed) state(symbol string) *walkState {
	st, ok := f.states[symbol]
	if !ok {
		seed := f.seed
		for _, c := range symbol {
			seed = seed*31 + int64(c)
		}
		st = &walkState{
			rng:   rand.New(rand.NewSource(seed)),
			last:  100.0,
			stamp: time.Now().UTC().Truncate(time.Minute),
		}
		f.states[symbol] = st
	}
	return st
}

func (st *walkState) next() types.PriceBar {
	open := st.last
	drift := (st.rng.Float64() - 0.5) * 0.02 * open
	close := open + drift
	high := open
	if close > high {
		high = close
	}
	high += st.rng.Float64() * 0.005 * open
	low := open
	if close < low {
		low = close
	}
	low -= st.rng.Float64() * 0.005 * open
	volume := 1000 + st.rng.Float64()*9000

	st.last = close
	st.stamp = st.stamp.Add(time.Minute)

	return types.PriceBar{
		Timestamp: st.stamp,
		Open:      decimal.NewFromFloat(open).Round(4),
		High:      decimal.NewFromFloat(high).Round(4),
		Low:       decimal.NewFromFloat(low).Round(4),
		Close:     decimal.NewFromFloat(close).Round(4),
		Volume:    decimal.NewFromFloat(volume).Round(0),
	}
}

// GetBars generates a 250-bar history for the symbol.
func (f *SyntheticFeed) GetBars(_ context.Context, symbol string) (types.PriceSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := f.state(symbol)
	series := make(types.PriceSeries, 250)
	for i := range series {
		series[i] = st.next()
	}
	return series, nil
}

// NextBar generates the next bar of the walk.
func (f *SyntheticFeed) NextBar(_ context.Context, symbol string) (types.PriceBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state(symbol).next(), nil
}
