// Package strategy: the five built-in strategies.
package strategy

import (
	"github.com/vectorquant/strategy-engine/internal/indicator"
	"github.com/vectorquant/strategy-engine/pkg/types"
)

// meanReversion buys when the close sits below the rolling mean by more
// than threshold fraction and sells when it sits above by the same
// margin.
type meanReversion struct {
	window    int
	threshold float64
}

var meanReversionParams = []Param{
	{Name: "window", Default: 20, Min: 2, Max: indicator.MaxWindow},
	{Name: "threshold", Default: 0.05, Min: 0.001, Max: 0.5},
}

func newMeanReversion(provided map[string]float64) (*meanReversion, error) {
	p, err := resolveParams(types.BuiltInMeanReversion, meanReversionParams, provided)
	if err != nil {
		return nil, err
	}
	return &meanReversion{window: p.intVal("window"), threshold: p["threshold"]}, nil
}

func (s *meanReversion) Next(series types.PriceSeries, i int, long bool) types.Signal {
	mean, ok := indicator.SMA(series, i, s.window)
	if !ok {
		return types.SignalHold
	}
	price := series[i].Close.InexactFloat64()
	buyFired := price < mean*(1-s.threshold)
	sellFired := price > mean*(1+s.threshold)
	return decide(buyFired, sellFired, long)
}

func (s *meanReversion) WarmUp() int { return s.window }
func (s *meanReversion) Reset()      {}

// maCrossover trades the bar where the fast moving average crosses the
// slow one. Edge-triggered: a signal fires only on the crossing bar,
// not while the cross condition persists.
type maCrossover struct {
	fastWindow int
	slowWindow int
	useEMA     bool
}

var maCrossoverParams = []Param{
	{Name: "fast_window", Default: 10, Min: 2, Max: indicator.MaxWindow},
	{Name: "slow_window", Default: 30, Min: 3, Max: indicator.MaxWindow},
	{Name: "use_ema", Default: 0, Min: 0, Max: 1},
}

func newMACrossover(provided map[string]float64) (*maCrossover, error) {
	p, err := resolveParams(types.BuiltInMACrossover, maCrossoverParams, provided)
	if err != nil {
		return nil, err
	}
	fast, slow := p.intVal("fast_window"), p.intVal("slow_window")
	if fast >= slow {
		return nil, &ConfigError{
			Strategy: types.BuiltInMACrossover,
			Param:    "fast_window",
			Reason:   "fast window must be smaller than slow window",
		}
	}
	return &maCrossover{fastWindow: fast, slowWindow: slow, useEMA: p["use_ema"] != 0}, nil
}

func (s *maCrossover) ma(series types.PriceSeries, i, window int) (float64, bool) {
	if s.useEMA {
		return indicator.EMA(series, i, window)
	}
	return indicator.SMA(series, i, window)
}

func (s *maCrossover) Next(series types.PriceSeries, i int, long bool) types.Signal {
	fast, ok := s.ma(series, i, s.fastWindow)
	if !ok {
		return types.SignalHold
	}
	slow, ok := s.ma(series, i, s.slowWindow)
	if !ok {
		return types.SignalHold
	}
	prevFast, ok := s.ma(series, i-1, s.fastWindow)
	if !ok {
		return types.SignalHold
	}
	prevSlow, ok := s.ma(series, i-1, s.slowWindow)
	if !ok {
		return types.SignalHold
	}

	crossedUp := prevFast <= prevSlow && fast > slow
	crossedDown := prevFast >= prevSlow && fast < slow
	return decide(crossedUp, crossedDown, long)
}

func (s *maCrossover) WarmUp() int { return s.slowWindow + 1 }
func (s *maCrossover) Reset()      {}

// momentum combines RSI thresholds with a minimum price momentum over a
// lookback window; both must agree in direction before a signal fires.
type momentum struct {
	rsiWindow      int
	oversold       float64
	overbought     float64
	momentumWindow int
	minMomentum    float64
}

var momentumParams = []Param{
	{Name: "rsi_window", Default: 14, Min: 2, Max: indicator.MaxWindow},
	{Name: "oversold", Default: 30, Min: 1, Max: 49},
	{Name: "overbought", Default: 70, Min: 51, Max: 99},
	{Name: "momentum_window", Default: 10, Min: 2, Max: indicator.MaxWindow},
	{Name: "min_momentum", Default: 0.02, Min: 0.001, Max: 0.5},
}

func newMomentum(provided map[string]float64) (*momentum, error) {
	p, err := resolveParams(types.BuiltInMomentum, momentumParams, provided)
	if err != nil {
		return nil, err
	}
	return &momentum{
		rsiWindow:      p.intVal("rsi_window"),
		oversold:       p["oversold"],
		overbought:     p["overbought"],
		momentumWindow: p.intVal("momentum_window"),
		minMomentum:    p["min_momentum"],
	}, nil
}

func (s *momentum) Next(series types.PriceSeries, i int, long bool) types.Signal {
	rsi, ok := indicator.RSI(series, i, s.rsiWindow)
	if !ok {
		return types.SignalHold
	}
	if i < s.momentumWindow {
		return types.SignalHold
	}
	past := series[i-s.momentumWindow].Close.InexactFloat64()
	if past == 0 {
		return types.SignalHold
	}
	change := (series[i].Close.InexactFloat64() - past) / past

	buyFired := rsi < s.oversold && change <= -s.minMomentum
	sellFired := rsi > s.overbought && change >= s.minMomentum
	return decide(buyFired, sellFired, long)
}

func (s *momentum) WarmUp() int {
	if s.rsiWindow+1 > s.momentumWindow {
		return s.rsiWindow + 1
	}
	return s.momentumWindow
}

func (s *momentum) Reset() {}

// bollinger buys at or below the lower band and sells at or above the
// upper band.
type bollinger struct {
	window     int
	multiplier float64
}

var bollingerParams = []Param{
	{Name: "window", Default: 20, Min: 2, Max: indicator.MaxWindow},
	{Name: "multiplier", Default: 2.0, Min: indicator.MinMultiplier, Max: indicator.MaxMultiplier},
}

func newBollinger(provided map[string]float64) (*bollinger, error) {
	p, err := resolveParams(types.BuiltInBollingerBands, bollingerParams, provided)
	if err != nil {
		return nil, err
	}
	return &bollinger{window: p.intVal("window"), multiplier: p["multiplier"]}, nil
}

func (s *bollinger) Next(series types.PriceSeries, i int, long bool) types.Signal {
	upper, _, lower, ok := indicator.Bollinger(series, i, s.window, s.multiplier)
	if !ok {
		return types.SignalHold
	}
	price := series[i].Close.InexactFloat64()
	return decide(price <= lower, price >= upper, long)
}

func (s *bollinger) WarmUp() int { return s.window }
func (s *bollinger) Reset()      {}

// breakout buys when the close clears the rolling lookback high by
// breakout_threshold with volume above min_volume_ratio times the
// average, and exits on a breakdown below the rolling low. A position
// is held for at least confirmation_period bars before an exit signal
// can close it.
type breakout struct {
	lookback           int
	breakoutThreshold  float64
	minVolumeRatio     float64
	confirmationPeriod int

	entryBar int
}

var breakoutParams = []Param{
	{Name: "lookback", Default: 20, Min: 2, Max: indicator.MaxWindow},
	{Name: "breakout_threshold", Default: 0.01, Min: 0, Max: 0.5},
	{Name: "min_volume_ratio", Default: 1.5, Min: 1, Max: 10},
	{Name: "confirmation_period", Default: 3, Min: 0, Max: 100},
}

func newBreakout(provided map[string]float64) (*breakout, error) {
	p, err := resolveParams(types.BuiltInBreakout, breakoutParams, provided)
	if err != nil {
		return nil, err
	}
	return &breakout{
		lookback:           p.intVal("lookback"),
		breakoutThreshold:  p["breakout_threshold"],
		minVolumeRatio:     p["min_volume_ratio"],
		confirmationPeriod: p.intVal("confirmation_period"),
		entryBar:           -1,
	}, nil
}

func (s *breakout) Next(series types.PriceSeries, i int, long bool) types.Signal {
	// Track the bar on which the caller's position appeared so the
	// confirmation period counts from actual entry, not from the
	// signal that proposed it.
	if long && s.entryBar < 0 {
		s.entryBar = i
	} else if !long {
		s.entryBar = -1
	}

	if i < s.lookback {
		return types.SignalHold
	}

	var high, low, avgVolume float64
	for j := i - s.lookback; j < i; j++ {
		h := series[j].High.InexactFloat64()
		l := series[j].Low.InexactFloat64()
		if j == i-s.lookback || h > high {
			high = h
		}
		if j == i-s.lookback || l < low {
			low = l
		}
		avgVolume += series[j].Volume.InexactFloat64()
	}
	avgVolume /= float64(s.lookback)

	price := series[i].Close.InexactFloat64()
	volume := series[i].Volume.InexactFloat64()
	volumeConfirmed := avgVolume > 0 && volume > avgVolume*s.minVolumeRatio

	buyFired := price > high*(1+s.breakoutThreshold) && volumeConfirmed
	sellFired := price < low
	if long && s.entryBar >= 0 && i-s.entryBar < s.confirmationPeriod {
		sellFired = false
	}
	return decide(buyFired, sellFired, long)
}

func (s *breakout) WarmUp() int { return s.lookback }

func (s *breakout) Reset() { s.entryBar = -1 }
