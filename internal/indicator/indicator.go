// Package indicator provides technical indicator calculations over a
// price series.
//
// All indicators follow the same contract: given a series and an index
// i, compute a value using only bars at or before i. Before the
// indicator's warm-up length is satisfied the second return value is
// false and the value must not be used. Computations are deterministic:
// same series, same index, same value.
package indicator

import (
	"fmt"
	"math"

	"github.com/vectorquant/strategy-engine/pkg/types"
)

// Parameter bounds enforced by ValidateRef. Windows beyond MaxWindow
// make warm-up longer than any realistic series and are rejected up
// front rather than silently producing no signals.
const (
	MinWindow     = 2
	MaxWindow     = 500
	MinMultiplier = 0.1
	MaxMultiplier = 10.0
)

func closeAt(series types.PriceSeries, i int) float64 {
	return series[i].Close.InexactFloat64()
}

// SMA computes the simple moving average of closes over window bars
// ending at i.
func SMA(series types.PriceSeries, i, window int) (float64, bool) {
	if window < 1 || i < window-1 || i >= len(series) {
		return 0, false
	}
	var sum float64
	for j := i - window + 1; j <= i; j++ {
		sum += closeAt(series, j)
	}
	return sum / float64(window), true
}

// EMA computes the exponential moving average of closes over window
// bars ending at i. The average is seeded with the SMA of the first
// window bars, so the value at a given index is independent of how many
// later bars exist.
func EMA(series types.PriceSeries, i, window int) (float64, bool) {
	if window < 1 || i < window-1 || i >= len(series) {
		return 0, false
	}
	seed, _ := SMA(series, window-1, window)
	ema := seed
	k := 2.0 / float64(window+1)
	for j := window; j <= i; j++ {
		ema = closeAt(series, j)*k + ema*(1-k)
	}
	return ema, true
}

// RSI computes the Relative Strength Index over window bars ending at
// i, using Wilder smoothing. Needs window+1 bars: the first window
// close-to-close changes seed the averages.
func RSI(series types.PriceSeries, i, window int) (float64, bool) {
	if window < 1 || i < window || i >= len(series) {
		return 0, false
	}

	var avgGain, avgLoss float64
	for j := 1; j <= window; j++ {
		change := closeAt(series, j) - closeAt(series, j-1)
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(window)
	avgLoss /= float64(window)

	for j := window + 1; j <= i; j++ {
		change := closeAt(series, j) - closeAt(series, j-1)
		var gain, loss float64
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(window-1) + gain) / float64(window)
		avgLoss = (avgLoss*float64(window-1) + loss) / float64(window)
	}

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// MACD computes the MACD line (fast EMA - slow EMA), its signal line
// (EMA of the MACD line) and the histogram at index i. The signal line
// needs signalWindow MACD values, so warm-up is slow-1 + signalWindow-1
// bars.
func MACD(series types.PriceSeries, i, fast, slow, signalWindow int) (macd, signal, histogram float64, ok bool) {
	if fast < 1 || slow < 1 || signalWindow < 1 || fast >= slow {
		return 0, 0, 0, false
	}
	first := slow - 1 // first index with a defined MACD value
	if i < first+signalWindow-1 || i >= len(series) {
		return 0, 0, 0, false
	}

	macdAt := func(j int) float64 {
		f, _ := EMA(series, j, fast)
		s, _ := EMA(series, j, slow)
		return f - s
	}

	// Seed the signal EMA with the SMA of the first signalWindow MACD
	// values, mirroring how EMA seeds from closes.
	var seed float64
	for j := first; j < first+signalWindow; j++ {
		seed += macdAt(j)
	}
	signal = seed / float64(signalWindow)

	k := 2.0 / float64(signalWindow+1)
	for j := first + signalWindow; j <= i; j++ {
		signal = macdAt(j)*k + signal*(1-k)
	}

	macd = macdAt(i)
	return macd, signal, macd - signal, true
}

// Bollinger computes the Bollinger Bands at index i: the middle band is
// the SMA over window bars, the upper and lower bands sit multiplier
// population standard deviations away.
func Bollinger(series types.PriceSeries, i, window int, multiplier float64) (upper, middle, lower float64, ok bool) {
	mid, defined := SMA(series, i, window)
	if !defined {
		return 0, 0, 0, false
	}
	var variance float64
	for j := i - window + 1; j <= i; j++ {
		diff := closeAt(series, j) - mid
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(window))
	return mid + multiplier*stdDev, mid, mid - multiplier*stdDev, true
}

// VWAP computes the volume-weighted average price accumulated from the
// start of the series through i, using the typical price of each bar.
// Defined from the first bar with non-zero cumulative volume.
func VWAP(series types.PriceSeries, i int) (float64, bool) {
	if i < 0 || i >= len(series) {
		return 0, false
	}
	var cumPV, cumVol float64
	for j := 0; j <= i; j++ {
		bar := series[j]
		typical := bar.High.Add(bar.Low).Add(bar.Close).InexactFloat64() / 3
		vol := bar.Volume.InexactFloat64()
		cumPV += typical * vol
		cumVol += vol
	}
	if cumVol == 0 {
		return 0, false
	}
	return cumPV / cumVol, true
}

// WarmUp returns the number of prior bars the referenced indicator
// needs before it produces a defined value.
func WarmUp(ref types.IndicatorRef) int {
	switch ref.Name {
	case types.IndSMA, types.IndEMA, types.IndBollingerUpper, types.IndBollingerLower:
		return ref.Window
	case types.IndRSI:
		return ref.Window + 1
	case types.IndMACD:
		// Window is the slow EMA period here.
		return ref.Window + ref.SignalWindow - 1
	case types.IndVWAP:
		return 1
	default:
		return 0
	}
}

// macdFast resolves the fast EMA period for a MACD reference: the
// explicit FastWindow when set, otherwise half the slow period.
func macdFast(ref types.IndicatorRef) int {
	if ref.FastWindow > 0 {
		return ref.FastWindow
	}
	fast := ref.Window / 2
	if fast < MinWindow {
		fast = MinWindow
	}
	return fast
}

// Eval resolves an indicator reference at index i. For MACD, Window is
// the slow period, FastWindow the fast one (defaulting to Window/2) and
// SignalWindow the signal EMA period; the MACD line value is returned.
func Eval(ref types.IndicatorRef, series types.PriceSeries, i int) (float64, bool) {
	switch ref.Name {
	case types.IndSMA:
		return SMA(series, i, ref.Window)
	case types.IndEMA:
		return EMA(series, i, ref.Window)
	case types.IndRSI:
		return RSI(series, i, ref.Window)
	case types.IndMACD:
		macd, _, _, ok := MACD(series, i, macdFast(ref), ref.Window, ref.SignalWindow)
		return macd, ok
	case types.IndBollingerUpper:
		upper, _, _, ok := Bollinger(series, i, ref.Window, ref.Multiplier)
		return upper, ok
	case types.IndBollingerLower:
		_, _, lower, ok := Bollinger(series, i, ref.Window, ref.Multiplier)
		return lower, ok
	case types.IndVWAP:
		return VWAP(series, i)
	default:
		return 0, false
	}
}

// ValidateRef checks that an indicator reference names a supported
// indicator and that its parameters fall within the declared bounds.
func ValidateRef(ref types.IndicatorRef) error {
	switch ref.Name {
	case types.IndVWAP:
		return nil
	case types.IndSMA, types.IndEMA, types.IndRSI:
		return validateWindow(ref.Name, ref.Window)
	case types.IndMACD:
		if err := validateWindow(ref.Name, ref.Window); err != nil {
			return err
		}
		if ref.FastWindow != 0 {
			if err := validateWindow(ref.Name, ref.FastWindow); err != nil {
				return err
			}
			if ref.FastWindow >= ref.Window {
				return fmt.Errorf("%s fast window %d must be less than slow window %d",
					ref.Name, ref.FastWindow, ref.Window)
			}
		}
		if ref.SignalWindow < MinWindow || ref.SignalWindow > MaxWindow {
			return fmt.Errorf("%s signal window %d out of range [%d, %d]",
				ref.Name, ref.SignalWindow, MinWindow, MaxWindow)
		}
		return nil
	case types.IndBollingerUpper, types.IndBollingerLower:
		if err := validateWindow(ref.Name, ref.Window); err != nil {
			return err
		}
		if ref.Multiplier < MinMultiplier || ref.Multiplier > MaxMultiplier {
			return fmt.Errorf("%s multiplier %g out of range [%g, %g]",
				ref.Name, ref.Multiplier, MinMultiplier, MaxMultiplier)
		}
		return nil
	default:
		return fmt.Errorf("unknown indicator %q", ref.Name)
	}
}

func validateWindow(name types.IndicatorName, window int) error {
	if window < MinWindow || window > MaxWindow {
		return fmt.Errorf("%s window %d out of range [%d, %d]",
			name, window, MinWindow, MaxWindow)
	}
	return nil
}
