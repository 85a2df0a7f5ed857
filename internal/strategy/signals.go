package strategy

import (
	"github.com/vectorquant/strategy-engine/pkg/types"
)

// GenerateSignals runs a source over a full price series and returns one
// signal per bar. Position state is tracked at the signal level, assuming
// every buy fills; capital-aware runs should drive the source through
// simulator.Run instead, which feeds back the executed position. The
// source is reset first so stateful strategies start clean.
func GenerateSignals(src SignalSource, series types.PriceSeries) []types.Signal {
	src.Reset()

	signals := make([]types.Signal, len(series))
	long := false
	for i := range series {
		sig := src.Next(series, i, long)
		signals[i] = sig
		switch sig {
		case types.SignalBuy:
			long = true
		case types.SignalSell:
			long = false
		}
	}
	return signals
}
