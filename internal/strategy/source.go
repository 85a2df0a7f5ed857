// Package strategy provides the signal-producing strategies: five
// parametrized built-ins and the custom condition-tree strategy, all
// behind one SignalSource contract so the simulator stays
// strategy-agnostic.
package strategy

import (
	"fmt"

	"github.com/vectorquant/strategy-engine/internal/condition"
	"github.com/vectorquant/strategy-engine/pkg/types"
)

// SignalSource produces one signal per bar. The long flag tells the
// source whether the caller currently holds a position; sources use it
// to break same-bar buy/sell ties and to suppress redundant re-entry
// signals. Sources are driven sequentially over a single series and are
// not safe for concurrent use.
type SignalSource interface {
	// Next returns the signal for bar i.
	Next(series types.PriceSeries, i int, long bool) types.Signal

	// WarmUp returns the number of bars needed before the source can
	// produce a non-hold signal.
	WarmUp() int

	// Reset clears any accumulated state so the source can be replayed
	// against a fresh series.
	Reset()
}

// ConfigError reports an invalid strategy configuration: an unknown
// strategy or parameter, or a parameter outside its declared range.
// Raised before the first bar is processed, never per bar.
type ConfigError struct {
	Strategy string
	Param    string
	Reason   string
}

func (e *ConfigError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("strategy %s: parameter %s: %s", e.Strategy, e.Param, e.Reason)
	}
	return fmt.Sprintf("strategy %s: %s", e.Strategy, e.Reason)
}

// Param declares a strategy parameter with its default and allowed
// range.
type Param struct {
	Name    string
	Default float64
	Min     float64
	Max     float64
}

// params is a resolved parameter set.
type params map[string]float64

// resolveParams merges provided values over declared defaults,
// rejecting unknown names and out-of-range values.
func resolveParams(strategyName string, specs []Param, provided map[string]float64) (params, error) {
	resolved := make(params, len(specs))
	for _, spec := range specs {
		resolved[spec.Name] = spec.Default
	}
	for name, value := range provided {
		spec, ok := findParam(specs, name)
		if !ok {
			return nil, &ConfigError{Strategy: strategyName, Param: name, Reason: "unknown parameter"}
		}
		if value < spec.Min || value > spec.Max {
			return nil, &ConfigError{
				Strategy: strategyName,
				Param:    name,
				Reason:   fmt.Sprintf("value %g out of range [%g, %g]", value, spec.Min, spec.Max),
			}
		}
		resolved[name] = value
	}
	return resolved, nil
}

func findParam(specs []Param, name string) (Param, bool) {
	for _, spec := range specs {
		if spec.Name == name {
			return spec, true
		}
	}
	return Param{}, false
}

func (p params) intVal(name string) int { return int(p[name]) }

// NewSource builds the signal source for a strategy definition,
// validating parameters (built-in) or condition trees (custom) before
// any bar is processed.
func NewSource(def types.StrategyDefinition) (SignalSource, error) {
	switch def.Kind {
	case types.StrategyBuiltIn:
		return newBuiltIn(def.Name, def.Parameters)
	case types.StrategyCustom:
		return newConditionSource(def)
	default:
		return nil, &ConfigError{Strategy: string(def.Kind), Reason: "unknown strategy kind"}
	}
}

func newBuiltIn(name string, provided map[string]float64) (SignalSource, error) {
	switch name {
	case types.BuiltInMeanReversion:
		return newMeanReversion(provided)
	case types.BuiltInMACrossover:
		return newMACrossover(provided)
	case types.BuiltInMomentum:
		return newMomentum(provided)
	case types.BuiltInBollingerBands:
		return newBollinger(provided)
	case types.BuiltInBreakout:
		return newBreakout(provided)
	default:
		return nil, &ConfigError{Strategy: name, Reason: "unknown built-in strategy"}
	}
}

// conditionSource adapts a custom condition-tree strategy to the
// SignalSource contract.
type conditionSource struct {
	buy  *types.ConditionNode
	sell *types.ConditionNode
}

func newConditionSource(def types.StrategyDefinition) (*conditionSource, error) {
	if def.BuyConditions == nil || def.SellConditions == nil {
		return nil, &ConfigError{Strategy: "custom", Reason: "both buy and sell condition trees are required"}
	}
	if err := condition.Validate(def.BuyConditions); err != nil {
		return nil, fmt.Errorf("buy conditions: %w", err)
	}
	if err := condition.Validate(def.SellConditions); err != nil {
		return nil, fmt.Errorf("sell conditions: %w", err)
	}
	return &conditionSource{buy: def.BuyConditions, sell: def.SellConditions}, nil
}

func (cs *conditionSource) Next(series types.PriceSeries, i int, long bool) types.Signal {
	return condition.NextSignal(cs.buy, cs.sell, series, i, long)
}

// WarmUp is zero for custom trees: undefined indicators make their
// comparisons false, so under-warmed bars naturally hold.
func (cs *conditionSource) WarmUp() int { return 0 }

func (cs *conditionSource) Reset() {}

// decide applies the shared tie-break rules: sell wins when long, buy
// otherwise, and a signal matching the current state is a hold.
func decide(buyFired, sellFired, long bool) types.Signal {
	switch {
	case buyFired && sellFired:
		if long {
			return types.SignalSell
		}
		return types.SignalBuy
	case sellFired && long:
		return types.SignalSell
	case buyFired && !long:
		return types.SignalBuy
	default:
		return types.SignalHold
	}
}
