// Package types provides strategy definition types for the strategy engine.
package types

// StrategyKind distinguishes built-in from user-authored strategies.
type StrategyKind string

const (
	StrategyBuiltIn StrategyKind = "builtin"
	StrategyCustom  StrategyKind = "custom"
)

// Built-in strategy names.
const (
	BuiltInMeanReversion  = "mean_reversion"
	BuiltInMACrossover    = "ma_crossover"
	BuiltInMomentum       = "momentum"
	BuiltInBollingerBands = "bollinger_bands"
	BuiltInBreakout       = "breakout"
)

// StrategyDefinition describes a strategy: either a named built-in with
// parameters, or a custom pair of condition trees. Immutable once a
// backtest or session starts.
type StrategyDefinition struct {
	Kind           StrategyKind       `json:"kind"`
	Name           string             `json:"name,omitempty"`
	Parameters     map[string]float64 `json:"parameters,omitempty"`
	BuyConditions  *ConditionNode     `json:"buyConditions,omitempty"`
	SellConditions *ConditionNode     `json:"sellConditions,omitempty"`
}

// NodeKind distinguishes logical nodes from comparison leaves.
type NodeKind string

const (
	NodeLogical    NodeKind = "logical"
	NodeComparison NodeKind = "comparison"
)

// LogicalOp is a boolean operator over child nodes.
type LogicalOp string

const (
	OpAnd LogicalOp = "and"
	OpOr  LogicalOp = "or"
	OpNot LogicalOp = "not"
)

// CompareOp is a comparison operator between two operands.
type CompareOp string

const (
	CmpGT  CompareOp = "gt"
	CmpLT  CompareOp = "lt"
	CmpGTE CompareOp = "gte"
	CmpLTE CompareOp = "lte"
	CmpEQ  CompareOp = "eq"
)

// ConditionNode is the tagged union forming a custom strategy's
// condition tree: either a logical node over children, or a comparison
// between two operands.
type ConditionNode struct {
	Kind     NodeKind        `json:"kind"`
	Op       LogicalOp       `json:"op,omitempty"`
	Children []ConditionNode `json:"children,omitempty"`
	Left     *Operand        `json:"left,omitempty"`
	Right    *Operand        `json:"right,omitempty"`
	Compare  CompareOp       `json:"compare,omitempty"`
}

// OperandKind distinguishes comparison operand sources.
type OperandKind string

const (
	OperandIndicator OperandKind = "indicator"
	OperandPrice     OperandKind = "price"
	OperandConstant  OperandKind = "constant"
)

// PriceField names a raw bar field usable as an operand.
type PriceField string

const (
	PriceOpen   PriceField = "open"
	PriceHigh   PriceField = "high"
	PriceLow    PriceField = "low"
	PriceClose  PriceField = "close"
	PriceVolume PriceField = "volume"
)

// IndicatorName identifies a supported technical indicator.
type IndicatorName string

const (
	IndSMA            IndicatorName = "sma"
	IndEMA            IndicatorName = "ema"
	IndRSI            IndicatorName = "rsi"
	IndMACD           IndicatorName = "macd"
	IndBollingerUpper IndicatorName = "bollinger_upper"
	IndBollingerLower IndicatorName = "bollinger_lower"
	IndVWAP           IndicatorName = "vwap"
)

// IndicatorRef names an indicator plus its parameters. For MACD,
// Window is the slow EMA period and FastWindow the fast one; a zero
// FastWindow defaults to half the slow period.
type IndicatorRef struct {
	Name         IndicatorName `json:"name"`
	Window       int           `json:"window,omitempty"`
	FastWindow   int           `json:"fastWindow,omitempty"`
	SignalWindow int           `json:"signalWindow,omitempty"`
	Multiplier   float64       `json:"multiplier,omitempty"`
}

// Operand is one side of a comparison: an indicator reference, a raw
// price field, or a literal constant.
type Operand struct {
	Kind      OperandKind   `json:"kind"`
	Indicator *IndicatorRef `json:"indicator,omitempty"`
	Field     PriceField    `json:"field,omitempty"`
	Value     float64       `json:"value,omitempty"`
}
