// Package condition validates and evaluates custom strategy condition
// trees: recursive boolean expressions over indicator, price and
// constant operands.
package condition

import (
	"fmt"

	"github.com/vectorquant/strategy-engine/internal/indicator"
	"github.com/vectorquant/strategy-engine/pkg/types"
)

// Structural bounds on a condition tree. Trees deeper or larger than
// this are rejected up front so evaluation cost stays bounded.
const (
	MaxDepth = 8
	MaxNodes = 64
)

// ValidationError reports a malformed condition tree or strategy
// parameter. It is raised before any simulation starts and never
// retried.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid condition tree: %s", e.Reason)
	}
	return fmt.Sprintf("invalid condition tree at %s: %s", e.Path, e.Reason)
}

// Validate recursively checks the structural invariants of a condition
// tree: operator arity, operand well-formedness, bounded depth and node
// count, and indicator parameters within declared ranges. It fails fast
// on the first violation, reporting the offending node's path.
func Validate(node *types.ConditionNode) error {
	if node == nil {
		return &ValidationError{Reason: "tree is empty"}
	}
	count := 0
	return validate(node, "root", 1, &count)
}

func validate(node *types.ConditionNode, path string, depth int, count *int) error {
	if depth > MaxDepth {
		return &ValidationError{Path: path, Reason: fmt.Sprintf("depth exceeds %d", MaxDepth)}
	}
	*count++
	if *count > MaxNodes {
		return &ValidationError{Path: path, Reason: fmt.Sprintf("node count exceeds %d", MaxNodes)}
	}

	switch node.Kind {
	case types.NodeLogical:
		return validateLogical(node, path, depth, count)
	case types.NodeComparison:
		return validateComparison(node, path)
	default:
		return &ValidationError{Path: path, Reason: fmt.Sprintf("unknown node kind %q", node.Kind)}
	}
}

func validateLogical(node *types.ConditionNode, path string, depth int, count *int) error {
	switch node.Op {
	case types.OpNot:
		if len(node.Children) != 1 {
			return &ValidationError{Path: path,
				Reason: fmt.Sprintf("not requires exactly 1 child, got %d", len(node.Children))}
		}
	case types.OpAnd, types.OpOr:
		if len(node.Children) < 2 {
			return &ValidationError{Path: path,
				Reason: fmt.Sprintf("%s requires at least 2 children, got %d", node.Op, len(node.Children))}
		}
	default:
		return &ValidationError{Path: path, Reason: fmt.Sprintf("unknown logical op %q", node.Op)}
	}

	for i := range node.Children {
		childPath := fmt.Sprintf("%s.children[%d]", path, i)
		if err := validate(&node.Children[i], childPath, depth+1, count); err != nil {
			return err
		}
	}
	return nil
}

func validateComparison(node *types.ConditionNode, path string) error {
	if len(node.Children) != 0 {
		return &ValidationError{Path: path, Reason: "comparison must not have children"}
	}
	switch node.Compare {
	case types.CmpGT, types.CmpLT, types.CmpGTE, types.CmpLTE, types.CmpEQ:
	default:
		return &ValidationError{Path: path, Reason: fmt.Sprintf("unknown comparison op %q", node.Compare)}
	}
	if node.Left == nil || node.Right == nil {
		return &ValidationError{Path: path, Reason: "comparison requires both operands"}
	}
	if node.Left.Kind == types.OperandConstant && node.Right.Kind == types.OperandConstant {
		return &ValidationError{Path: path, Reason: "comparison must reference at least one non-constant operand"}
	}
	if err := validateOperand(node.Left, path+".left"); err != nil {
		return err
	}
	return validateOperand(node.Right, path+".right")
}

func validateOperand(op *types.Operand, path string) error {
	switch op.Kind {
	case types.OperandConstant:
		return nil
	case types.OperandPrice:
		switch op.Field {
		case types.PriceOpen, types.PriceHigh, types.PriceLow, types.PriceClose, types.PriceVolume:
			return nil
		default:
			return &ValidationError{Path: path, Reason: fmt.Sprintf("unknown price field %q", op.Field)}
		}
	case types.OperandIndicator:
		if op.Indicator == nil {
			return &ValidationError{Path: path, Reason: "indicator operand missing reference"}
		}
		if err := indicator.ValidateRef(*op.Indicator); err != nil {
			return &ValidationError{Path: path, Reason: err.Error()}
		}
		return nil
	default:
		return &ValidationError{Path: path, Reason: fmt.Sprintf("unknown operand kind %q", op.Kind)}
	}
}

// Evaluate recursively evaluates a condition tree at bar i. AND and OR
// short-circuit left to right, NOT inverts its single child, and a
// comparison with any undefined operand (indicator still warming up)
// evaluates to false: no signal rather than an error.
func Evaluate(node *types.ConditionNode, series types.PriceSeries, i int) bool {
	if node == nil {
		return false
	}
	switch node.Kind {
	case types.NodeLogical:
		switch node.Op {
		case types.OpAnd:
			for j := range node.Children {
				if !Evaluate(&node.Children[j], series, i) {
					return false
				}
			}
			return true
		case types.OpOr:
			for j := range node.Children {
				if Evaluate(&node.Children[j], series, i) {
					return true
				}
			}
			return false
		case types.OpNot:
			return !Evaluate(&node.Children[0], series, i)
		}
		return false
	case types.NodeComparison:
		left, ok := resolve(node.Left, series, i)
		if !ok {
			return false
		}
		right, ok := resolve(node.Right, series, i)
		if !ok {
			return false
		}
		return compare(node.Compare, left, right)
	}
	return false
}

func resolve(op *types.Operand, series types.PriceSeries, i int) (float64, bool) {
	if op == nil || i < 0 || i >= len(series) {
		return 0, false
	}
	switch op.Kind {
	case types.OperandConstant:
		return op.Value, true
	case types.OperandPrice:
		bar := series[i]
		switch op.Field {
		case types.PriceOpen:
			return bar.Open.InexactFloat64(), true
		case types.PriceHigh:
			return bar.High.InexactFloat64(), true
		case types.PriceLow:
			return bar.Low.InexactFloat64(), true
		case types.PriceClose:
			return bar.Close.InexactFloat64(), true
		case types.PriceVolume:
			return bar.Volume.InexactFloat64(), true
		}
		return 0, false
	case types.OperandIndicator:
		if op.Indicator == nil {
			return 0, false
		}
		return indicator.Eval(*op.Indicator, series, i)
	}
	return 0, false
}

func compare(op types.CompareOp, left, right float64) bool {
	switch op {
	case types.CmpGT:
		return left > right
	case types.CmpLT:
		return left < right
	case types.CmpGTE:
		return left >= right
	case types.CmpLTE:
		return left <= right
	case types.CmpEQ:
		return left == right
	}
	return false
}

// NextSignal evaluates a custom strategy's buy and sell trees at bar i
// and derives the per-bar signal. When both trees fire on the same bar,
// sell takes priority with an open position and buy otherwise; a signal
// that would re-enter the current state yields hold.
func NextSignal(buy, sell *types.ConditionNode, series types.PriceSeries, i int, long bool) types.Signal {
	buyFired := Evaluate(buy, series, i)
	sellFired := Evaluate(sell, series, i)

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
