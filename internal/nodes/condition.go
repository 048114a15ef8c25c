package nodes

import (
	"math"
	"strconv"
	"strings"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/resolve"
)

// Supported "if" operators.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
)

// evaluateIf resolves leftValue/rightValue against input and applies the
// node's operator.
func evaluateIf(node *autoflow.Node, input map[string]any) (bool, error) {
	op := node.StringConfig("operator")
	if op == "" {
		return false, autoflow.NewConfigError(node.NodeID, "operator is required")
	}
	left := resolve.Format(resolve.Value(node.Config["leftValue"], input))
	right := resolve.Format(resolve.Value(node.Config["rightValue"], input))

	result, ok := Compare(op, left, right)
	if !ok {
		return false, autoflow.NewConfigError(node.NodeID, "unknown operator %q", op)
	}
	return result, nil
}

// Compare applies op to two resolved operands. Equality and ordering are
// numeric when both sides parse as numbers, otherwise string-based. The
// second return value is false for an unknown operator.
func Compare(op, left, right string) (bool, bool) {
	ln, lok := toNumber(left)
	rn, rok := toNumber(right)
	numeric := lok && rok

	switch op {
	case OpEquals:
		if numeric {
			return ln == rn, true
		}
		return left == right, true
	case OpNotEquals:
		if numeric {
			return ln != rn, true
		}
		return left != right, true
	case OpContains:
		return strings.Contains(left, right), true
	case OpGreaterThan:
		if numeric {
			return ln > rn, true
		}
		return left > right, true
	case OpLessThan:
		if numeric {
			return ln < rn, true
		}
		return left < right, true
	}
	return false, false
}

// toNumber parses a finite number. NaN and infinities compare as text.
func toNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
