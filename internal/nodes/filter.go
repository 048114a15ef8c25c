package nodes

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// FilterEvaluator evaluates expr-lang predicates against a data bag,
// caching compiled programs by source text.
type FilterEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func NewFilterEvaluator() *FilterEvaluator {
	return &FilterEvaluator{cache: make(map[string]*vm.Program)}
}

// Evaluate runs expression with the fields of data as variables. Undefined
// variables evaluate to nil.
func (f *FilterEvaluator) Evaluate(expression string, data map[string]any) (bool, error) {
	program, err := f.compile(expression)
	if err != nil {
		return false, err
	}
	env := make(map[string]any, len(data))
	for k, v := range data {
		env[k] = v
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", expression, err)
	}
	return isTruthy(result), nil
}

func (f *FilterEvaluator) compile(expression string) (*vm.Program, error) {
	f.mu.RLock()
	program, ok := f.cache[expression]
	f.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expression, err)
	}
	f.mu.Lock()
	f.cache[expression] = program
	f.mu.Unlock()
	return program, nil
}

// isTruthy converts a value to a boolean.
func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}
