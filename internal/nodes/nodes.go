// Package nodes maps a node's declared kind and subtype to the operation
// that executes it.
package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/resolve"
)

// NodeExecutor executes a node against its input data bag and returns the
// node's output data bag.
type NodeExecutor interface {
	Execute(ctx context.Context, node *autoflow.Node, input map[string]any) (map[string]any, error)
}

// requiredFielder is implemented by integrations that declare mandatory
// config fields.
type requiredFielder interface {
	RequiredFields() []string
}

// placeholderFreeFielder is implemented by integrations with config fields
// that must not be built from placeholders, such as SQL text whose values
// belong in bound parameters.
type placeholderFreeFielder interface {
	PlaceholderFreeFields() []string
}

// Dispatcher is the NodeExecutor for all built-in node kinds.
type Dispatcher struct {
	integrations *Registry
	filters      *FilterEvaluator
}

var _ NodeExecutor = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher that hands action nodes to integrations.
func NewDispatcher(integrations *Registry) *Dispatcher {
	if integrations == nil {
		integrations = NewRegistry()
	}
	return &Dispatcher{
		integrations: integrations,
		filters:      NewFilterEvaluator(),
	}
}

func (d *Dispatcher) Execute(ctx context.Context, node *autoflow.Node, input map[string]any) (map[string]any, error) {
	if input == nil {
		input = map[string]any{}
	}
	switch node.Kind {
	case autoflow.NodeKindTrigger:
		return input, nil
	case autoflow.NodeKindAction:
		return d.executeAction(ctx, node, input)
	case autoflow.NodeKindCondition:
		return d.executeCondition(node, input)
	default:
		return nil, autoflow.NewConfigError(node.NodeID, "unknown node kind %q", node.Kind)
	}
}

func (d *Dispatcher) executeAction(ctx context.Context, node *autoflow.Node, input map[string]any) (map[string]any, error) {
	actionType := node.StringConfig("actionType")
	if actionType == "" {
		return nil, autoflow.NewConfigError(node.NodeID, "actionType is required")
	}
	integration, ok := d.integrations.Get(actionType)
	if !ok {
		return nil, autoflow.NewConfigError(node.NodeID, "unknown action type %q", actionType)
	}
	if rf, ok := integration.(requiredFielder); ok {
		if err := checkRequired(node, rf.RequiredFields()); err != nil {
			return nil, err
		}
	}
	if pf, ok := integration.(placeholderFreeFielder); ok {
		if err := checkPlaceholderFree(node, pf.PlaceholderFreeFields()); err != nil {
			return nil, err
		}
	}

	config := resolve.Config(node.Config, input)
	out, err := integration.Execute(ctx, config, input)
	if err != nil {
		return nil, fmt.Errorf("%s action: %w", actionType, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func (d *Dispatcher) executeCondition(node *autoflow.Node, input map[string]any) (map[string]any, error) {
	switch conditionType := node.StringConfig("conditionType"); conditionType {
	case "if":
		result, err := evaluateIf(node, input)
		if err != nil {
			return nil, err
		}
		return withConditionResult(input, result), nil
	case "filter":
		// Without an expression a filter passes its input through untouched.
		expression := node.StringConfig("expression")
		if expression == "" {
			return input, nil
		}
		result, err := d.filters.Evaluate(expression, input)
		if err != nil {
			return nil, autoflow.NewConfigError(node.NodeID, "filter: %v", err)
		}
		return withConditionResult(input, result), nil
	case "":
		return nil, autoflow.NewConfigError(node.NodeID, "conditionType is required")
	default:
		return nil, autoflow.NewConfigError(node.NodeID, "unknown condition type %q", conditionType)
	}
}

func checkRequired(node *autoflow.Node, fields []string) error {
	for _, f := range fields {
		v, ok := node.Config[f]
		if !ok || v == nil {
			return autoflow.NewConfigError(node.NodeID, "missing required config field %q", f)
		}
		if s, isStr := v.(string); isStr && s == "" {
			return autoflow.NewConfigError(node.NodeID, "missing required config field %q", f)
		}
	}
	return nil
}

func checkPlaceholderFree(node *autoflow.Node, fields []string) error {
	for _, f := range fields {
		if s, ok := node.Config[f].(string); ok && strings.Contains(s, "{{") {
			return autoflow.NewConfigError(node.NodeID, "config field %q must not contain {{...}} placeholders", f)
		}
	}
	return nil
}

func withConditionResult(input map[string]any, result bool) map[string]any {
	out := make(map[string]any, len(input)+1)
	for k, v := range input {
		out[k] = v
	}
	out["conditionResult"] = result
	return out
}
