// Package engine runs a workflow graph for one execution: every trigger is
// walked depth-first, each node's output becomes its children's input, and
// the first failing node aborts the whole run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/autoflow/ports"
	"github.com/soochol/autoflow/internal/dag"
	"github.com/soochol/autoflow/internal/nodes"
)

// Engine is the graph traversal engine. It is synchronous and holds no
// per-run state, so one Engine serves every worker.
type Engine struct {
	executor nodes.NodeExecutor
	logs     ports.NodeLogStore
	events   *EventBus
	logger   *slog.Logger
}

// New creates an Engine. events and logger may be nil.
func New(executor nodes.NodeExecutor, logs ports.NodeLogStore, events *EventBus, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{executor: executor, logs: logs, events: events, logger: logger}
}

// Run executes wf for exec, seeding every trigger with triggerData. It
// returns nil when every reachable node succeeded, a *autoflow.ConfigError
// for graph-level configuration problems, a *autoflow.NodeError for the
// first failing node, or autoflow.ErrCancelled when a stop was observed.
func (e *Engine) Run(ctx context.Context, wf *autoflow.Workflow, exec *autoflow.Execution, triggerData map[string]any) error {
	g, err := dag.Build(wf)
	if err != nil {
		return err
	}
	for _, c := range g.Dangling() {
		e.logger.Warn("engine: skipping dangling connection",
			"execution", exec.ID, "source", c.SourceNodeID, "target", c.TargetNodeID)
	}

	triggers := g.Triggers()
	if len(triggers) == 0 {
		return autoflow.NewConfigError("", "workflow %q has no trigger nodes", wf.ID)
	}
	if triggerData == nil {
		triggerData = map[string]any{}
	}

	t := &traversal{Engine: e, graph: g, wf: wf, exec: exec, onPath: make(map[string]bool)}
	for _, id := range triggers {
		if err := t.visit(ctx, id, triggerData); err != nil {
			return err
		}
	}
	return nil
}

// traversal is the state of one Run.
type traversal struct {
	*Engine
	graph *dag.DAG
	wf    *autoflow.Workflow
	exec  *autoflow.Execution
	// onPath holds the nodes on the current DFS path. A node reachable by
	// several paths runs once per path; meeting a node already on the path
	// is a cycle.
	onPath map[string]bool
}

func (t *traversal) visit(ctx context.Context, nodeID string, input map[string]any) error {
	if t.onPath[nodeID] {
		return autoflow.NewConfigError(nodeID, "cycle detected")
	}
	if err := t.checkCancelled(ctx); err != nil {
		return err
	}
	node := t.graph.Node(nodeID)

	output, err := t.execute(ctx, node, input)
	if err != nil {
		return err
	}

	t.onPath[nodeID] = true
	defer delete(t.onPath, nodeID)

	for _, c := range t.graph.Outgoing(nodeID) {
		if t.graph.Node(c.TargetNodeID) == nil {
			continue
		}
		if err := t.visit(ctx, c.TargetNodeID, output); err != nil {
			return err
		}
	}
	return nil
}

// execute runs a single node attempt and records its log.
func (t *traversal) execute(ctx context.Context, node *autoflow.Node, input map[string]any) (map[string]any, error) {
	log, err := t.logs.StartNodeLog(ctx, t.exec.ID, node.NodeID, input)
	if err != nil {
		return nil, fmt.Errorf("record start of node %q: %w", node.NodeID, err)
	}
	t.publish(EventNodeStarted, node.NodeID, nil)
	t.logger.Debug("engine: node started", "execution", t.exec.ID, "node", node.NodeID, "kind", node.Kind)

	start := time.Now()
	output, execErr := t.executor.Execute(ctx, node, input)
	log.DurationMs = time.Since(start).Milliseconds()

	// Logs must be finalized even when ctx has already expired.
	finishCtx := context.WithoutCancel(ctx)
	if execErr != nil {
		log.Status = autoflow.LogStatusFailed
		log.ErrorMessage = execErr.Error()
		if err := t.logs.FinishNodeLog(finishCtx, log); err != nil {
			t.logger.Error("engine: finalize node log failed", "execution", t.exec.ID, "node", node.NodeID, "err", err)
		}
		t.publish(EventNodeFailed, node.NodeID, map[string]any{"error": execErr.Error()})
		t.logger.Debug("engine: node failed", "execution", t.exec.ID, "node", node.NodeID, "err", execErr)
		return nil, &autoflow.NodeError{NodeID: node.NodeID, Err: execErr}
	}

	if output == nil {
		output = map[string]any{}
	}
	log.Status = autoflow.LogStatusSuccess
	log.OutputData = output
	if err := t.logs.FinishNodeLog(finishCtx, log); err != nil {
		return nil, fmt.Errorf("record completion of node %q: %w", node.NodeID, err)
	}
	t.publish(EventNodeCompleted, node.NodeID, map[string]any{"duration_ms": log.DurationMs})
	t.logger.Debug("engine: node completed", "execution", t.exec.ID, "node", node.NodeID, "duration_ms", log.DurationMs)
	return output, nil
}

// checkCancelled observes both in-process cancellation and stop requests
// recorded by other processes.
func (t *traversal) checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return autoflow.ErrCancelled
		}
		return err
	}
	cancelled, err := t.logs.IsCancelled(ctx, t.exec.ID)
	if err != nil {
		return fmt.Errorf("check cancellation: %w", err)
	}
	if cancelled {
		return autoflow.ErrCancelled
	}
	return nil
}

func (t *traversal) publish(typ EventType, nodeID string, payload map[string]any) {
	if t.events == nil {
		return
	}
	t.events.Publish(Event{
		ID:          autoflow.GenerateID("ev"),
		WorkflowID:  t.wf.ID,
		ExecutionID: t.exec.ID,
		NodeID:      nodeID,
		Type:        typ,
		Payload:     payload,
		Timestamp:   time.Now(),
	})
}
