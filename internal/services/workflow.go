package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/autoflow/ports"
	"github.com/soochol/autoflow/internal/dag"
	"github.com/soochol/autoflow/internal/repository"
)

var _ ports.WorkflowLookup = (*WorkflowService)(nil)

// WorkflowService validates and stores workflow graphs.
type WorkflowService struct {
	repo repository.WorkflowRepository
	now  func() time.Time
}

// NewWorkflowService creates a WorkflowService.
func NewWorkflowService(repo repository.WorkflowRepository) *WorkflowService {
	return &WorkflowService{repo: repo, now: time.Now}
}

// Lookup resolves a workflow by ID via the repository.
func (s *WorkflowService) Lookup(ctx context.Context, id string) (*autoflow.Workflow, error) {
	return s.repo.Get(ctx, id)
}

// Validate checks the structural rules a saved workflow must satisfy.
// Dangling connections and cycles are accepted here; traversal tolerates
// the former and fails runs on the latter, so a cycle is only logged.
func (s *WorkflowService) Validate(wf *autoflow.Workflow) error {
	if strings.TrimSpace(wf.Name) == "" {
		return autoflow.NewConfigError("", "workflow name is required")
	}

	seen := make(map[string]bool, len(wf.Nodes))
	for _, n := range wf.Nodes {
		if n.NodeID == "" {
			return autoflow.NewConfigError("", "every node needs a node_id")
		}
		if seen[n.NodeID] {
			return autoflow.NewConfigError(n.NodeID, "duplicate node_id")
		}
		seen[n.NodeID] = true

		switch n.Kind {
		case autoflow.NodeKindTrigger, autoflow.NodeKindAction, autoflow.NodeKindCondition:
		default:
			return autoflow.NewConfigError(n.NodeID, "unknown node kind %q", n.Kind)
		}
	}

	for i, c := range wf.Connections {
		if c.SourceNodeID == "" || c.TargetNodeID == "" {
			return autoflow.NewConfigError("", "connection %d needs source_node_id and target_node_id", i)
		}
		switch c.ConnectionType {
		case "", autoflow.ConnectionSuccess, autoflow.ConnectionFailure, autoflow.ConnectionAlways:
		default:
			return autoflow.NewConfigError("", "connection %d has unknown connection_type %q", i, c.ConnectionType)
		}
	}

	if g, err := dag.Build(wf); err == nil && g.HasCycle() {
		slog.Warn("workflow: graph contains a cycle", "workflow", wf.ID, "name", wf.Name)
	}
	return nil
}

// Create validates and stores a new workflow, assigning an ID when empty.
func (s *WorkflowService) Create(ctx context.Context, wf *autoflow.Workflow) error {
	if err := s.Validate(wf); err != nil {
		return err
	}
	if wf.ID == "" {
		wf.ID = autoflow.GenerateID("wf")
	}
	now := s.now()
	wf.CreatedAt = now
	wf.UpdatedAt = now
	if err := s.repo.Create(ctx, wf); err != nil {
		return fmt.Errorf("create workflow %s: %w", wf.ID, err)
	}
	return nil
}

// Get retrieves a workflow by ID.
func (s *WorkflowService) Get(ctx context.Context, id string) (*autoflow.Workflow, error) {
	return s.repo.Get(ctx, id)
}

// List returns all workflows.
func (s *WorkflowService) List(ctx context.Context) ([]*autoflow.Workflow, error) {
	return s.repo.List(ctx)
}

// Update validates and replaces an existing workflow, keeping its creation time.
func (s *WorkflowService) Update(ctx context.Context, wf *autoflow.Workflow) error {
	if err := s.Validate(wf); err != nil {
		return err
	}
	existing, err := s.repo.Get(ctx, wf.ID)
	if err != nil {
		return err
	}
	wf.CreatedAt = existing.CreatedAt
	wf.UpdatedAt = s.now()
	return s.repo.Update(ctx, wf)
}

// Delete removes a workflow.
func (s *WorkflowService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
