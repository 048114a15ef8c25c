// Package dag indexes a workflow graph for traversal.
package dag

import (
	"sort"

	"github.com/soochol/autoflow/internal/autoflow"
)

// DAG indexes nodes by nodeId and connections by source. Despite the name it
// does not reject cycles; traversal detects them per path.
type DAG struct {
	nodes    map[string]*autoflow.Node
	outgoing map[string][]autoflow.Connection
	triggers []string
	dangling []autoflow.Connection
}

// Build indexes wf. Duplicate or empty node IDs are configuration errors;
// connections whose endpoints are missing are kept aside as dangling.
func Build(wf *autoflow.Workflow) (*DAG, error) {
	d := &DAG{
		nodes:    make(map[string]*autoflow.Node),
		outgoing: make(map[string][]autoflow.Connection),
	}

	for i := range wf.Nodes {
		n := &wf.Nodes[i]
		if n.NodeID == "" {
			return nil, autoflow.NewConfigError("", "node at index %d has no node_id", i)
		}
		if _, exists := d.nodes[n.NodeID]; exists {
			return nil, autoflow.NewConfigError(n.NodeID, "duplicate node ID")
		}
		d.nodes[n.NodeID] = n
		if n.Kind == autoflow.NodeKindTrigger {
			d.triggers = append(d.triggers, n.NodeID)
		}
	}
	sort.Strings(d.triggers)

	for _, c := range wf.Connections {
		_, srcOK := d.nodes[c.SourceNodeID]
		_, dstOK := d.nodes[c.TargetNodeID]
		if !srcOK || !dstOK {
			d.dangling = append(d.dangling, c)
			if !srcOK {
				continue
			}
		}
		d.outgoing[c.SourceNodeID] = append(d.outgoing[c.SourceNodeID], c)
	}
	return d, nil
}

func (d *DAG) Node(id string) *autoflow.Node            { return d.nodes[id] }
func (d *DAG) Outgoing(id string) []autoflow.Connection { return d.outgoing[id] }
func (d *DAG) Triggers() []string                       { return d.triggers }
func (d *DAG) Dangling() []autoflow.Connection          { return d.dangling }
func (d *DAG) Len() int                                 { return len(d.nodes) }

// HasCycle reports whether any directed cycle exists among known nodes.
func (d *DAG) HasCycle() bool {
	inDegree := make(map[string]int, len(d.nodes))
	for id := range d.nodes {
		inDegree[id] = 0
	}
	for _, conns := range d.outgoing {
		for _, c := range conns {
			if _, ok := d.nodes[c.TargetNodeID]; ok {
				inDegree[c.TargetNodeID]++
			}
		}
	}
	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++
		for _, c := range d.outgoing[node] {
			if _, ok := d.nodes[c.TargetNodeID]; !ok {
				continue
			}
			inDegree[c.TargetNodeID]--
			if inDegree[c.TargetNodeID] == 0 {
				queue = append(queue, c.TargetNodeID)
			}
		}
	}
	return visited != len(d.nodes)
}
