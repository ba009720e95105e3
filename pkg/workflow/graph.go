// Package workflow drives executions of workflow graphs.
package workflow

import (
	"fmt"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/template"
)

// Plan validates the graph and returns its nodes in visiting order. The order
// is topological; ties are broken by declaration order so a given graph always
// runs the same way. Any structural problem is a *models.GraphError.
func Plan(workflow *models.Workflow) ([]*models.WorkflowNode, error) {
	if len(workflow.Nodes) == 0 {
		return nil, &models.GraphError{Reason: "workflow has no nodes"}
	}

	index := make(map[string]int, len(workflow.Nodes))
	variables := make(map[string]string)

	for i, node := range workflow.Nodes {
		if node == nil || node.ID == "" {
			return nil, &models.GraphError{Reason: fmt.Sprintf("node at position %d has no id", i)}
		}

		if _, dup := index[node.ID]; dup {
			return nil, &models.GraphError{NodeID: node.ID, Reason: "duplicate node id"}
		}

		index[node.ID] = i

		if node.VariableName == "" {
			continue
		}

		if !template.IsIdentifier(node.VariableName) {
			return nil, &models.GraphError{NodeID: node.ID, Reason: fmt.Sprintf("invalid variable name %q", node.VariableName)}
		}

		if owner, dup := variables[node.VariableName]; dup {
			return nil, &models.GraphError{NodeID: node.ID, Reason: fmt.Sprintf("variable name %q already used by node %s", node.VariableName, owner)}
		}

		variables[node.VariableName] = node.ID
	}

	inDegree := make([]int, len(workflow.Nodes))
	successors := make([][]int, len(workflow.Nodes))
	seen := make(map[[2]int]bool)

	for _, conn := range workflow.Connections {
		source, ok := index[conn.SourceNodeID]
		if !ok {
			return nil, &models.GraphError{NodeID: conn.SourceNodeID, Reason: fmt.Sprintf("connection %s references unknown source node", conn.ID)}
		}

		target, ok := index[conn.TargetNodeID]
		if !ok {
			return nil, &models.GraphError{NodeID: conn.TargetNodeID, Reason: fmt.Sprintf("connection %s references unknown target node", conn.ID)}
		}

		if source == target {
			return nil, &models.GraphError{NodeID: conn.SourceNodeID, Reason: "node is connected to itself"}
		}

		edge := [2]int{source, target}
		if seen[edge] {
			continue
		}

		seen[edge] = true
		successors[source] = append(successors[source], target)
		inDegree[target]++
	}

	order := make([]*models.WorkflowNode, 0, len(workflow.Nodes))
	visited := make([]bool, len(workflow.Nodes))

	// Scan for the first ready node in declaration order on every step. Graphs
	// are small, so the quadratic scan keeps the ordering rule obvious.
	for len(order) < len(workflow.Nodes) {
		next := -1

		for i := range workflow.Nodes {
			if !visited[i] && inDegree[i] == 0 {
				next = i

				break
			}
		}

		if next < 0 {
			for i, node := range workflow.Nodes {
				if !visited[i] {
					return nil, &models.GraphError{NodeID: node.ID, Reason: "graph contains a cycle"}
				}
			}
		}

		visited[next] = true
		order = append(order, workflow.Nodes[next])

		for _, target := range successors[next] {
			inDegree[target]--
		}
	}

	return order, nil
}

// Validate reports whether the workflow graph can be executed.
func Validate(workflow *models.Workflow) error {
	_, err := Plan(workflow)

	return err
}
