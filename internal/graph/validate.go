// Package graph validates pipeline topologies before execution. Validation
// is a pure function of the pipeline's current field values and the injected
// node-type catalog; it never mutates the pipeline and may be re-run at any
// time with the same result.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/portwhine/portwhine/internal/catalog"
	"github.com/portwhine/portwhine/internal/model"
)

// Violation names the structural invariant a pipeline breaks.
type Violation string

const (
	ViolationWorkersWithoutTrigger Violation = "workers_without_trigger"
	ViolationEdgesWithoutNodes     Violation = "edges_without_nodes"
	ViolationDuplicateNodeID       Violation = "duplicate_node_id"
	ViolationUnknownNodeType       Violation = "unknown_node_type"
	ViolationUnknownEndpoint       Violation = "unknown_edge_endpoint"
	ViolationSelfLoop              Violation = "self_loop"
	ViolationInvalidPort           Violation = "invalid_port"
	ViolationPortMismatch          Violation = "port_type_mismatch"
	ViolationUndeclaredPort        Violation = "undeclared_port"
	ViolationDuplicateEdge         Violation = "duplicate_edge"
	ViolationUnreachableWorker     Violation = "unreachable_worker"
	ViolationCycle                 Violation = "cycle"
	ViolationNodeConfig            Violation = "invalid_node_config"
)

// ValidationError reports the first violated invariant found in a pipeline.
type ValidationError struct {
	Violation Violation
	Detail    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid pipeline (%s): %s", e.Violation, e.Detail)
}

func violation(v Violation, format string, args ...any) *ValidationError {
	return &ValidationError{Violation: v, Detail: fmt.Sprintf(format, args...)}
}

// Validate checks every structural invariant of the pipeline, in a fixed
// order chosen for diagnostic clarity, and returns the first violation. A nil
// return means the pipeline is executable.
func Validate(p *model.Pipeline, reg *catalog.Registry) error {
	// 1. Trigger/worker presence.
	if p.Trigger == nil {
		if len(p.Workers) > 0 {
			return violation(ViolationWorkersWithoutTrigger, "pipeline has workers but no trigger")
		}
		if len(p.Edges) > 0 {
			return violation(ViolationEdgesWithoutNodes, "edges cannot exist without nodes")
		}
		return nil // empty pipeline is valid (initial editing state)
	}

	if len(p.Workers) > model.MaxWorkers {
		return violation(ViolationNodeConfig, "maximum %d workers allowed per pipeline", model.MaxWorkers)
	}
	if len(p.Edges) > model.MaxEdges {
		return violation(ViolationNodeConfig, "maximum %d edges allowed per pipeline", model.MaxEdges)
	}

	nodes := map[uuid.UUID]*catalog.NodeDefinition{}
	resolve := func(id uuid.UUID, typeTag string) (*catalog.NodeDefinition, error) {
		def, ok := reg.Get(typeTag)
		if !ok {
			return nil, violation(ViolationUnknownNodeType, "node %s has unknown type %q", id, typeTag)
		}
		if _, dup := nodes[id]; dup {
			return nil, violation(ViolationDuplicateNodeID, "duplicate node id %s", id)
		}
		return def, nil
	}

	def, err := resolve(p.Trigger.ID, p.Trigger.Config.Type())
	if err != nil {
		return err
	}
	nodes[p.Trigger.ID] = def
	for _, w := range p.Workers {
		def, err := resolve(w.ID, w.Config.Type())
		if err != nil {
			return err
		}
		nodes[w.ID] = def
	}

	// 2-5. Per-edge checks: endpoint existence, self-loop, port
	// compatibility, duplicates.
	seen := map[[2]uuid.UUID]bool{}
	adjacency := map[uuid.UUID][]uuid.UUID{}
	for _, e := range p.Edges {
		src, ok := nodes[e.Source]
		if !ok {
			return violation(ViolationUnknownEndpoint, "edge source %s not found in pipeline", e.Source)
		}
		dst, ok := nodes[e.Target]
		if !ok {
			return violation(ViolationUnknownEndpoint, "edge target %s not found in pipeline", e.Target)
		}

		if e.Source == e.Target {
			return violation(ViolationSelfLoop, "edge connects node %s to itself", e.Source)
		}

		srcType, err := e.SourcePortType()
		if err != nil {
			return violation(ViolationInvalidPort, "edge %s -> %s: %v", e.Source, e.Target, err)
		}
		dstType, err := e.TargetPortType()
		if err != nil {
			return violation(ViolationInvalidPort, "edge %s -> %s: %v", e.Source, e.Target, err)
		}
		if !src.HasOutput(srcType) {
			return violation(ViolationUndeclaredPort,
				"node %s (%s) has no output port %q, available: %s",
				e.Source, src.Name, e.SourcePort, portList(src.Outputs, false))
		}
		if !dst.HasInput(dstType) {
			return violation(ViolationUndeclaredPort,
				"node %s (%s) has no input port %q, available: %s",
				e.Target, dst.Name, e.TargetPort, portList(dst.Inputs, true))
		}
		if srcType != dstType {
			return violation(ViolationPortMismatch,
				"port %q cannot connect to port %q", e.SourcePort, e.TargetPort)
		}

		key := [2]uuid.UUID{e.Source, e.Target}
		if seen[key] {
			return violation(ViolationDuplicateEdge, "duplicate edge from %s to %s", e.Source, e.Target)
		}
		seen[key] = true
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}

	// 6. Reachability: every worker must be reachable from the trigger.
	if len(p.Workers) > 0 {
		reachable := map[uuid.UUID]bool{}
		queue := []uuid.UUID{p.Trigger.ID}
		for len(queue) > 0 {
			n := queue[0]
			queue = queue[1:]
			if reachable[n] {
				continue
			}
			reachable[n] = true
			queue = append(queue, adjacency[n]...)
		}

		var unreachable []string
		for _, w := range p.Workers {
			if !reachable[w.ID] {
				unreachable = append(unreachable, w.ID.String())
			}
		}
		if len(unreachable) > 0 {
			sort.Strings(unreachable)
			return violation(ViolationUnreachableWorker,
				"workers not reachable from trigger: %s", strings.Join(unreachable, ", "))
		}
	}

	// 7. Cycle detection: DFS with a recursion-stack set per component.
	visited := map[uuid.UUID]bool{}
	var dfs func(n uuid.UUID, stack map[uuid.UUID]bool) bool
	dfs = func(n uuid.UUID, stack map[uuid.UUID]bool) bool {
		visited[n] = true
		stack[n] = true
		for _, next := range adjacency[n] {
			if !visited[next] {
				if dfs(next, stack) {
					return true
				}
			} else if stack[next] {
				return true
			}
		}
		delete(stack, n)
		return false
	}
	for id := range nodes {
		if !visited[id] && dfs(id, map[uuid.UUID]bool{}) {
			return violation(ViolationCycle, "pipeline contains a cycle")
		}
	}

	// 8. Scan parameters, once the topology is sound.
	if err := p.Trigger.Config.Validate(); err != nil {
		return violation(ViolationNodeConfig, "trigger %s: %v", p.Trigger.ID, err)
	}
	for _, w := range p.Workers {
		if err := w.Config.Validate(); err != nil {
			return violation(ViolationNodeConfig, "worker %s (%s): %v", w.ID, w.Config.Type(), err)
		}
	}
	return nil
}

func portList(ports []model.PortType, input bool) string {
	names := make([]string, len(ports))
	for i, t := range ports {
		names[i] = model.PortName(t, input)
	}
	return strings.Join(names, ", ")
}
