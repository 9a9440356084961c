package model

import "fmt"

// PortType is the data type that can flow over an edge between two nodes.
type PortType string

const (
	PortHTTP PortType = "http"
	PortIP   PortType = "ip"
)

// ParsePortType validates a raw port type string.
func ParsePortType(s string) (PortType, error) {
	switch PortType(s) {
	case PortHTTP, PortIP:
		return PortType(s), nil
	default:
		return "", fmt.Errorf("unknown port type %q", s)
	}
}

// NodeStatus is the runtime status of a node within a run, and of the run
// itself.
type NodeStatus string

const (
	StatusPending   NodeStatus = "Pending"
	StatusRunning   NodeStatus = "Running"
	StatusCompleted NodeStatus = "Completed"
	StatusError     NodeStatus = "Error"
)

// Terminal reports whether the status is final. A node or run never leaves a
// terminal status.
func (s NodeStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// NodeKind distinguishes the two fundamental node roles.
type NodeKind string

const (
	KindTrigger NodeKind = "trigger"
	KindWorker  NodeKind = "worker"
)

// WorkerCategory groups worker types for presentation. Triggers have no
// category.
type WorkerCategory string

const (
	CategoryScanner  WorkerCategory = "scanner"
	CategoryAnalyzer WorkerCategory = "analyzer"
	CategoryUtility  WorkerCategory = "utility"
	CategoryOutput   WorkerCategory = "output"
)

// GridPosition is the node's placement on the editor canvas. It has no
// semantic meaning for execution.
type GridPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
