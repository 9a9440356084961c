package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Edge is a typed directed connection from one node's output port to another
// node's input port. Ports are encoded as "{type}_out" / "{type}_in".
type Edge struct {
	Source     uuid.UUID `json:"source"`
	Target     uuid.UUID `json:"target"`
	SourcePort string    `json:"source_port"`
	TargetPort string    `json:"target_port"`
}

// SourcePortType derives the data type from the source port identifier.
func (e Edge) SourcePortType() (PortType, error) {
	return portTypeFrom(e.SourcePort, "_out")
}

// TargetPortType derives the data type from the target port identifier.
func (e Edge) TargetPortType() (PortType, error) {
	return portTypeFrom(e.TargetPort, "_in")
}

func portTypeFrom(port, suffix string) (PortType, error) {
	if port == "" {
		return "", fmt.Errorf("port is empty")
	}
	name, ok := strings.CutSuffix(port, suffix)
	if !ok {
		return "", fmt.Errorf("port %q must end in %q", port, suffix)
	}
	t, err := ParsePortType(name)
	if err != nil {
		return "", fmt.Errorf("port %q: %w", port, err)
	}
	return t, nil
}

// PortName builds a port identifier for a type and direction, e.g.
// PortName(PortIP, true) == "ip_in".
func PortName(t PortType, input bool) string {
	if input {
		return string(t) + "_in"
	}
	return string(t) + "_out"
}
