package model

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

const (
	// MaxWorkers bounds the worker list of a single pipeline.
	MaxWorkers = 100
	// MaxEdges bounds the edge list of a single pipeline.
	MaxEdges = 1000
)

var namePattern = regexp.MustCompile(`^[\w\- ]{1,100}$`)

// Pipeline is a stored, named graph of one trigger and zero or more workers
// connected by typed edges. The pipeline owns its nodes and edges; runs
// reference it only by id.
type Pipeline struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Trigger *Trigger  `json:"trigger,omitempty"`
	Workers []Worker  `json:"worker,omitempty"`
	Edges   []Edge    `json:"edges"`
}

// ValidateName checks the pipeline name: 1-100 characters, letters, digits,
// spaces, hyphens and underscores only.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("name must be 1-100 characters of letters, digits, spaces, hyphens or underscores")
	}
	return nil
}

// HasNode reports whether id names the trigger or a worker of this pipeline.
func (p *Pipeline) HasNode(id uuid.UUID) bool {
	if p.Trigger != nil && p.Trigger.ID == id {
		return true
	}
	return p.WorkerByID(id) != nil
}

// WorkerByID returns the worker with the given id, or nil.
func (p *Pipeline) WorkerByID(id uuid.UUID) *Worker {
	for i := range p.Workers {
		if p.Workers[i].ID == id {
			return &p.Workers[i]
		}
	}
	return nil
}

// NodeType returns the catalog type tag of the node with the given id.
func (p *Pipeline) NodeType(id uuid.UUID) (string, bool) {
	if p.Trigger != nil && p.Trigger.ID == id {
		return p.Trigger.Config.Type(), true
	}
	if w := p.WorkerByID(id); w != nil {
		return w.Config.Type(), true
	}
	return "", false
}

// Downstream returns the ids of all nodes with an edge from the given node.
func (p *Pipeline) Downstream(id uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	for _, e := range p.Edges {
		if e.Source == id {
			out = append(out, e.Target)
		}
	}
	return out
}

// Fingerprint returns the BLAKE3 hash of the pipeline's serialized
// definition. Runs record it so completion callbacks against an edited
// definition are detectable.
func (p *Pipeline) Fingerprint() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal pipeline: %w", err)
	}
	sum := blake3.Sum256(data)
	return "blake3:" + hex.EncodeToString(sum[:]), nil
}
