package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// nodeMeta holds the fields common to every serialized node, stored alongside
// the type-specific config under the same wrapping key.
type nodeMeta struct {
	ID        uuid.UUID    `json:"id"`
	Position  GridPosition `json:"gridPosition"`
	Instances int          `json:"numberOfInstances,omitempty"`
}

// Trigger is the sole entry-point node of a pipeline. It has no inputs and
// produces the initial payload.
type Trigger struct {
	ID       uuid.UUID
	Position GridPosition
	Config   NodeConfig
}

// Worker is a processing node. It consumes upstream payloads and produces a
// payload for its downstream edges.
type Worker struct {
	ID       uuid.UUID
	Position GridPosition
	// Instances is the number of parallel instances ever dispatched for
	// this worker in the current lifecycle. Informational; the dispatcher
	// owns the authoritative counter.
	Instances int
	Config    NodeConfig
}

// MarshalJSON wraps the trigger fields under its type-name key, matching the
// stored document shape: {"IPAddressTrigger": {"id": ..., ...}}.
func (t Trigger) MarshalJSON() ([]byte, error) {
	return marshalWrapped(t.Config, nodeMeta{ID: t.ID, Position: t.Position})
}

// UnmarshalJSON reads the type-name key and decodes the matching trigger
// variant. Unknown or non-trigger tags are rejected.
func (t *Trigger) UnmarshalJSON(data []byte) error {
	tag, meta, cfg, err := unmarshalWrapped(data)
	if err != nil {
		return err
	}
	if !IsTriggerType(tag) {
		return fmt.Errorf("node type %q is not a trigger (available: %v)", tag, TriggerTypes())
	}
	t.ID = meta.ID
	t.Position = meta.Position
	t.Config = cfg
	return nil
}

// MarshalJSON wraps the worker fields under its type-name key.
func (w Worker) MarshalJSON() ([]byte, error) {
	return marshalWrapped(w.Config, nodeMeta{ID: w.ID, Position: w.Position, Instances: w.Instances})
}

// UnmarshalJSON reads the type-name key and decodes the matching worker
// variant. Unknown or trigger tags are rejected.
func (w *Worker) UnmarshalJSON(data []byte) error {
	tag, meta, cfg, err := unmarshalWrapped(data)
	if err != nil {
		return err
	}
	if IsTriggerType(tag) {
		return fmt.Errorf("node type %q is a trigger, not a worker", tag)
	}
	w.ID = meta.ID
	w.Position = meta.Position
	w.Instances = meta.Instances
	w.Config = cfg
	return nil
}

func marshalWrapped(cfg NodeConfig, meta nodeMeta) ([]byte, error) {
	if cfg == nil {
		return nil, fmt.Errorf("node has no config")
	}
	if meta.ID == uuid.Nil {
		return nil, fmt.Errorf("node has no id")
	}

	// Merge meta and config fields into one flat object.
	inner := map[string]json.RawMessage{}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal node config: %w", err)
	}
	if err := json.Unmarshal(cfgJSON, &inner); err != nil {
		return nil, fmt.Errorf("flatten node config: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	metaFields := map[string]json.RawMessage{}
	if err := json.Unmarshal(metaJSON, &metaFields); err != nil {
		return nil, err
	}
	for k, v := range metaFields {
		inner[k] = v
	}

	return json.Marshal(map[string]map[string]json.RawMessage{cfg.Type(): inner})
}

func unmarshalWrapped(data []byte) (string, nodeMeta, NodeConfig, error) {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return "", nodeMeta{}, nil, fmt.Errorf("decode node: %w", err)
	}
	if len(wrapper) != 1 {
		return "", nodeMeta{}, nil, fmt.Errorf("node must be wrapped under exactly one type-name key, got %d", len(wrapper))
	}

	var tag string
	var inner json.RawMessage
	for k, v := range wrapper {
		tag, inner = k, v
	}

	cfg, ok := newNodeConfig(tag)
	if !ok {
		return "", nodeMeta{}, nil, fmt.Errorf("unknown node type %q", tag)
	}
	var meta nodeMeta
	if err := json.Unmarshal(inner, &meta); err != nil {
		return "", nodeMeta{}, nil, fmt.Errorf("decode %s: %w", tag, err)
	}
	if err := json.Unmarshal(inner, cfg); err != nil {
		return "", nodeMeta{}, nil, fmt.Errorf("decode %s config: %w", tag, err)
	}
	return tag, meta, cfg, nil
}
