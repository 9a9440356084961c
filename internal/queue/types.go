package queue

import (
	"time"

	"github.com/google/uuid"
)

// Action tells the container runner what to do with a task.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionCleanup Action = "cleanup"
)

// Status of a container task in the queue.
type Status string

const (
	StatusQueued Status = "queued"
	StatusTaken  Status = "taken"
)

// Task is one unit of container work. The engine enqueues tasks and the
// runner claims them oldest first.
type Task struct {
	ID            string            `json:"id"`
	Action        Action            `json:"action"`
	ContainerName string            `json:"container_name"`
	Image         string            `json:"image_name,omitempty"`
	Environment   map[string]string `json:"environment,omitempty"`
	PipelineID    uuid.UUID         `json:"pipeline_id,omitempty"`
	RunID         uuid.UUID         `json:"run_id,omitempty"`
	Status        Status            `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	TakenAt       *time.Time        `json:"taken_at,omitempty"`
}

// EnqueueRequest is the caller-facing shape of a new task.
type EnqueueRequest struct {
	Action        Action
	ContainerName string
	Image         string
	Environment   map[string]string
	PipelineID    uuid.UUID
	RunID         uuid.UUID
}
