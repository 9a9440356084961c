package api

import "github.com/portwhine/portwhine/internal/model"

// ErrorResponse is the uniform JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse reports service liveness and the container task backlog.
type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	QueueDepth    int    `json:"queue_depth"`
}

// StartRunResponse returns the run created for a started pipeline.
type StartRunResponse struct {
	Run *model.Run `json:"run"`
}

// JobResultRequest is the worker callback body. InstanceName, when present,
// lets the engine clean up the reporting container immediately.
type JobResultRequest struct {
	model.WorkerResult
	InstanceName string `json:"instance_name,omitempty"`
}
