package models

import "time"

// StepStatus is the lifecycle state of one pipeline stage.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepSkipped    StepStatus = "skipped"
)

// WorkflowStep records one pipeline stage for tasks touched during a run.
type WorkflowStep struct {
	Label       string     `json:"label"`
	Status      StepStatus `json:"status"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	DurationMs  *int64     `json:"durationMs,omitempty"`
	Detail      string     `json:"detail,omitempty"`
}
