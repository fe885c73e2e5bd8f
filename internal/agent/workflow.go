package agent

import (
	"time"

	"github.com/haasonsaas/agentdesk/pkg/models"
)

// Stage labels recorded on touched tasks.
const (
	stageScan     = "Security scan"
	stageConfig   = "Load configuration"
	stageContext  = "Build context"
	stageProvider = "Call provider"
	stageParse    = "Parse response"
	stageThinking = "Save reasoning"
	stageDispatch = "Dispatch actions"
	stageMemory   = "Save memory"
)

// workflow is the append-only step log of one run. It is never shared
// between runs.
type workflow struct {
	now   func() time.Time
	steps []models.WorkflowStep
}

func newWorkflow(now func() time.Time) *workflow {
	return &workflow{now: now}
}

// begin appends an in-progress step and returns its index.
func (w *workflow) begin(label string) int {
	w.steps = append(w.steps, models.WorkflowStep{
		Label:     label,
		Status:    models.StepInProgress,
		StartedAt: w.now(),
	})
	return len(w.steps) - 1
}

func (w *workflow) complete(i int, detail string) {
	w.finish(i, models.StepCompleted, detail)
}

func (w *workflow) fail(i int, detail string) {
	w.finish(i, models.StepFailed, detail)
}

func (w *workflow) finish(i int, status models.StepStatus, detail string) {
	if i < 0 || i >= len(w.steps) {
		return
	}
	step := &w.steps[i]
	if step.Status != models.StepInProgress {
		return
	}
	done := w.now()
	elapsed := done.Sub(step.StartedAt).Milliseconds()
	step.Status = status
	step.CompletedAt = &done
	step.DurationMs = &elapsed
	step.Detail = detail
}

// skip records a step that did not run.
func (w *workflow) skip(label, detail string) {
	w.steps = append(w.steps, models.WorkflowStep{
		Label:     label,
		Status:    models.StepSkipped,
		StartedAt: w.now(),
		Detail:    detail,
	})
}

// snapshot returns a copy of the recorded steps.
func (w *workflow) snapshot() []models.WorkflowStep {
	out := make([]models.WorkflowStep, len(w.steps))
	copy(out, w.steps)
	return out
}
