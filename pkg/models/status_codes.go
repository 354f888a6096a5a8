package models

// StatusCode is the symbol shown next to a step in the summary table
type StatusCode string

const (
	StatusSucceeded StatusCode = "✅"
	StatusFailed    StatusCode = "❌"
	StatusRunning   StatusCode = "🕕"
	StatusSkipped   StatusCode = "⏭"
	StatusPending   StatusCode = "…"
	StatusUnknown   StatusCode = "❓"
)

// StepStatus is the lifecycle state of a workflow step
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

func (s StepStatus) Code() StatusCode {
	switch s {
	case StepPending:
		return StatusPending
	case StepRunning:
		return StatusRunning
	case StepSucceeded:
		return StatusSucceeded
	case StepFailed:
		return StatusFailed
	case StepSkipped:
		return StatusSkipped
	default:
		return StatusUnknown
	}
}

// Done reports whether the step reached a terminal state.
func (s StepStatus) Done() bool {
	return s == StepSucceeded || s == StepFailed || s == StepSkipped
}
