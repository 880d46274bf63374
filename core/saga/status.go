package saga

import "log/slog"

// Status is the lifecycle state of a saga instance.
//
//	PENDING → RUNNING → {COMPLETED | COMPENSATING → COMPENSATED | CANCELLED | FAILED}
//
// RUNNING moves back to PENDING when a step failure is rescheduled for
// retry. COMPLETED, CANCELLED, COMPENSATED and FAILED are terminal: an
// instance never transitions again once it reaches one of them.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusRunning      Status = "RUNNING"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusCompensated  Status = "COMPENSATED"
	StatusCancelled    Status = "CANCELLED"
	StatusFailed       Status = "FAILED"
)

var transitions = map[Status][]Status{
	StatusPending:      {StatusRunning, StatusCancelled},
	StatusRunning:      {StatusPending, StatusCompleted, StatusCompensating, StatusCancelled, StatusFailed},
	StatusCompensating: {StatusCompensated, StatusCancelled, StatusFailed},
}

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusCompensated, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal
// state-machine step.
func (s Status) CanTransition(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

func (s Status) String() string      { return string(s) }
func (s Status) SlogAttr() slog.Attr { return slog.String("status", string(s)) }

// StepStatus is the outcome of a single step execution attempt.
type StepStatus string

const (
	StepCompleted          StepStatus = "COMPLETED"
	StepFailed             StepStatus = "FAILED"
	StepSkipped            StepStatus = "SKIPPED"
	StepCompensated        StepStatus = "COMPENSATED"
	StepCompensationFailed StepStatus = "COMPENSATION_FAILED"
)
