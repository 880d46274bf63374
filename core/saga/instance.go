package saga

import (
	"maps"
	"time"
)

// Context is the mutable working set of one saga instance: the input
// data plus the results of completed steps. Only the manager and the
// instance's own steps touch it; the manager guarantees at most one
// active processor per instance.
type Context struct {
	CorrelationID string         `json:"correlation_id"`
	UserID        string         `json:"user_id,omitempty"`
	Data          map[string]any `json:"data"`
	StepResults   map[string]any `json:"step_results"`
}

// Result returns the stored result of a previously completed step.
func (c *Context) Result(step string) (any, bool) {
	r, ok := c.StepResults[step]
	return r, ok
}

func (c *Context) clone() *Context {
	if c == nil {
		return nil
	}
	return &Context{
		CorrelationID: c.CorrelationID,
		UserID:        c.UserID,
		Data:          maps.Clone(c.Data),
		StepResults:   maps.Clone(c.StepResults),
	}
}

// StepRecord is one append-only history entry per execution attempt.
type StepRecord struct {
	Step      string        `json:"step"`
	Status    StepStatus    `json:"status"`
	Attempt   int           `json:"attempt"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	Result    any           `json:"result,omitempty"`
}

// Instance is the persisted state of one saga execution. It is created
// by the manager and mutated only by it; everyone else reads.
type Instance struct {
	ID            string   `json:"id"`
	SagaType      string   `json:"saga_type"`
	CorrelationID string   `json:"correlation_id"`
	Status        Status   `json:"status"`
	Context       *Context `json:"context"`

	Steps       []string     `json:"steps"`
	StepHistory []StepRecord `json:"step_history"`
	CurrentStep int          `json:"current_step"`

	CompletedSteps   int `json:"completed_steps"`
	FailedSteps      int `json:"failed_steps"`
	CompensatedSteps int `json:"compensated_steps"`
	RetryCount       int `json:"retry_count"`

	Error         string    `json:"error,omitempty"`
	NextAttemptAt time.Time `json:"next_attempt_at,omitzero"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	StartedAt time.Time `json:"started_at,omitzero"`
	EndedAt   time.Time `json:"ended_at,omitzero"`

	Version uint64 `json:"version"`
}

// Terminal reports whether the instance reached a terminal status.
func (i *Instance) Terminal() bool { return i.Status.Terminal() }

func (i *Instance) record(rec StepRecord) {
	i.StepHistory = append(i.StepHistory, rec)
	switch rec.Status {
	case StepCompleted:
		i.CompletedSteps++
	case StepFailed:
		i.FailedSteps++
	case StepCompensated:
		i.CompensatedSteps++
	}
}

func (i *Instance) clone() *Instance {
	out := *i
	out.Context = i.Context.clone()
	out.Steps = append([]string(nil), i.Steps...)
	out.StepHistory = append([]StepRecord(nil), i.StepHistory...)
	return &out
}
