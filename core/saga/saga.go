// Package saga orchestrates multi-step, cross-aggregate workflows with
// retry and compensation. A saga definition contributes ordered steps;
// the manager persists every state transition and attempt, retries
// retryable failures with exponential backoff, and unwinds completed
// steps in reverse order when a step fails irrecoverably.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrSagaNotFound    = errors.New("saga not found")
	ErrSagaTerminal    = errors.New("saga is in a terminal state")
	ErrStatusConflict  = errors.New("saga status conflict")
	ErrUnknownSagaType = errors.New("unknown saga type")
	ErrSagaTimeout     = errors.New("saga timed out")
)

// StepError marks a step failure as non-retryable. Raising one (or
// wrapping one) from Execute skips the retry path and triggers
// compensation immediately.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// NewStepError wraps err as a non-retryable step failure.
func NewStepError(step string, err error) *StepError {
	return &StepError{Step: step, Err: err}
}

// Config bounds a saga definition's execution.
type Config struct {
	// MaxRetries caps how often a failing instance is rescheduled
	// before compensation kicks in.
	MaxRetries int
	// Compensate controls whether completed steps are unwound on an
	// irrecoverable failure. When false the saga goes straight to
	// FAILED, leaving committed side effects in place.
	Compensate bool
	// Timeout bounds the total run time of one instance. Zero means no
	// limit. A timed-out instance takes the compensation path.
	Timeout time.Duration
}

func DefaultSagaConfig() Config {
	return Config{
		MaxRetries: 3,
		Compensate: true,
	}
}

// Definition describes one saga type: its ordered steps plus optional
// capabilities (DataValidator, Configurer and the lifecycle hooks).
type Definition interface {
	SagaType() string
	Steps() []Step
}

// DataValidator lets a definition reject bad input before an instance
// is ever persisted.
type DataValidator interface {
	ValidateData(data map[string]any) error
}

// Configurer overrides DefaultSagaConfig for a definition.
type Configurer interface {
	SagaConfig() Config
}

// Lifecycle hooks, fired after the corresponding terminal transition
// was persisted.
type (
	CompletedHook interface {
		OnCompleted(ctx context.Context, inst *Instance)
	}
	FailedHook interface {
		OnFailed(ctx context.Context, inst *Instance)
	}
	CompensatedHook interface {
		OnCompensated(ctx context.Context, inst *Instance)
	}
)

// Step is one unit of work in a saga, paired with the compensating
// action that undoes it.
type Step interface {
	Name() string
	// Execute performs the step. Its result is stored in the context
	// keyed by the step name, available to later steps.
	Execute(ctx context.Context, sc *Context) (any, error)
	// Compensate undoes a previously completed Execute. It runs during
	// the reverse-order unwind and must tolerate partial state.
	Compensate(ctx context.Context, sc *Context) error
}

// Skippable steps may be bypassed based on the saga context; a skip is
// recorded and the saga advances without executing.
type Skippable interface {
	CanSkip(sc *Context) bool
}

// Retryable steps decide per error whether a retry is worthwhile.
// Steps without it retry every failure except a StepError.
type Retryable interface {
	CanRetry(err error) bool
}

// RetryDelayer overrides the default exponential backoff.
type RetryDelayer interface {
	RetryDelay(attempt int) time.Duration
}

func sagaConfigOf(def Definition) Config {
	if c, ok := def.(Configurer); ok {
		return c.SagaConfig()
	}
	return DefaultSagaConfig()
}
