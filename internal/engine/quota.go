package engine

import (
	"errors"
	"fmt"
)

// QuotaEnforcer bounds the number of line steps a single event may trigger.
//
// A healthy line needs a handful of steps per event: the handshake, one
// stage transition or an archive. Hitting the limit means two writers keep
// undoing each other, and the loop gives up on the event instead of
// spinning.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check increments the step counter and validates against the limit.
func (q *QuotaEnforcer) Check(trigger string) error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{
			Trigger: trigger,
			Steps:   q.current,
			Limit:   q.maxSteps,
		}
	}
	return nil
}

// Reset resets the step counter to 0.
func (q *QuotaEnforcer) Reset() {
	q.current = 0
}

// Current returns the current step count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the maximum steps limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when one event triggers more steps than
// allowed.
type StepsExceededError struct {
	Trigger string
	Steps   int
	Limit   int
}

func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("%s event exceeded max steps quota: %d steps > %d limit",
		e.Trigger, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
