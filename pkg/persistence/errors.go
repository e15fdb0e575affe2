// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrJourneyNotFound indicates a journey was not found by the given identifier.
	ErrJourneyNotFound = errors.New("journey not found")

	// ErrStepNotFound indicates a step was not found by the given identifier.
	ErrStepNotFound = errors.New("step not found")

	// ErrEnrollmentNotFound indicates an enrollment was not found by the given identifier.
	ErrEnrollmentNotFound = errors.New("enrollment not found")

	// ErrExecutionNotFound indicates a step execution was not found.
	ErrExecutionNotFound = errors.New("step execution not found")

	// ErrExecutionNotClaimable indicates the compare-and-set claim lost:
	// the execution is not due, or another runner already holds it.
	ErrExecutionNotClaimable = errors.New("step execution not claimable")

	// ErrExecutionImmutable indicates a write to an execution row that
	// already reached a terminal status.
	ErrExecutionImmutable = errors.New("step execution is terminal and immutable")
)

// JourneyError wraps journey-related storage errors with operation context.
type JourneyError struct {
	Op        string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	JourneyID string
	Err       error
}

func (e *JourneyError) Error() string {
	return fmt.Sprintf("%s operation failed for journey %s: %v", e.Op, e.JourneyID, e.Err)
}

func (e *JourneyError) Unwrap() error {
	return e.Err
}

func (e *JourneyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewJourneyError creates a new journey error with context.
func NewJourneyError(op, journeyID string, err error) *JourneyError {
	return &JourneyError{
		Op:        op,
		JourneyID: journeyID,
		Err:       err,
	}
}

// StepError wraps step-related storage errors with operation context.
type StepError struct {
	Op        string
	JourneyID string
	StepID    string
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s operation failed for step %s in journey %s: %v", e.Op, e.StepID, e.JourneyID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// ExecutionError wraps execution-log storage errors with operation context.
type ExecutionError struct {
	Op           string
	EnrollmentID string
	ExecutionID  string
	Err          error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s of enrollment %s: %v", e.Op, e.ExecutionID, e.EnrollmentID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsJourneyNotFound checks if an error indicates a journey was not found.
func IsJourneyNotFound(err error) bool {
	return errors.Is(err, ErrJourneyNotFound)
}

// IsStepNotFound checks if an error indicates a step was not found.
func IsStepNotFound(err error) bool {
	return errors.Is(err, ErrStepNotFound)
}

// IsEnrollmentNotFound checks if an error indicates an enrollment was not found.
func IsEnrollmentNotFound(err error) bool {
	return errors.Is(err, ErrEnrollmentNotFound)
}

// IsExecutionNotClaimable checks if an error indicates a lost claim race.
func IsExecutionNotClaimable(err error) bool {
	return errors.Is(err, ErrExecutionNotClaimable)
}
