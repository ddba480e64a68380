package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCommands  = errors.New("command sequence cannot be empty")
	ErrNegativeCycles = errors.New("cycles cannot be negative")
	ErrCodeClash      = errors.New("success and timeout codes must differ")
	ErrEmptyPort      = errors.New("serial port cannot be empty")
)

// ConnectionError means the serial port could not be opened. It ends the run.
type ConnectionError struct {
	Port string
	Baud int
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s at %d baud: %v", e.Port, e.Baud, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

type WriteError struct {
	Command string
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %q: %v", e.Command, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read feedback: %v", e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// ValidationError wraps every problem found in a RunConfig.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
