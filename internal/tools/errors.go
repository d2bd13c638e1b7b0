package tools

import "fmt"

// ErrNotFound is returned when a tool call targets a name that is not
// present in the registry.
type ErrNotFound struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("Tool not found: %s", e.ToolName)
}

// ErrInvalidArguments is returned when a tool rejects its arguments
// before doing any work.
type ErrInvalidArguments struct {
	Reason string
}

// Error implements the error interface.
func (e *ErrInvalidArguments) Error() string {
	return fmt.Sprintf("Invalid arguments: %s", e.Reason)
}

// ErrExecutionFailed is returned when a tool starts executing and fails.
type ErrExecutionFailed struct {
	Reason string
}

// Error implements the error interface.
func (e *ErrExecutionFailed) Error() string {
	return fmt.Sprintf("Execution failed: %s", e.Reason)
}
