// Package domain defines core types and errors shared across the agent.
package domain

import "fmt"

// ConnectionError indicates a transport or auth failure reaching a store.
// Callers may retry; the agent never retries internally.
type ConnectionError struct {
	Message string
}

func (e *ConnectionError) Error() string { return "connection error: " + e.Message }

// ExecutionError indicates the store rejected or failed a query. The store's
// message is carried verbatim for diagnosis.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string { return "query execution error: " + e.Message }

// InvalidPatternError indicates a configured filter regex failed to compile.
// It is fatal to policy construction: no discovery or scrubbing may begin
// with a partially built policy.
type InvalidPatternError struct {
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid filter pattern %q: %v", e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error { return e.Err }

// ErrConnection creates a ConnectionError with a formatted message.
func ErrConnection(format string, args ...interface{}) *ConnectionError {
	return &ConnectionError{Message: fmt.Sprintf(format, args...)}
}

// ErrExecution creates an ExecutionError with a formatted message.
func ErrExecution(format string, args ...interface{}) *ExecutionError {
	return &ExecutionError{Message: fmt.Sprintf(format, args...)}
}
