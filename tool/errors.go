// Package tool executes selected actions against the outside world: web
// search providers and report persistence. Pure bookkeeping actions
// (planning, clarification, completion) only produce a result string for the
// conversation history.
package tool

import "fmt"

// ErrorCode classifies execution failures for logging and API responses.
type ErrorCode string

const (
	CodeSearchUnavailable ErrorCode = "SEARCH_UNAVAILABLE"
	CodeSearchTimeout     ErrorCode = "SEARCH_TIMEOUT"
	CodeReportPersist     ErrorCode = "REPORT_PERSIST"
)

// Error wraps an execution failure with its classification.
type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
