package engine

import (
	"errors"
	"fmt"
)

// QueryError represents a misuse of a QueryState or an empty execution.
type QueryError struct {
	// Code identifies the error category.
	Code QueryErrorCode

	// Message is a human-readable description.
	Message string

	// QueryID identifies the affected query, if one was compiled.
	QueryID string
}

// QueryErrorCode categorizes query errors.
type QueryErrorCode string

const (
	// ErrCodeNotCompiled indicates execution before a request was built.
	ErrCodeNotCompiled QueryErrorCode = "NOT_COMPILED"

	// ErrCodeNoResult indicates a fresh execution produced no rows.
	ErrCodeNoResult QueryErrorCode = "NO_RESULT"

	// ErrCodeClosed indicates use of a closed state.
	ErrCodeClosed QueryErrorCode = "CLOSED"
)

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.QueryID != "" {
		return fmt.Sprintf("%s: %s (query=%s)", e.Code, e.Message, e.QueryID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, code QueryErrorCode) bool {
	qe, ok := AsQueryError(err)
	return ok && qe.Code == code
}

// AsQueryError returns err as a *QueryError if it is one.
func AsQueryError(err error) (*QueryError, bool) {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}

// IsNotCompiled reports whether err is an execution-before-compile error.
func IsNotCompiled(err error) bool { return hasCode(err, ErrCodeNotCompiled) }

// IsNoResult reports whether err signals an execution without rows.
func IsNoResult(err error) bool { return hasCode(err, ErrCodeNoResult) }

// IsClosed reports whether err signals use of a closed state.
func IsClosed(err error) bool { return hasCode(err, ErrCodeClosed) }

func errNotCompiled() *QueryError {
	return &QueryError{Code: ErrCodeNotCompiled, Message: "no request has been built"}
}

func errNoResult(queryID string) *QueryError {
	return &QueryError{Code: ErrCodeNoResult, Message: "No result found for this query", QueryID: queryID}
}

func errClosed() *QueryError {
	return &QueryError{Code: ErrCodeClosed, Message: "query state is closed"}
}
