package compiler

import (
	"errors"
	"fmt"
)

// Compile error codes (E200-E299)
const (
	// Statement-level errors (E200-E209)
	ErrParse           = "E200" // SQL text could not be parsed
	ErrNotSelect       = "E201" // statement is not a SELECT
	ErrDistinctGroupBy = "E202" // DISTINCT combined with GROUP BY
	ErrInvalidLimit    = "E203" // LIMIT is not a non-negative integer
	ErrInvalidRequest  = "E204" // assembled request failed validation

	// FROM errors (E210-E219)
	ErrNoRelation          = "E210" // no usable table in FROM
	ErrUnsupportedRelation = "E211" // join, subquery or other relation kind

	// Select-list errors (E220-E229)
	ErrUnsupportedSelect = "E220" // select item kind not supported
	ErrUnknownFunction   = "E221" // function is neither an aggregate nor HIGHLIGHT
	ErrDuplicateLabel    = "E222" // two columns share a label
	ErrNoMetadata        = "E223" // * used on a table without column metadata
	ErrInvalidExpression = "E224" // computed expression not supported

	// WHERE errors (E230-E239)
	ErrUnsupportedPredicate = "E230" // predicate kind not supported
	ErrInvalidLiteral       = "E231" // literal cannot be converted

	// Aggregation errors (E240-E249)
	ErrNotGrouped      = "E240" // projected field missing from GROUP BY
	ErrInvalidGroupKey = "E241" // GROUP BY item is not a field
	ErrInvalidDistinct = "E242" // DISTINCT over non-field columns

	// HAVING / ORDER BY errors (E250-E259)
	ErrUnresolvedColumn = "E250" // reference matches no column
	ErrInvalidOrder     = "E251" // ORDER BY key cannot be evaluated
)

// CompileError is a failure detected while compiling a statement.
//
// Clause names the SQL clause being compiled when the error occurred
// ("SELECT", "FROM", "WHERE", ...). Message is the human-readable cause.
type CompileError struct {
	Code    string `json:"code"`
	Clause  string `json:"clause,omitempty"`
	Message string `json:"message"`
}

func (e *CompileError) Error() string {
	if e.Clause != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Clause, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func newError(code, clause, format string, args ...any) *CompileError {
	return &CompileError{Code: code, Clause: clause, Message: fmt.Sprintf(format, args...)}
}

// inClause attributes a clause-less CompileError to clause.
func inClause(err error, clause string) error {
	if ce, ok := IsCompileError(err); ok && ce.Clause == "" {
		ce.Clause = clause
	}
	return err
}

// IsCompileError reports whether err is (or wraps) a CompileError, and
// returns it.
func IsCompileError(err error) (*CompileError, bool) {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// HasCode reports whether err is a CompileError with the given code.
func HasCode(err error, code string) bool {
	ce, ok := IsCompileError(err)
	return ok && ce.Code == code
}
