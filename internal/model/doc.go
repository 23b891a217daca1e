// Package model holds the data types shared by the compiler, the executor
// and the result materializers.
//
// A compiled query is described by a Heading (the ordered output columns),
// the TableRelations it reads from, the residual OrderBy keys and an optional
// Comparison tree evaluated against aggregated rows (HAVING).
//
// This package imports nothing internal. Every other internal package may
// depend on it.
//
// Key constraints:
//   - Column order in a Heading is the client-visible order
//   - Labels are unique within a Heading (compared case-insensitively)
//   - A Heading is frozen once compilation completes and is then shared by
//     pointer, never copied
package model
