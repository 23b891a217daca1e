// Package result turns backend responses into tabular results.
//
// A ResultSet holds one page of rows under a frozen heading. Every row has
// one value per heading column, hidden columns included; consumers read
// the visible projection. Residual clause processing (HAVING, ORDER BY and
// computed columns) operates on ResultSets in place.
package result

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/sql4go/internal/model"
)

// ErrClosed is returned when a closed ResultSet is used.
var ErrClosed = errors.New("result set is closed")

// ResultSet is one page of rows.
type ResultSet struct {
	heading *model.Heading
	rows    [][]any
	offset  int64
	total   int64
	closed  bool
}

// New creates an empty result with room for capacity rows.
func New(h *model.Heading, capacity int) *ResultSet {
	if capacity < 0 {
		capacity = 0
	}
	return &ResultSet{heading: h, rows: make([][]any, 0, capacity)}
}

// NewRow returns a row of the heading's width with every value NULL.
func (rs *ResultSet) NewRow() []any {
	return make([]any, rs.heading.Len())
}

// Add appends a row. Rows must have the heading's width.
func (rs *ResultSet) Add(row []any) error {
	if rs.closed {
		return ErrClosed
	}
	if len(row) != rs.heading.Len() {
		return fmt.Errorf("row has %d values, heading has %d columns", len(row), rs.heading.Len())
	}
	rs.rows = append(rs.rows, row)
	return nil
}

// Heading returns the heading shared by every row.
func (rs *ResultSet) Heading() *model.Heading { return rs.heading }

// Len returns the number of rows in this page.
func (rs *ResultSet) Len() int { return len(rs.rows) }

// Row returns row i with every column, hidden ones included.
func (rs *ResultSet) Row(i int) []any { return rs.rows[i] }

// Rows returns every row with every column.
func (rs *ResultSet) Rows() [][]any { return rs.rows }

// Visible returns row i projected onto the visible columns.
func (rs *ResultSet) Visible(i int) []any {
	vis := rs.heading.Visible()
	out := make([]any, len(vis))
	for j, c := range vis {
		out[j] = rs.rows[i][c.Index]
	}
	return out
}

// VisibleRows returns every row projected onto the visible columns.
func (rs *ResultSet) VisibleRows() [][]any {
	out := make([][]any, len(rs.rows))
	for i := range rs.rows {
		out[i] = rs.Visible(i)
	}
	return out
}

// Offset is the position of the first row of this page in the whole
// result.
func (rs *ResultSet) Offset() int64 { return rs.offset }

// SetOffset sets the page position.
func (rs *ResultSet) SetOffset(offset int64) { rs.offset = offset }

// Total is the estimated number of rows across all pages.
func (rs *ResultSet) Total() int64 { return rs.total }

// SetTotal sets the total row estimate.
func (rs *ResultSet) SetTotal(total int64) { rs.total = total }

// Exhausted reports whether this page reaches the end of the result.
func (rs *ResultSet) Exhausted() bool {
	return rs.offset+int64(len(rs.rows)) >= rs.total
}

// Close releases the row buffer. It is safe to call more than once.
func (rs *ResultSet) Close() {
	rs.closed = true
	rs.rows = nil
}

// Truncate keeps at most the first n rows.
func (rs *ResultSet) Truncate(n int) {
	if n < 0 || n >= len(rs.rows) {
		return
	}
	clear(rs.rows[n:])
	rs.rows = rs.rows[:n]
}

// Closed reports whether Close was called.
func (rs *ResultSet) Closed() bool { return rs.closed }

// Filter keeps only the rows for which c evaluates to true. A nil
// predicate keeps every row.
func (rs *ResultSet) Filter(c model.Comparison) error {
	if rs.closed {
		return ErrClosed
	}
	if c == nil {
		return nil
	}
	kept := rs.rows[:0]
	for _, row := range rs.rows {
		ok, err := model.Evaluate(c, row)
		if err != nil {
			return fmt.Errorf("evaluate HAVING: %w", err)
		}
		if ok {
			kept = append(kept, row)
		}
	}
	clear(rs.rows[len(kept):])
	rs.rows = kept
	return nil
}

// Sort orders rows by orderings, the first listed key deciding first.
// Rows equal on every key keep their relative order. NULLs sort first in
// ascending order.
func (rs *ResultSet) Sort(orderings []model.OrderBy) error {
	if rs.closed {
		return ErrClosed
	}
	if len(orderings) == 0 {
		return nil
	}
	for _, o := range orderings {
		if o.Column < 0 || o.Column >= rs.heading.Len() {
			return fmt.Errorf("ORDER BY %s is not a column of the result", o.Field)
		}
	}
	slices.SortStableFunc(rs.rows, func(a, b []any) int {
		for _, o := range orderings {
			cmp := model.CompareNullsFirst(a[o.Column], b[o.Column])
			if o.Desc {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp
			}
		}
		return 0
	})
	return nil
}
