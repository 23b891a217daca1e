package model

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Synthetic document fields available on every hit.
const (
	FieldID    = "_id"
	FieldType  = "_type"
	FieldIndex = "_index"
	FieldScore = "_score"

	// FieldAll is the source field of COUNT(*).
	FieldAll = "*"
)

// Column is one entry of a Heading.
//
// Label is what the caller sees. Field is the source document field the
// value comes from (a dotted path for nested objects). Hidden columns
// (Visible == false) carry values needed by computed columns, HAVING or
// ORDER BY but are not part of the client-visible projection.
type Column struct {
	Label   string
	Field   string
	Type    SQLType
	Op      Operation
	Visible bool

	// Index is the position of the column in its Heading.
	Index int

	// Computation is set for OpComputed columns.
	Computation *Computation
}

// Computation describes a derived column evaluated client-side.
//
// Expr is an arithmetic expression over the variables c0..cN, where ci is
// bound to the value of the heading column Args[i].
type Computation struct {
	Expr string
	Args []int
}

// AggregateKey returns the name under which the backend reports the value of
// an aggregate column, e.g. "sum(price)" or "count(*)".
func (c *Column) AggregateKey() string {
	return AggregateKey(c.Op, c.Field)
}

// AggregateKey builds the aggregation name for op over field.
func AggregateKey(op Operation, field string) string {
	return fmt.Sprintf("%s(%s)", op, field)
}

// Heading is the ordered set of output columns of a compiled query.
type Heading struct {
	columns []*Column
	byLabel map[string]int
	frozen  bool
}

// NewHeading creates an empty, mutable heading.
func NewHeading() *Heading {
	return &Heading{byLabel: make(map[string]int)}
}

// FoldLabel normalizes a label for case-insensitive comparison.
func FoldLabel(label string) string {
	return cases.Fold().String(norm.NFC.String(label))
}

// Add appends a column and assigns its Index.
// Fails when the heading is frozen or the label is already taken.
func (h *Heading) Add(c *Column) (*Column, error) {
	if h.frozen {
		return nil, fmt.Errorf("heading is frozen")
	}
	key := FoldLabel(c.Label)
	if _, ok := h.byLabel[key]; ok {
		return nil, fmt.Errorf("duplicate column label %q", c.Label)
	}
	c.Index = len(h.columns)
	h.columns = append(h.columns, c)
	h.byLabel[key] = c.Index
	return c, nil
}

// Relabel changes the label of column i.
func (h *Heading) Relabel(i int, label string) error {
	if h.frozen {
		return fmt.Errorf("heading is frozen")
	}
	c := h.columns[i]
	oldKey, newKey := FoldLabel(c.Label), FoldLabel(label)
	if j, ok := h.byLabel[newKey]; ok && j != i {
		return fmt.Errorf("duplicate column label %q", label)
	}
	delete(h.byLabel, oldKey)
	c.Label = label
	h.byLabel[newKey] = i
	return nil
}

// Freeze marks the heading immutable.
func (h *Heading) Freeze() { h.frozen = true }

// Frozen reports whether Freeze was called.
func (h *Heading) Frozen() bool { return h.frozen }

// Len returns the number of columns, hidden ones included.
func (h *Heading) Len() int { return len(h.columns) }

// Column returns the column at index i.
func (h *Heading) Column(i int) *Column { return h.columns[i] }

// Columns returns all columns in order, hidden ones included.
func (h *Heading) Columns() []*Column { return h.columns }

// Visible returns the client-visible columns in order.
func (h *Heading) Visible() []*Column {
	out := make([]*Column, 0, len(h.columns))
	for _, c := range h.columns {
		if c.Visible {
			out = append(out, c)
		}
	}
	return out
}

// Labels returns the labels of the visible columns.
func (h *Heading) Labels() []string {
	vis := h.Visible()
	out := make([]string, len(vis))
	for i, c := range vis {
		out[i] = c.Label
	}
	return out
}

// Lookup finds a column by label, case-insensitively.
func (h *Heading) Lookup(label string) (*Column, bool) {
	i, ok := h.byLabel[FoldLabel(label)]
	if !ok {
		return nil, false
	}
	return h.columns[i], true
}

// LookupField finds the first plain (non-aggregate, non-computed) column
// reading field.
func (h *Heading) LookupField(field string) (*Column, bool) {
	folded := FoldLabel(field)
	for _, c := range h.columns {
		if c.Op == OpNone && FoldLabel(c.Field) == folded {
			return c, true
		}
	}
	return nil, false
}

// LookupAggregate finds the column computing op over field.
func (h *Heading) LookupAggregate(op Operation, field string) (*Column, bool) {
	folded := FoldLabel(field)
	for _, c := range h.columns {
		if c.Op == op && FoldLabel(c.Field) == folded {
			return c, true
		}
	}
	return nil, false
}

// Aggregates returns every aggregate column, hidden ones included.
func (h *Heading) Aggregates() []*Column {
	var out []*Column
	for _, c := range h.columns {
		if c.Op.Aggregate() {
			out = append(out, c)
		}
	}
	return out
}

// HasAggregates reports whether any column is an aggregate.
func (h *Heading) HasAggregates() bool {
	for _, c := range h.columns {
		if c.Op.Aggregate() {
			return true
		}
	}
	return false
}

// AggregateOnly reports whether every visible column is an aggregate or a
// computation over aggregates only.
func (h *Heading) AggregateOnly() bool {
	vis := h.Visible()
	if len(vis) == 0 {
		return false
	}
	for _, c := range vis {
		if !h.aggregated(c) {
			return false
		}
	}
	return true
}

func (h *Heading) aggregated(c *Column) bool {
	switch {
	case c.Op.Aggregate():
		return true
	case c.Op == OpComputed && c.Computation != nil:
		if len(c.Computation.Args) == 0 {
			return false
		}
		for _, i := range c.Computation.Args {
			if !h.aggregated(h.columns[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Highlights returns the HIGHLIGHT columns.
func (h *Heading) Highlights() []*Column {
	var out []*Column
	for _, c := range h.columns {
		if c.Op == OpHighlight {
			out = append(out, c)
		}
	}
	return out
}

// Computed returns the computed columns in order.
func (h *Heading) Computed() []*Column {
	var out []*Column
	for _, c := range h.columns {
		if c.Op == OpComputed {
			out = append(out, c)
		}
	}
	return out
}

// Fields returns the distinct source fields of plain columns, in order.
func (h *Heading) Fields() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range h.columns {
		if c.Op != OpNone || seen[c.Field] {
			continue
		}
		seen[c.Field] = true
		out = append(out, c.Field)
	}
	return out
}

// Requests reports whether the heading selects field as a plain column.
func (h *Heading) Requests(field string) bool {
	_, ok := h.LookupField(field)
	return ok
}
