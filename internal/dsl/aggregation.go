package dsl

// Aggregation is a node of the aggregation tree.
//
// This is a sealed interface - only types in this package implement it.
//
// Aggregation types:
//   - TermsAgg: one bucket per distinct value of a field
//   - FilterAgg: a single bucket of the documents matching a query
//   - MetricAgg: a numeric value computed over the enclosing bucket
type Aggregation interface {
	aggregationNode()
	AggName() string
}

// TermsAgg buckets documents by the values of Field.
type TermsAgg struct {
	Name  string
	Field string
	// Size caps the number of buckets.
	Size int
	Sub  []Aggregation
}

func (TermsAgg) aggregationNode() {}

// AggName returns the aggregation name.
func (a TermsAgg) AggName() string { return a.Name }

// FilterAgg is a single bucket of the documents matching Filter.
type FilterAgg struct {
	Name   string
	Filter Query
	Sub    []Aggregation
}

func (FilterAgg) aggregationNode() {}

// AggName returns the aggregation name.
func (a FilterAgg) AggName() string { return a.Name }

// MetricKind selects the metric computed by a MetricAgg.
type MetricKind string

const (
	MetricValueCount  MetricKind = "value_count"
	MetricCardinality MetricKind = "cardinality"
	MetricSum         MetricKind = "sum"
	MetricAvg         MetricKind = "avg"
	MetricMin         MetricKind = "min"
	MetricMax         MetricKind = "max"
)

// MetricAgg computes Kind over Field within the enclosing bucket.
type MetricAgg struct {
	Name  string
	Kind  MetricKind
	Field string
}

func (MetricAgg) aggregationNode() {}

// AggName returns the aggregation name.
func (a MetricAgg) AggName() string { return a.Name }

// SubAggregations returns the children of a bucket aggregation, or nil for
// metrics.
func SubAggregations(a Aggregation) []Aggregation {
	switch n := a.(type) {
	case TermsAgg:
		return n.Sub
	case FilterAgg:
		return n.Sub
	}
	return nil
}
