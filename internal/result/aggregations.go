package result

import (
	"fmt"
	"slices"

	"github.com/roach88/sql4go/internal/backend"
	"github.com/roach88/sql4go/internal/dsl"
	"github.com/roach88/sql4go/internal/model"
)

// AggregationMaterializer turns an aggregation response into rows by
// walking the request's aggregation tree alongside it: one row per leaf
// bucket, carrying the keys of every enclosing bucket.
type AggregationMaterializer struct {
	heading  *model.Heading
	capacity int
}

// NewAggregationMaterializer creates a materializer for h.
func NewAggregationMaterializer(h *model.Heading, capacity int) *AggregationMaterializer {
	return &AggregationMaterializer{heading: h, capacity: capacity}
}

// Materialize converts the response to root, the aggregation that was
// requested.
func (m *AggregationMaterializer) Materialize(root dsl.Aggregation, aggs backend.Aggregations) (*ResultSet, error) {
	rs := New(m.heading, m.capacity)
	data, ok := aggs[root.AggName()]
	if !ok || data == nil {
		return nil, fmt.Errorf("response has no aggregation %q", root.AggName())
	}
	if err := m.walk(rs, root, data, rs.NewRow()); err != nil {
		return nil, err
	}
	return rs, nil
}

func (m *AggregationMaterializer) walk(rs *ResultSet, node dsl.Aggregation, data *backend.Aggregation, row []any) error {
	switch n := node.(type) {
	case dsl.FilterAgg:
		m.fill(row, data.DocCount, data.Sub)
		return rs.Add(row)
	case dsl.TermsAgg:
		child := nestedTerms(n.Sub)
		for _, bucket := range data.Buckets {
			r := slices.Clone(row)
			m.setKey(r, n.Field, bucket.Key)
			if child == nil {
				m.fill(r, bucket.DocCount, bucket.Aggregations)
				if err := rs.Add(r); err != nil {
					return err
				}
				continue
			}
			sub, ok := bucket.Aggregations[child.Name]
			if !ok || sub == nil {
				return fmt.Errorf("bucket %v has no aggregation %q", bucket.Key, child.Name)
			}
			if err := m.walk(rs, *child, sub, r); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unexpected aggregation %T", node)
}

func nestedTerms(sub []dsl.Aggregation) *dsl.TermsAgg {
	for _, a := range sub {
		if t, ok := a.(dsl.TermsAgg); ok {
			return &t
		}
	}
	return nil
}

// setKey stores a bucket key in every plain column reading field.
func (m *AggregationMaterializer) setKey(row []any, field string, key any) {
	for _, c := range m.heading.Columns() {
		if c.Op == model.OpNone && c.Field == field {
			row[c.Index] = Convert(key, c.Type)
		}
	}
}

// fill stores the metrics of a leaf bucket. COUNT(*) is the bucket's
// document count; counts are integers, other metrics are float64 and NULL
// when the backend reports no value.
func (m *AggregationMaterializer) fill(row []any, docCount int64, metrics backend.Aggregations) {
	for _, c := range m.heading.Aggregates() {
		if c.Op == model.OpCount && c.Field == model.FieldAll {
			row[c.Index] = docCount
			continue
		}
		metric := metrics[c.AggregateKey()]
		if metric == nil || metric.Value == nil {
			row[c.Index] = nil
			continue
		}
		switch c.Op {
		case model.OpCount, model.OpCountDistinct:
			row[c.Index] = int64(*metric.Value)
		default:
			row[c.Index] = *metric.Value
		}
	}
}
