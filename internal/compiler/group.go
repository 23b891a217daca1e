package compiler

import (
	"strconv"

	"github.com/xwb1989/sqlparser"

	"github.com/roach88/sql4go/internal/dsl"
	"github.com/roach88/sql4go/internal/model"
)

// ImplicitAggregation is the name of the single-bucket aggregation used
// when only aggregates are selected without GROUP BY.
const ImplicitAggregation = "filter"

// groupKeys resolves GROUP BY items to heading columns, adding hidden
// columns for keys that are not projected. Items may be columns, labels of
// projected columns or 1-based positions in the select list.
func groupKeys(groupBy sqlparser.GroupBy, h *model.Heading, rels []model.TableRelation, columns model.ColumnTypes) ([]*model.Column, error) {
	keys := make([]*model.Column, 0, len(groupBy))
	seen := make(map[string]bool)
	for _, expr := range groupBy {
		col, err := groupKey(expr, h, rels, columns)
		if err != nil {
			return nil, err
		}
		if seen[col.Field] {
			return nil, newError(ErrInvalidGroupKey, "GROUP BY", "%s listed more than once", col.Field)
		}
		seen[col.Field] = true
		keys = append(keys, col)
	}
	return keys, nil
}

func groupKey(expr sqlparser.Expr, h *model.Heading, rels []model.TableRelation, columns model.ColumnTypes) (*model.Column, error) {
	switch e := expr.(type) {
	case *sqlparser.ColName:
		if e.Qualifier.IsEmpty() {
			if c, ok := h.Lookup(e.Name.String()); ok && c.Op == model.OpNone {
				return c, nil
			}
		}
		field, typ := resolveField(columns, stripQualifier(e, rels))
		c, err := addHidden(h, model.OpNone, field)
		if err != nil {
			return nil, err
		}
		if c.Type == "" || c.Type == model.TypeOther {
			c.Type = typ
		}
		return c, nil
	case *sqlparser.SQLVal:
		if e.Type == sqlparser.IntVal {
			n, err := strconv.Atoi(string(e.Val))
			vis := h.Visible()
			if err != nil || n < 1 || n > len(vis) {
				return nil, newError(ErrInvalidGroupKey, "GROUP BY", "position %s is out of range", e.Val)
			}
			c := vis[n-1]
			if c.Op != model.OpNone {
				return nil, newError(ErrInvalidGroupKey, "GROUP BY", "cannot group by %s", c.Label)
			}
			return c, nil
		}
	}
	return nil, newError(ErrInvalidGroupKey, "GROUP BY", "cannot group by %s", sqlparser.String(expr))
}

// checkGrouped verifies every plain column is one of the group keys.
func checkGrouped(h *model.Heading, keys []*model.Column) error {
	grouped := make(map[int]bool, len(keys))
	for _, k := range keys {
		grouped[k.Index] = true
	}
	for _, c := range h.Columns() {
		if c.Op == model.OpNone && !grouped[c.Index] {
			return newError(ErrNotGrouped, "GROUP BY", "column %s must appear in GROUP BY", c.Label)
		}
		if c.Op == model.OpHighlight {
			return newError(ErrNotGrouped, "GROUP BY", "HIGHLIGHT cannot be combined with aggregation")
		}
	}
	return nil
}

// metricAggregations builds one metric per aggregate column. COUNT(*) needs
// none since every bucket carries its document count.
func metricAggregations(h *model.Heading) []dsl.Aggregation {
	var out []dsl.Aggregation
	seen := make(map[string]bool)
	for _, c := range h.Aggregates() {
		if c.Op == model.OpCount && c.Field == model.FieldAll {
			continue
		}
		name := c.AggregateKey()
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, dsl.MetricAgg{Name: name, Kind: metricKind(c.Op), Field: c.Field})
	}
	return out
}

func metricKind(op model.Operation) dsl.MetricKind {
	switch op {
	case model.OpCount:
		return dsl.MetricValueCount
	case model.OpCountDistinct:
		return dsl.MetricCardinality
	case model.OpSum:
		return dsl.MetricSum
	case model.OpAvg:
		return dsl.MetricAvg
	case model.OpMin:
		return dsl.MetricMin
	case model.OpMax:
		return dsl.MetricMax
	}
	return ""
}

// termsTree nests one terms aggregation per key, outermost first, with
// leaf attached to the innermost level.
func termsTree(keys []*model.Column, size int, leaf []dsl.Aggregation) dsl.Aggregation {
	var agg dsl.Aggregation
	for i := len(keys) - 1; i >= 0; i-- {
		sub := leaf
		if agg != nil {
			sub = []dsl.Aggregation{agg}
		}
		agg = dsl.TermsAgg{Name: keys[i].Field, Field: keys[i].Field, Size: size, Sub: sub}
	}
	return agg
}

// groupAggregation synthesizes the aggregation for an explicit GROUP BY.
func groupAggregation(keys []*model.Column, h *model.Heading, size int) (dsl.Aggregation, error) {
	if err := checkGrouped(h, keys); err != nil {
		return nil, err
	}
	return termsTree(keys, size, metricAggregations(h)), nil
}

// implicitAggregation wraps where in a single bucket carrying the metrics
// of an aggregate-only projection.
func implicitAggregation(where dsl.Query, h *model.Heading) dsl.Aggregation {
	return dsl.FilterAgg{Name: ImplicitAggregation, Filter: where, Sub: metricAggregations(h)}
}

// distinctAggregation deduplicates rows by bucketing on every projected
// field.
func distinctAggregation(h *model.Heading, size int) (dsl.Aggregation, error) {
	var keys []*model.Column
	for _, c := range h.Columns() {
		if c.Op != model.OpNone {
			return nil, newError(ErrInvalidDistinct, "SELECT", "DISTINCT only supports plain columns, got %s", c.Label)
		}
		keys = append(keys, c)
	}
	if len(keys) == 0 {
		return nil, newError(ErrInvalidDistinct, "SELECT", "DISTINCT needs at least one column")
	}
	seen := make(map[string]bool)
	unique := keys[:0:0]
	for _, k := range keys {
		if !seen[k.Field] {
			seen[k.Field] = true
			unique = append(unique, k)
		}
	}
	return termsTree(unique, size, nil), nil
}

// collectAggregates adds hidden columns for every aggregate referenced by
// expr, so HAVING and ORDER BY can be evaluated on materialized rows.
func collectAggregates(expr sqlparser.SQLNode, h *model.Heading, rels []model.TableRelation) error {
	if expr == nil {
		return nil
	}
	return sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		fn, ok := node.(*sqlparser.FuncExpr)
		if !ok {
			return true, nil
		}
		op, ok := model.AggregateFunc(fn.Name.Lowered(), fn.Distinct)
		if !ok {
			return true, nil
		}
		field, err := aggregateField(fn, rels)
		if err != nil {
			return false, err
		}
		if _, err := addHidden(h, op, field); err != nil {
			return false, err
		}
		return false, nil
	}, expr)
}
