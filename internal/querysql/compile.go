// Package querysql compiles backend search requests to parameterized SQL
// over the local documents table.
//
// Every statement orders its rows deterministically and every value,
// including JSON paths, is bound as a parameter rather than interpolated.
package querysql

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/sql4go/internal/dsl"
	"github.com/roach88/sql4go/internal/model"
)

// SQLCompiler compiles dsl requests to SQLite statements.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Statement is a compiled SQL statement with its parameters.
type Statement struct {
	SQL    string
	Params []any
}

// builder accumulates SQL text and its parameters in order.
type builder struct {
	sb     strings.Builder
	params []any
}

func (b *builder) write(sql string, params ...any) {
	b.sb.WriteString(sql)
	b.params = append(b.params, params...)
}

func (b *builder) statement() Statement {
	return Statement{SQL: b.sb.String(), Params: b.params}
}

// CompileSearch selects one page of matching documents in request order.
func (c *SQLCompiler) CompileSearch(req *dsl.Request, offset, limit int) (Statement, error) {
	var b builder
	b.write("SELECT idx, id, doc_type, source FROM documents")
	if err := c.where(&b, req.Indices, req.EffectiveQuery()); err != nil {
		return Statement{}, err
	}
	b.write(" ORDER BY ")
	for _, s := range req.Sorts {
		switch s.Field {
		case dsl.DocOrder, model.FieldScore:
			// Local documents are unscored; index order is the tiebreaker.
			continue
		}
		expr, params := fieldExpr(s.Field)
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		// Missing values sort last in either direction.
		b.write(fmt.Sprintf("%s IS NULL ASC, %s %s, ", expr, expr, dir), append(params, params...)...)
	}
	b.write(stableOrderKey())
	b.write(" LIMIT ? OFFSET ?", limit, offset)
	return b.statement(), nil
}

// CompileCount counts the documents matching the request.
func (c *SQLCompiler) CompileCount(req *dsl.Request) (Statement, error) {
	var b builder
	b.write("SELECT COUNT(*) FROM documents")
	if err := c.where(&b, req.Indices, req.EffectiveQuery()); err != nil {
		return Statement{}, err
	}
	return b.statement(), nil
}

// AggregationPlan is a flattened aggregation tree compiled to one GROUP BY
// statement.
//
// Result rows hold one key per Terms level (outermost first), the document
// count, then one value per metric. The caller rebuilds the bucket tree.
type AggregationPlan struct {
	Statement

	// Levels are the bucket aggregations from the root down: either a
	// single FilterAgg or one TermsAgg per level.
	Levels  []dsl.Aggregation
	Terms   []dsl.TermsAgg
	Metrics []dsl.MetricAgg
}

// CompileAggregation compiles the request's aggregation. Documents are
// selected by the request's Query; PostFilter does not apply to
// aggregations.
func (c *SQLCompiler) CompileAggregation(req *dsl.Request) (*AggregationPlan, error) {
	if req.Aggregation == nil {
		return nil, fmt.Errorf("request has no aggregation")
	}
	plan := &AggregationPlan{}
	filters := []dsl.Query{}
	if req.Query != nil {
		filters = append(filters, req.Query)
	}

	for agg := req.Aggregation; agg != nil; {
		plan.Levels = append(plan.Levels, agg)
		var next dsl.Aggregation
		for _, sub := range dsl.SubAggregations(agg) {
			switch s := sub.(type) {
			case dsl.MetricAgg:
				plan.Metrics = append(plan.Metrics, s)
			case dsl.TermsAgg, dsl.FilterAgg:
				if next != nil {
					return nil, fmt.Errorf("aggregation %s has more than one bucket child", agg.AggName())
				}
				next = s
			}
		}
		switch a := agg.(type) {
		case dsl.FilterAgg:
			if len(plan.Levels) > 1 || next != nil {
				return nil, fmt.Errorf("filter aggregation %s must be the only bucket level", a.Name)
			}
			if a.Filter != nil {
				filters = append(filters, a.Filter)
			}
		case dsl.TermsAgg:
			plan.Terms = append(plan.Terms, a)
			filters = append(filters, dsl.Exists{Field: a.Field})
		default:
			return nil, fmt.Errorf("unsupported aggregation type: %T", agg)
		}
		agg = next
	}

	var b builder
	b.write("SELECT ")
	for i, t := range plan.Terms {
		expr, params := fieldExpr(t.Field)
		b.write(fmt.Sprintf("%s AS k%d, ", expr, i), params...)
	}
	b.write("COUNT(*) AS doc_count")
	for i, m := range plan.Metrics {
		expr, params := fieldExpr(m.Field)
		fn, err := metricSQL(m.Kind, expr)
		if err != nil {
			return nil, err
		}
		b.write(fmt.Sprintf(", %s AS m%d", fn, i), params...)
	}
	b.write(" FROM documents")

	var where dsl.Query = dsl.MatchAll{}
	if len(filters) > 0 {
		where = dsl.And(filters...)
	}
	if err := c.where(&b, req.Indices, where); err != nil {
		return nil, err
	}
	if len(plan.Terms) > 0 {
		keys := make([]string, len(plan.Terms))
		for i := range plan.Terms {
			keys[i] = fmt.Sprintf("k%d", i)
		}
		b.write(" GROUP BY " + strings.Join(keys, ", "))
		b.write(" ORDER BY " + strings.Join(keys, ", "))
	}
	plan.Statement = b.statement()
	return plan, nil
}

func metricSQL(kind dsl.MetricKind, expr string) (string, error) {
	switch kind {
	case dsl.MetricValueCount:
		return "COUNT(" + expr + ")", nil
	case dsl.MetricCardinality:
		return "COUNT(DISTINCT " + expr + ")", nil
	case dsl.MetricSum:
		return "TOTAL(" + expr + ")", nil
	case dsl.MetricAvg:
		return "AVG(" + expr + ")", nil
	case dsl.MetricMin:
		return "MIN(" + expr + ")", nil
	case dsl.MetricMax:
		return "MAX(" + expr + ")", nil
	}
	return "", fmt.Errorf("unsupported metric %q", kind)
}

// where restricts to indices (glob patterns) and q.
func (c *SQLCompiler) where(b *builder, indices []string, q dsl.Query) error {
	pred, params, err := c.compilePredicate(q)
	if err != nil {
		return fmt.Errorf("compile filter: %w", err)
	}
	b.write(" WHERE ")
	if len(indices) > 0 {
		parts := make([]string, len(indices))
		idx := make([]any, len(indices))
		for i, name := range indices {
			parts[i] = "idx GLOB ?"
			idx[i] = name
		}
		b.write("("+strings.Join(parts, " OR ")+") AND ", idx...)
	}
	b.write("("+pred+")", params...)
	return nil
}

// stableOrderKey is appended to every ORDER BY so that pages never
// overlap.
func stableOrderKey() string {
	return "idx COLLATE BINARY ASC, seq ASC"
}

// compilePredicate compiles q to a WHERE fragment.
func (c *SQLCompiler) compilePredicate(q dsl.Query) (string, []any, error) {
	switch p := q.(type) {
	case nil, dsl.MatchAll:
		return "1 = 1", nil, nil
	case dsl.Term:
		expr, params := fieldExpr(p.Field)
		return expr + " = ?", append(params, param(p.Value)), nil
	case dsl.Terms:
		if len(p.Values) == 0 {
			return "1 = 0", nil, nil
		}
		expr, params := fieldExpr(p.Field)
		for _, v := range p.Values {
			params = append(params, param(v))
		}
		return fmt.Sprintf("%s IN (%s)", expr, placeholders(len(p.Values))), params, nil
	case dsl.Range:
		return compileRange(p)
	case dsl.Exists:
		expr, params := fieldExpr(p.Field)
		return expr + " IS NOT NULL", params, nil
	case dsl.Wildcard:
		expr, params := fieldExpr(p.Field)
		return expr + " GLOB ?", append(params, globPattern(p.Pattern)), nil
	case dsl.IDs:
		if len(p.Values) == 0 {
			return "1 = 0", nil, nil
		}
		params := make([]any, len(p.Values))
		for i, id := range p.Values {
			params[i] = id
		}
		return fmt.Sprintf("id IN (%s)", placeholders(len(p.Values))), params, nil
	case dsl.QueryString:
		return "instr(lower(source), lower(?)) > 0", []any{p.Query}, nil
	case dsl.Bool:
		return c.compileBool(p)
	}
	return "", nil, fmt.Errorf("unsupported query type: %T", q)
}

func compileRange(r dsl.Range) (string, []any, error) {
	expr, fieldParams := fieldExpr(r.Field)
	var parts []string
	var params []any
	for _, bound := range []struct {
		op    string
		value any
	}{{">", r.GT}, {">=", r.GTE}, {"<", r.LT}, {"<=", r.LTE}} {
		if bound.value == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s ?", expr, bound.op))
		params = append(params, fieldParams...)
		params = append(params, param(bound.value))
	}
	if len(parts) == 0 {
		return expr + " IS NOT NULL", fieldParams, nil
	}
	return strings.Join(parts, " AND "), params, nil
}

// compileBool treats an UNKNOWN (NULL) term as not matching, so MustNot of
// a comparison on a missing field holds.
func (c *SQLCompiler) compileBool(b dsl.Bool) (string, []any, error) {
	var parts []string
	var params []any
	add := func(format string, q dsl.Query) error {
		sql, p, err := c.compilePredicate(q)
		if err != nil {
			return err
		}
		parts = append(parts, fmt.Sprintf(format, sql))
		params = append(params, p...)
		return nil
	}
	for _, q := range append(append([]dsl.Query{}, b.Must...), b.Filter...) {
		if err := add("(%s)", q); err != nil {
			return "", nil, err
		}
	}
	for _, q := range b.MustNot {
		if err := add("NOT COALESCE((%s), 0)", q); err != nil {
			return "", nil, err
		}
	}

	if len(b.Should) > 0 {
		terms := make([]string, 0, len(b.Should))
		for _, q := range b.Should {
			sql, p, err := c.compilePredicate(q)
			if err != nil {
				return "", nil, err
			}
			terms = append(terms, fmt.Sprintf("COALESCE((%s), 0)", sql))
			params = append(params, p...)
		}
		parts = append(parts, fmt.Sprintf("(%s) >= ?", strings.Join(terms, " + ")))
		params = append(params, max(b.MinimumShouldMatch, 1))
	}

	if len(parts) == 0 {
		return "1 = 1", nil, nil
	}
	return strings.Join(parts, " AND "), params, nil
}

// fieldExpr returns the SQL expression reading field. Synthetic fields map
// to table columns, everything else to a JSON path into source.
func fieldExpr(field string) (string, []any) {
	switch field {
	case model.FieldID:
		return "id", nil
	case model.FieldIndex:
		return "idx", nil
	case model.FieldType:
		return "doc_type", nil
	}
	return "json_extract(source, ?)", []any{JSONPath(field)}
}

// JSONPath converts a dotted field name to a SQLite JSON path, quoting
// each label.
func JSONPath(field string) string {
	segs := strings.Split(field, ".")
	for i, s := range segs {
		segs[i] = `"` + s + `"`
	}
	return "$." + strings.Join(segs, ".")
}

// globPattern converts a wildcard pattern to GLOB syntax. Both use * and ?;
// only a literal [ needs escaping.
func globPattern(p string) string {
	return strings.ReplaceAll(p, "[", "[[]")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// param converts a literal to a bindable value. Times compare as the ISO
// text stored in source documents.
func param(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}
