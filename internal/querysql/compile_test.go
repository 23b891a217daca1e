package querysql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sql4go/internal/dsl"
)

func TestCompileSearch_SimpleTerm(t *testing.T) {
	compiler := NewSQLCompiler()

	req := dsl.NewRequest("products")
	req.PostFilter = dsl.Term{Field: "category", Value: "shoes"}

	stmt, err := compiler.CompileSearch(req, 20, 10)
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT idx, id, doc_type, source FROM documents WHERE (idx GLOB ?) AND (json_extract(source, ?) = ?)`+
			` ORDER BY idx COLLATE BINARY ASC, seq ASC LIMIT ? OFFSET ?`,
		stmt.SQL)
	assert.Equal(t, []any{"products", `$."category"`, "shoes", 10, 20}, stmt.Params)

	// Values are never interpolated.
	assert.NotContains(t, stmt.SQL, "shoes")
}

func TestCompileSearch_OrderByMandatory(t *testing.T) {
	compiler := NewSQLCompiler()

	testCases := []struct {
		name  string
		sorts []dsl.Sort
		want  string
	}{
		{"no sorts", nil, " ORDER BY idx COLLATE BINARY ASC, seq ASC "},
		{"doc order", []dsl.Sort{{Field: dsl.DocOrder}}, " ORDER BY idx COLLATE BINARY ASC, seq ASC "},
		{
			"field desc",
			[]dsl.Sort{{Field: "price", Desc: true}},
			" ORDER BY json_extract(source, ?) IS NULL ASC, json_extract(source, ?) DESC, idx COLLATE BINARY ASC, seq ASC ",
		},
		{"synthetic id", []dsl.Sort{{Field: "_id"}}, " ORDER BY id IS NULL ASC, id ASC, idx COLLATE BINARY ASC"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := dsl.NewRequest("t")
			req.Sorts = tc.sorts
			stmt, err := compiler.CompileSearch(req, 0, 5)
			require.NoError(t, err)
			assert.Contains(t, stmt.SQL, tc.want)
		})
	}
}

func TestCompileSearch_SortParamsPrecedeLimit(t *testing.T) {
	req := dsl.NewRequest()
	req.Query = dsl.Exists{Field: "vendor.id"}
	req.AddSort("price", false)

	stmt, err := NewSQLCompiler().CompileSearch(req, 0, 3)
	require.NoError(t, err)
	assert.NotContains(t, stmt.SQL, "idx GLOB")
	assert.Equal(t, []any{`$."vendor"."id"`, `$."price"`, `$."price"`, 3, 0}, stmt.Params)
}

func TestCompilePredicate(t *testing.T) {
	compiler := NewSQLCompiler()
	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	testCases := []struct {
		name   string
		query  dsl.Query
		sql    string
		params []any
	}{
		{"match all", dsl.MatchAll{}, "1 = 1", nil},
		{"nil", nil, "1 = 1", nil},
		{
			"terms",
			dsl.Terms{Field: "stock", Values: []any{int64(1), int64(2)}},
			"json_extract(source, ?) IN (?, ?)",
			[]any{`$."stock"`, int64(1), int64(2)},
		},
		{"empty terms", dsl.Terms{Field: "stock"}, "1 = 0", nil},
		{
			"range",
			dsl.Range{Field: "price", GTE: 1.5, LT: 10.0},
			"json_extract(source, ?) >= ? AND json_extract(source, ?) < ?",
			[]any{`$."price"`, 1.5, `$."price"`, 10.0},
		},
		{
			"time range",
			dsl.Range{Field: "created", GT: when},
			"json_extract(source, ?) > ?",
			[]any{`$."created"`, "2024-01-02T03:04:05Z"},
		},
		{"exists", dsl.Exists{Field: "_type"}, "doc_type IS NOT NULL", nil},
		{
			"wildcard",
			dsl.Wildcard{Field: "name", Pattern: "b[o]*t?"},
			"json_extract(source, ?) GLOB ?",
			[]any{`$."name"`, "b[[]o]*t?"},
		},
		{"ids", dsl.IDs{Values: []string{"1", "2"}}, "id IN (?, ?)", []any{"1", "2"}},
		{"query string", dsl.QueryString{Query: "Boot"}, "instr(lower(source), lower(?)) > 0", []any{"Boot"}},
		{
			"must not",
			dsl.Not(dsl.Term{Field: "_id", Value: "7"}),
			"NOT COALESCE((id = ?), 0)",
			[]any{"7"},
		},
		{
			"should",
			dsl.Or(dsl.Term{Field: "_id", Value: "1"}, dsl.Term{Field: "_id", Value: "2"}),
			"(COALESCE((id = ?), 0) + COALESCE((id = ?), 0)) >= ?",
			[]any{"1", "2", 1},
		},
		{
			"must and filter",
			dsl.Bool{
				Must:   []dsl.Query{dsl.Term{Field: "_index", Value: "a"}},
				Filter: []dsl.Query{dsl.Exists{Field: "_id"}},
			},
			"(idx = ?) AND (id IS NOT NULL)",
			[]any{"a"},
		},
		{"empty bool", dsl.Bool{}, "1 = 1", nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sql, params, err := compiler.compilePredicate(tc.query)
			require.NoError(t, err)
			assert.Equal(t, tc.sql, sql)
			assert.Equal(t, tc.params, params)
		})
	}
}

func TestCompileCount(t *testing.T) {
	req := dsl.NewRequest("a", "b*")
	req.Query = dsl.Term{Field: "_id", Value: "1"}
	req.PostFilter = dsl.Exists{Field: "x"}

	stmt, err := NewSQLCompiler().CompileCount(req)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT COUNT(*) FROM documents WHERE (idx GLOB ? OR idx GLOB ?) AND ((id = ?) AND (json_extract(source, ?) IS NOT NULL))",
		stmt.SQL)
	assert.Equal(t, []any{"a", "b*", "1", `$."x"`}, stmt.Params)
}

func TestCompileAggregation_Implicit(t *testing.T) {
	req := dsl.NewRequest("products")
	req.Query = dsl.Term{Field: "_id", Value: "1"}
	req.Aggregation = dsl.FilterAgg{Name: "filter", Filter: req.Query, Sub: []dsl.Aggregation{
		dsl.MetricAgg{Name: "sum(price)", Kind: dsl.MetricSum, Field: "price"},
	}}

	plan, err := NewSQLCompiler().CompileAggregation(req)
	require.NoError(t, err)
	assert.Empty(t, plan.Terms)
	assert.Len(t, plan.Levels, 1)
	assert.Equal(t,
		"SELECT COUNT(*) AS doc_count, TOTAL(json_extract(source, ?)) AS m0 FROM documents"+
			" WHERE (idx GLOB ?) AND ((id = ?) AND (id = ?))",
		plan.SQL)
	assert.Equal(t, []any{`$."price"`, "products", "1", "1"}, plan.Params)
}

func TestCompileAggregation_NestedTerms(t *testing.T) {
	req := dsl.NewRequest("products")
	req.Aggregation = dsl.TermsAgg{Name: "category", Field: "category", Size: 10, Sub: []dsl.Aggregation{
		dsl.TermsAgg{Name: "stock", Field: "stock", Size: 10, Sub: []dsl.Aggregation{
			dsl.MetricAgg{Name: "count_distinct(name)", Kind: dsl.MetricCardinality, Field: "name"},
			dsl.MetricAgg{Name: "avg(price)", Kind: dsl.MetricAvg, Field: "price"},
		}},
	}}

	plan, err := NewSQLCompiler().CompileAggregation(req)
	require.NoError(t, err)
	require.Len(t, plan.Terms, 2)
	assert.Len(t, plan.Metrics, 2)
	assert.Equal(t,
		"SELECT json_extract(source, ?) AS k0, json_extract(source, ?) AS k1, COUNT(*) AS doc_count,"+
			" COUNT(DISTINCT json_extract(source, ?)) AS m0, AVG(json_extract(source, ?)) AS m1"+
			" FROM documents WHERE (idx GLOB ?) AND ((json_extract(source, ?) IS NOT NULL) AND (json_extract(source, ?) IS NOT NULL))"+
			" GROUP BY k0, k1 ORDER BY k0, k1",
		plan.SQL)
	assert.Equal(t, []any{
		`$."category"`, `$."stock"`, `$."name"`, `$."price"`,
		"products", `$."category"`, `$."stock"`,
	}, plan.Params)
}

func TestCompileAggregation_Errors(t *testing.T) {
	compiler := NewSQLCompiler()

	_, err := compiler.CompileAggregation(dsl.NewRequest("t"))
	assert.Error(t, err)

	req := dsl.NewRequest("t")
	req.Aggregation = dsl.TermsAgg{Name: "a", Field: "a", Sub: []dsl.Aggregation{
		dsl.TermsAgg{Name: "b", Field: "b"},
		dsl.TermsAgg{Name: "c", Field: "c"},
	}}
	_, err = compiler.CompileAggregation(req)
	assert.Error(t, err)

	req.Aggregation = dsl.FilterAgg{Name: "filter", Sub: []dsl.Aggregation{dsl.TermsAgg{Name: "b", Field: "b"}}}
	_, err = compiler.CompileAggregation(req)
	assert.Error(t, err)
}

func TestJSONPath(t *testing.T) {
	assert.Equal(t, `$."name"`, JSONPath("name"))
	assert.Equal(t, `$."vendor"."id"`, JSONPath("vendor.id"))
}
