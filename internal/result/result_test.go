package result

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sql4go/internal/backend"
	"github.com/roach88/sql4go/internal/dsl"
	"github.com/roach88/sql4go/internal/model"
)

func heading(t *testing.T, cols ...*model.Column) *model.Heading {
	t.Helper()
	h := model.NewHeading()
	for _, c := range cols {
		_, err := h.Add(c)
		require.NoError(t, err)
	}
	h.Freeze()
	return h
}

func plain(label string, typ model.SQLType) *model.Column {
	return &model.Column{Label: label, Field: label, Type: typ, Visible: true}
}

func ptr(f float64) *float64 { return &f }

func TestResultSet_AddAndVisible(t *testing.T) {
	hidden := plain("secret", model.TypeInteger)
	hidden.Visible = false
	h := heading(t, plain("a", model.TypeVarchar), hidden, plain("b", model.TypeInteger))

	rs := New(h, 2)
	require.NoError(t, rs.Add([]any{"x", int64(1), int64(2)}))
	assert.Error(t, rs.Add([]any{"short"}))

	assert.Equal(t, 1, rs.Len())
	assert.Equal(t, []any{"x", int64(2)}, rs.Visible(0))
	assert.Equal(t, [][]any{{"x", int64(2)}}, rs.VisibleRows())
	assert.Equal(t, []any{"x", int64(1), int64(2)}, rs.Row(0))
}

func TestResultSet_Exhausted(t *testing.T) {
	rs := New(heading(t, plain("a", model.TypeInteger)), 0)
	rs.SetTotal(3)
	require.NoError(t, rs.Add([]any{int64(1)}))
	require.NoError(t, rs.Add([]any{int64(2)}))
	assert.False(t, rs.Exhausted())

	rs.SetOffset(1)
	assert.True(t, rs.Exhausted())
	assert.Equal(t, int64(1), rs.Offset())
}

func TestResultSet_Truncate(t *testing.T) {
	rs := New(heading(t, plain("a", model.TypeInteger)), 0)
	for i := range 3 {
		require.NoError(t, rs.Add([]any{int64(i)}))
	}
	rs.Truncate(5)
	assert.Equal(t, 3, rs.Len())
	rs.Truncate(2)
	assert.Equal(t, [][]any{{int64(0)}, {int64(1)}}, rs.Rows())
}

func TestResultSet_Close(t *testing.T) {
	rs := New(heading(t, plain("a", model.TypeInteger)), 0)
	rs.Close()
	rs.Close()
	assert.True(t, rs.Closed())
	assert.ErrorIs(t, rs.Add([]any{int64(1)}), ErrClosed)
	assert.ErrorIs(t, rs.Sort([]model.OrderBy{{Column: 0}}), ErrClosed)
	assert.ErrorIs(t, rs.Filter(nil), ErrClosed)
}

func TestResultSet_Filter(t *testing.T) {
	rs := New(heading(t, plain("n", model.TypeInteger)), 0)
	for _, v := range []any{int64(1), nil, int64(5), int64(3)} {
		require.NoError(t, rs.Add([]any{v}))
	}
	require.NoError(t, rs.Filter(model.Simple{
		Left:  model.ColumnOperand(0),
		Op:    model.OpGte,
		Right: model.LiteralOperand(int64(3)),
	}))
	assert.Equal(t, [][]any{{int64(5)}, {int64(3)}}, rs.Rows())
}

func TestResultSet_Sort(t *testing.T) {
	h := heading(t, plain("k", model.TypeVarchar), plain("n", model.TypeInteger))
	rs := New(h, 0)
	for _, row := range [][]any{
		{"b", int64(2)},
		{"a", int64(2)},
		{"c", nil},
		{"d", int64(1)},
	} {
		require.NoError(t, rs.Add(row))
	}

	require.NoError(t, rs.Sort([]model.OrderBy{{Field: "n", Column: 1}}))
	assert.Equal(t, []any{"c", "d", "b", "a"}, column(rs, 0))

	require.NoError(t, rs.Sort([]model.OrderBy{{Field: "n", Desc: true, Column: 1}, {Field: "k", Column: 0}}))
	assert.Equal(t, []any{"a", "b", "d", "c"}, column(rs, 0))

	assert.Error(t, rs.Sort([]model.OrderBy{{Field: "x", Column: 7}}))
}

func column(rs *ResultSet, i int) []any {
	out := make([]any, rs.Len())
	for r := range out {
		out[r] = rs.Row(r)[i]
	}
	return out
}

func TestConvert(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	cases := []struct {
		name string
		in   any
		typ  model.SQLType
		want any
	}{
		{"nil", nil, model.TypeInteger, nil},
		{"float to int", 3.0, model.TypeInteger, int64(3)},
		{"fraction stays float", 3.5, model.TypeBigInt, 3.5},
		{"json number", json.Number("42"), model.TypeBigInt, int64(42)},
		{"int to double", int64(2), model.TypeDouble, 2.0},
		{"bool text", "true", model.TypeBoolean, true},
		{"bool number", int64(0), model.TypeBoolean, false},
		{"varchar number", int64(7), model.TypeVarchar, "7"},
		{"varchar list", []any{"a"}, model.TypeVarchar, []any{"a"}},
		{"rfc3339", "2024-03-01T12:30:00Z", model.TypeTimestamp, ts},
		{"local datetime", "2024-03-01 12:30:00", model.TypeTimestamp, ts},
		{"epoch millis", ts.UnixMilli(), model.TypeTimestamp, ts},
		{"bad date", "soon", model.TypeDate, "soon"},
		{"other untouched", map[string]any{"lat": 1.0}, model.TypeOther, map[string]any{"lat": 1.0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Convert(tc.in, tc.typ))
		})
	}
}

func TestHitMaterializer_FlatFields(t *testing.T) {
	h := heading(t,
		plain("_id", model.TypeVarchar),
		plain("_score", model.TypeDouble),
		plain("name", model.TypeVarchar),
		plain("vendor.id", model.TypeBigInt),
		plain("a.b", model.TypeVarchar),
		plain("missing", model.TypeVarchar),
		&model.Column{Label: "hl", Field: "name", Op: model.OpHighlight, Type: model.TypeVarchar, Visible: true},
	)
	hits := []backend.Hit{{
		ID:    "7",
		Score: ptr(1.25),
		Source: map[string]any{
			"name":   "boot",
			"vendor": map[string]any{"id": int64(9)},
			"a.b":    "literal",
		},
		Highlight: map[string][]string{"name": {"<em>boot</em>", "the <em>boot</em>"}},
	}}

	rs, err := NewHitMaterializer(h, true, 10).Materialize(hits)
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())
	assert.Equal(t, []any{
		"7", 1.25, "boot", int64(9), "literal", nil,
		"<em>boot</em> ... the <em>boot</em>",
	}, rs.Row(0))
}

func TestHitMaterializer_NestedArrays(t *testing.T) {
	h := heading(t,
		plain("name", model.TypeVarchar),
		plain("variants.sku", model.TypeVarchar),
		plain("variants.size", model.TypeInteger),
		plain("stores.city", model.TypeVarchar),
	)
	source := map[string]any{
		"name": "boot",
		"variants": []any{
			map[string]any{"sku": "b-1", "size": int64(40)},
			map[string]any{"sku": "b-2", "size": int64(41)},
		},
		"stores": []any{
			map[string]any{"city": "Oslo"},
			map[string]any{"city": "Rome"},
		},
	}
	hits := []backend.Hit{{ID: "1", Source: source}}

	t.Run("lateral", func(t *testing.T) {
		rs, err := NewHitMaterializer(h, true, 0).Materialize(hits)
		require.NoError(t, err)
		assert.Equal(t, [][]any{
			{"boot", "b-1", int64(40), "Oslo"},
			{"boot", "b-1", int64(40), "Rome"},
			{"boot", "b-2", int64(41), "Oslo"},
			{"boot", "b-2", int64(41), "Rome"},
		}, rs.Rows())
	})

	t.Run("not lateral", func(t *testing.T) {
		rs, err := NewHitMaterializer(h, false, 0).Materialize(hits)
		require.NoError(t, err)
		require.Equal(t, 1, rs.Len())
		assert.Equal(t, []any{"b-1", "b-2"}, rs.Row(0)[1])
		assert.Equal(t, []any{"Oslo", "Rome"}, rs.Row(0)[3])
	})

	t.Run("empty array keeps the row", func(t *testing.T) {
		empty := []backend.Hit{{ID: "2", Source: map[string]any{"name": "hat", "variants": []any{}}}}
		rs, err := NewHitMaterializer(h, true, 0).Materialize(empty)
		require.NoError(t, err)
		assert.Equal(t, [][]any{{"hat", nil, nil, nil}}, rs.Rows())
	})
}

func TestAggregationMaterializer_Implicit(t *testing.T) {
	h := heading(t,
		&model.Column{Label: "count(*)", Field: "*", Op: model.OpCount, Type: model.TypeBigInt, Visible: true},
		&model.Column{Label: "max(price)", Field: "price", Op: model.OpMax, Type: model.TypeDouble, Visible: true},
		&model.Column{Label: "sum(stock)", Field: "stock", Op: model.OpSum, Type: model.TypeDouble, Visible: true},
	)
	root := dsl.FilterAgg{Name: "filter", Filter: dsl.MatchAll{}}
	aggs := backend.Aggregations{"filter": {
		DocCount: 7,
		Sub: backend.Aggregations{
			"max(price)": {Value: ptr(20)},
			"sum(stock)": {},
		},
	}}

	rs, err := NewAggregationMaterializer(h, 1).Materialize(root, aggs)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(7), 20.0, nil}}, rs.Rows())
}

func TestAggregationMaterializer_NestedTerms(t *testing.T) {
	h := heading(t,
		plain("category", model.TypeVarchar),
		plain("stock", model.TypeInteger),
		&model.Column{Label: "count(*)", Field: "*", Op: model.OpCount, Type: model.TypeBigInt, Visible: true},
		&model.Column{Label: "count_distinct(name)", Field: "name", Op: model.OpCountDistinct, Type: model.TypeBigInt, Visible: true},
	)
	root := dsl.TermsAgg{Name: "category", Field: "category", Sub: []dsl.Aggregation{
		dsl.TermsAgg{Name: "stock", Field: "stock", Sub: []dsl.Aggregation{
			dsl.MetricAgg{Name: "count_distinct(name)", Kind: dsl.MetricCardinality, Field: "name"},
		}},
	}}
	aggs := backend.Aggregations{"category": {Buckets: []*backend.Bucket{
		{Key: "shoes", DocCount: 5, Aggregations: backend.Aggregations{"stock": {Buckets: []*backend.Bucket{
			{Key: int64(1), DocCount: 3, Aggregations: backend.Aggregations{"count_distinct(name)": {Value: ptr(2)}}},
			{Key: int64(4), DocCount: 2, Aggregations: backend.Aggregations{"count_distinct(name)": {Value: ptr(1)}}},
		}}}},
		{Key: "hats", DocCount: 1, Aggregations: backend.Aggregations{"stock": {Buckets: []*backend.Bucket{
			{Key: 2.0, DocCount: 1, Aggregations: backend.Aggregations{"count_distinct(name)": {Value: ptr(1)}}},
		}}}},
	}}}

	rs, err := NewAggregationMaterializer(h, 0).Materialize(root, aggs)
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{"shoes", int64(1), int64(3), int64(2)},
		{"shoes", int64(4), int64(2), int64(1)},
		{"hats", int64(2), int64(1), int64(1)},
	}, rs.Rows())
}

func TestAggregationMaterializer_Missing(t *testing.T) {
	h := heading(t, plain("category", model.TypeVarchar))
	_, err := NewAggregationMaterializer(h, 0).Materialize(dsl.TermsAgg{Name: "category", Field: "category"}, nil)
	assert.Error(t, err)
}

func TestComputer(t *testing.T) {
	sum := &model.Column{Label: "sum(price)", Field: "price", Op: model.OpSum, Type: model.TypeDouble}
	stock := plain("stock", model.TypeInteger)
	h := heading(t,
		sum,
		stock,
		&model.Column{
			Label: "ratio", Op: model.OpComputed, Type: model.TypeDouble, Visible: true,
			Computation: &model.Computation{Expr: "(c0 - 1.0) / c1", Args: []int{0, 1}},
		},
	)
	comp, err := NewComputer(h)
	require.NoError(t, err)
	assert.False(t, comp.Empty())

	rs := New(h, 0)
	require.NoError(t, rs.Add([]any{9.0, int64(4), nil}))
	require.NoError(t, rs.Add([]any{nil, int64(4), nil}))
	require.NoError(t, rs.Add([]any{5.0, "n/a", nil}))
	require.NoError(t, comp.Apply(rs))

	assert.Equal(t, []any{2.0, nil, nil}, column(rs, 2))
}

func TestComputer_BadExpression(t *testing.T) {
	h := heading(t, &model.Column{
		Label: "x", Op: model.OpComputed, Visible: true,
		Computation: &model.Computation{Expr: "c0 +", Args: []int{0}},
	})
	_, err := NewComputer(h)
	assert.Error(t, err)
}
