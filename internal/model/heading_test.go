package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeading_AddAssignsIndexAndOrder(t *testing.T) {
	h := NewHeading()

	a, err := h.Add(&Column{Label: "a", Field: "a", Visible: true})
	require.NoError(t, err)
	b, err := h.Add(&Column{Label: "B", Field: "b", Visible: true})
	require.NoError(t, err)

	assert.Equal(t, 0, a.Index)
	assert.Equal(t, 1, b.Index)
	assert.Equal(t, []string{"a", "B"}, h.Labels())
}

func TestHeading_DuplicateLabelRejected(t *testing.T) {
	h := NewHeading()
	_, err := h.Add(&Column{Label: "Price", Field: "price", Visible: true})
	require.NoError(t, err)

	_, err = h.Add(&Column{Label: "PRICE", Field: "other", Visible: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate column label")
}

func TestHeading_LookupIsCaseInsensitive(t *testing.T) {
	h := NewHeading()
	_, err := h.Add(&Column{Label: "Straße", Field: "street", Visible: true})
	require.NoError(t, err)

	c, ok := h.Lookup("STRASSE")
	require.True(t, ok)
	assert.Equal(t, "street", c.Field)

	_, ok = h.Lookup("missing")
	assert.False(t, ok)
}

func TestHeading_FrozenRejectsChanges(t *testing.T) {
	h := NewHeading()
	_, err := h.Add(&Column{Label: "a", Field: "a", Visible: true})
	require.NoError(t, err)
	h.Freeze()

	_, err = h.Add(&Column{Label: "b", Field: "b"})
	assert.Error(t, err)
	assert.Error(t, h.Relabel(0, "x"))
	assert.True(t, h.Frozen())
}

func TestHeading_Relabel(t *testing.T) {
	h := NewHeading()
	_, _ = h.Add(&Column{Label: "a", Field: "a", Visible: true})
	_, _ = h.Add(&Column{Label: "b", Field: "b", Visible: true})

	require.NoError(t, h.Relabel(0, "Alpha"))
	c, ok := h.Lookup("alpha")
	require.True(t, ok)
	assert.Equal(t, 0, c.Index)
	_, ok = h.Lookup("a")
	assert.False(t, ok)

	assert.Error(t, h.Relabel(1, "ALPHA"))
}

func TestHeading_AggregateOnly(t *testing.T) {
	tests := []struct {
		name    string
		columns []*Column
		want    bool
	}{
		{
			name:    "count only",
			columns: []*Column{{Label: "count(*)", Field: "*", Op: OpCount, Visible: true}},
			want:    true,
		},
		{
			name: "mixed",
			columns: []*Column{
				{Label: "a", Field: "a", Visible: true},
				{Label: "sum(b)", Field: "b", Op: OpSum, Visible: true},
			},
			want: false,
		},
		{
			name: "hidden plain column ignored",
			columns: []*Column{
				{Label: "max(b)", Field: "b", Op: OpMax, Visible: true},
				{Label: "a", Field: "a"},
			},
			want: true,
		},
		{
			name: "computation over aggregates",
			columns: []*Column{
				{Label: "sum(b)", Field: "b", Op: OpSum},
				{Label: "count(*)", Field: "*", Op: OpCount},
				{Label: "sum(b)/count(*)", Op: OpComputed, Visible: true, Computation: &Computation{Expr: "c0 / c1", Args: []int{0, 1}}},
			},
			want: true,
		},
		{
			name: "computation over fields",
			columns: []*Column{
				{Label: "b", Field: "b"},
				{Label: "b*2", Op: OpComputed, Visible: true, Computation: &Computation{Expr: "c0 * 2.0", Args: []int{0}}},
			},
			want: false,
		},
		{name: "empty", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHeading()
			for _, c := range tt.columns {
				_, err := h.Add(c)
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, h.AggregateOnly())
		})
	}
}

func TestHeading_Lookups(t *testing.T) {
	h := NewHeading()
	_, _ = h.Add(&Column{Label: "cat", Field: "category", Visible: true})
	_, _ = h.Add(&Column{Label: "total", Field: "price", Op: OpSum, Visible: true})
	_, _ = h.Add(&Column{Label: "hl", Field: "title", Op: OpHighlight, Visible: true})

	c, ok := h.LookupField("Category")
	require.True(t, ok)
	assert.Equal(t, "cat", c.Label)

	c, ok = h.LookupAggregate(OpSum, "price")
	require.True(t, ok)
	assert.Equal(t, "sum(price)", c.AggregateKey())

	_, ok = h.LookupAggregate(OpAvg, "price")
	assert.False(t, ok)

	assert.Equal(t, []string{"category"}, h.Fields())
	assert.Len(t, h.Aggregates(), 1)
	assert.Len(t, h.Highlights(), 1)
	assert.True(t, h.HasAggregates())
	assert.True(t, h.Requests("category"))
	assert.False(t, h.Requests("price"))
}

func TestParseSQLType(t *testing.T) {
	typ, err := ParseSQLType("keyword")
	require.NoError(t, err)
	assert.Equal(t, TypeVarchar, typ)

	typ, err = ParseSQLType(" long ")
	require.NoError(t, err)
	assert.Equal(t, TypeBigInt, typ)
	assert.True(t, typ.Numeric())

	_, err = ParseSQLType("geo_point")
	assert.Error(t, err)
}

func TestAggregateFunc(t *testing.T) {
	op, ok := AggregateFunc("COUNT", true)
	assert.True(t, ok)
	assert.Equal(t, OpCountDistinct, op)

	op, ok = AggregateFunc("avg", false)
	assert.True(t, ok)
	assert.Equal(t, OpAvg, op)

	_, ok = AggregateFunc("highlight", false)
	assert.False(t, ok)
}
