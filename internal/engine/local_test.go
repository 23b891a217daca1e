package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sql4go/internal/backend/local"
	"github.com/roach88/sql4go/internal/config"
	"github.com/roach88/sql4go/internal/store"
)

func localBackend(t *testing.T) (*local.Backend, *local.Catalog) {
	t.Helper()
	s, err := store.Open(store.InMemory)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.PutBatch(context.Background(), []store.Document{
		{Index: "products", ID: "1", Source: map[string]any{"name": "Boot", "category": "shoes", "price": 10.5}},
		{Index: "products", ID: "2", Source: map[string]any{"name": "Sandal", "category": "shoes", "price": 20.5}},
		{Index: "products", ID: "3", Source: map[string]any{"name": "Cap", "category": "hats", "price": 5.25}},
		{Index: "products", ID: "4", Source: map[string]any{"name": "Beanie", "category": "hats", "price": 7.5}},
		{Index: "products", ID: "5", Source: map[string]any{"name": "Scarf", "category": "winter", "price": 12.25}},
	}))
	return local.New(s), local.NewCatalog(s)
}

func localState(t *testing.T, fetchSize int) (*QueryState, *local.Backend) {
	t.Helper()
	b, catalog := localBackend(t)
	props := config.Default()
	props.FetchSize = fetchSize
	return New(b, props, WithCatalog(catalog)), b
}

func TestLocal_ScrollAllPages(t *testing.T) {
	ctx := context.Background()
	s, b := localState(t, 2)
	require.NoError(t, s.BuildRequest(ctx, "SELECT name FROM products", nil))

	rs, err := s.Execute(ctx)
	require.NoError(t, err)
	var names []any
	for rs != nil {
		for _, row := range rs.VisibleRows() {
			names = append(names, row[0])
		}
		rs, err = s.MoreResults(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, []any{"Boot", "Sandal", "Cap", "Beanie", "Scarf"}, names)
	assert.Zero(t, b.OpenScrolls())
	require.NoError(t, s.Close(ctx))
}

func TestLocal_CloseReleasesOpenScroll(t *testing.T) {
	ctx := context.Background()
	s, b := localState(t, 2)
	require.NoError(t, s.BuildRequest(ctx, "SELECT name FROM products", nil))

	_, err := s.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, b.OpenScrolls())

	require.NoError(t, s.Close(ctx))
	assert.Zero(t, b.OpenScrolls())
}

func TestLocal_FilterAndCompute(t *testing.T) {
	ctx := context.Background()
	s, _ := localState(t, 2)
	require.NoError(t, s.BuildRequest(ctx,
		"SELECT name, price * 2 AS dbl FROM products WHERE category = 'hats'", nil))

	rs, err := s.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Cap", 10.5}, {"Beanie", 15.0}}, rs.VisibleRows())
	assert.True(t, rs.Exhausted())
}

func TestLocal_GroupBy(t *testing.T) {
	ctx := context.Background()
	s, _ := localState(t, 10)
	require.NoError(t, s.BuildRequest(ctx,
		"SELECT category, SUM(price) AS total FROM products GROUP BY category ORDER BY total DESC", nil))

	rs, err := s.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{"shoes", 31.0},
		{"hats", 12.75},
		{"winter", 12.25},
	}, rs.VisibleRows())
}

func TestLocal_CountStar(t *testing.T) {
	ctx := context.Background()
	s, _ := localState(t, 2)
	require.NoError(t, s.BuildRequest(ctx, "SELECT COUNT(*) FROM products WHERE price > 10", nil))

	rs, err := s.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(3)}}, rs.VisibleRows())
}

func TestLocal_OrderByLimitBeyondMatches(t *testing.T) {
	ctx := context.Background()
	s, b := localState(t, 10)
	require.NoError(t, s.BuildRequest(ctx,
		"SELECT name, price FROM products WHERE price > 10 ORDER BY name ASC LIMIT 5", nil))
	assert.False(t, s.Compiled().Request.Scrolling())

	rs, err := s.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Boot", 10.5}, {"Sandal", 20.5}, {"Scarf", 12.25}}, rs.VisibleRows())
	assert.Equal(t, int64(3), rs.Total())
	assert.True(t, rs.Exhausted())
	assert.Zero(t, b.OpenScrolls())

	next, err := s.MoreResults(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
	require.NoError(t, s.Close(ctx))
}

func TestLocal_OrderByDescPagesWithoutScroll(t *testing.T) {
	ctx := context.Background()
	s, b := localState(t, 2)
	require.NoError(t, s.BuildRequest(ctx,
		"SELECT name FROM products ORDER BY price DESC LIMIT 2", nil))

	rs, err := s.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Sandal"}, {"Scarf"}}, rs.VisibleRows())
	assert.Zero(t, b.OpenScrolls())
}

func TestLocal_HavingOnComputedColumn(t *testing.T) {
	ctx := context.Background()
	s, _ := localState(t, 10)
	require.NoError(t, s.BuildRequest(ctx,
		"SELECT category, SUM(price) * 2 AS dbl FROM products GROUP BY category HAVING dbl > 25", nil))

	rs, err := s.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"hats", 25.5}, {"shoes", 62.0}}, rs.VisibleRows())
	assert.Equal(t, int64(3), rs.Total())
}

func TestLocal_GroupByLimitKeepsTotal(t *testing.T) {
	ctx := context.Background()
	s, _ := localState(t, 10)
	require.NoError(t, s.BuildRequest(ctx,
		"SELECT category, COUNT(*) FROM products GROUP BY category LIMIT 1", nil))

	rs, err := s.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"hats", int64(2)}}, rs.VisibleRows())
	assert.Equal(t, int64(3), rs.Total())
}
