package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectItemTexts(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		hasAlias []bool
		want     []string
	}{
		{
			name:     "aliases stripped",
			sql:      "SELECT a, COUNT(*) AS n, SUM(b) c FROM t",
			hasAlias: []bool{false, true, true},
			want:     []string{"a", "COUNT(*)", "SUM(b)"},
		},
		{
			name:     "distinct and inner spacing kept",
			sql:      "select distinct Max( x ) from t",
			hasAlias: []bool{false},
			want:     []string{"Max( x )"},
		},
		{
			name:     "keywords inside string literals",
			sql:      "SELECT Sum(x) * 2, y FROM t WHERE z = 'from, select'",
			hasAlias: []bool{false, false},
			want:     []string{"Sum(x) * 2", "y"},
		},
		{
			name:     "nested commas",
			sql:      "SELECT HIGHLIGHT(body),\n\tCount(DISTINCT k) FROM t",
			hasAlias: []bool{false, false},
			want:     []string{"HIGHLIGHT(body)", "Count(DISTINCT k)"},
		},
		{
			name:     "quoted identifiers",
			sql:      "SELECT MIN(`Price`) FROM t",
			hasAlias: []bool{false},
			want:     []string{"MIN(`Price`)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := selectItemTexts(tt.sql, tt.hasAlias)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectItemTexts_Misaligned(t *testing.T) {
	_, ok := selectItemTexts("SELECT a, b FROM t", []bool{false})
	assert.False(t, ok)
}

func TestTokenize_Spans(t *testing.T) {
	sql := "SELECT  x ,'it''s' FROM t"
	tokens, ok := tokenize(sql)
	require.True(t, ok)

	var texts []string
	for _, tok := range tokens {
		texts = append(texts, sql[tok.start:tok.end])
	}
	assert.Equal(t, []string{"SELECT", "x", ",", "'it''s'", "FROM", "t"}, texts)
}

func TestCompile_LabelsKeepUserSpelling(t *testing.T) {
	c := compile(t, "SELECT Sum(Price) , name FROM products GROUP BY name")

	assert.Equal(t, []string{"Sum(Price)", "name"}, c.Heading.Labels())
	sum := c.Heading.Column(0)
	assert.Equal(t, "price", sum.Field, "field follows the metadata spelling")
	assert.Equal(t, "sum(price)", sum.AggregateKey())
	assert.Equal(t, "Name", c.Heading.Column(1).Field)

	c = compile(t, "SELECT COUNT(*) AS Total FROM products WHERE category = 'SELECT x, y FROM z'")
	assert.Equal(t, []string{"Total"}, c.Heading.Labels())
}
