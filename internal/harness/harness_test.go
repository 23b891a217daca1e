package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func productScenario(steps ...Step) *Scenario {
	return &Scenario{
		Name:        "products",
		Description: "inline product scenario",
		Documents: map[string][]map[string]any{
			"products": {
				{"_id": "p1", "name": "Boot", "category": "shoes", "price": 10.5},
				{"_id": "p2", "name": "Sandal", "category": "shoes", "price": 20.5},
				{"_id": "p3", "name": "Cap", "category": "hats", "price": 5.25},
			},
		},
		Steps: steps,
	}
}

func TestRun_Scenarios(t *testing.T) {
	files, err := FindScenarios("testdata/scenarios", "")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		s, err := LoadScenario(file)
		require.NoError(t, err)
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Len(t, result.Steps, len(s.Steps))
		})
	}
}

func TestRun_RecordsRowsAndTrace(t *testing.T) {
	result, err := Run(productScenario(Step{SQL: "SELECT name, price FROM products WHERE category = 'shoes'"}))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Steps, 1)
	got := result.Steps[0]
	assert.Equal(t, []string{"name", "price"}, got.Columns)
	assert.Equal(t, [][]any{{"Boot", 10.5}, {"Sandal", 20.5}}, got.Rows)
	assert.Equal(t, 1, got.Pages)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, EventRequest, result.Trace[0].Type)
	assert.Equal(t, []string{"products"}, result.Trace[0].Indices)
	assert.Equal(t, "test-query-default", result.Trace[0].QueryID)
	assert.Equal(t, EventPage, result.Trace[1].Type)
	assert.Equal(t, int64(2), result.Trace[1].Total)
}

func TestRun_MaxRows(t *testing.T) {
	result, err := Run(productScenario(Step{
		SQL:     "SELECT name FROM products",
		MaxRows: 2,
		Expect:  Expect{Rows: [][]any{{"Boot"}, {"Sandal"}}},
	}))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ErrorStep(t *testing.T) {
	result, err := Run(productScenario(
		Step{SQL: "SELECT name FROM products HAVING price > 1", Expect: Expect{Error: "E240"}},
		Step{SQL: "SELECT name FROM products"},
	))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 3)
	assert.Equal(t, EventError, result.Trace[0].Type)
	assert.Equal(t, "E240", result.Trace[0].Code)
	assert.Equal(t, 1, result.Trace[1].Step)
}

func TestRun_FailedExpectations(t *testing.T) {
	result, err := Run(productScenario(
		Step{SQL: "SELECT name FROM products", Expect: Expect{Rows: [][]any{{"Boot"}}}},
		Step{SQL: "SELECT name FROM products WHERE price > 100", Expect: Expect{Pages: 1}},
	))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "step 0 (SELECT name FROM products)")
	assert.Contains(t, result.Errors[0], "rows")
	assert.Contains(t, result.Errors[1], "NO_RESULT")
}

func TestRun_DeclaredColumns(t *testing.T) {
	s := productScenario(Step{
		SQL:    "SELECT name FROM products WHERE price > 10",
		Expect: Expect{Rows: [][]any{{"Boot"}, {"Sandal"}}},
	})
	s.Columns = map[string]map[string]string{"products": {"price": "double"}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", ErrorCode(assert.AnError))
}
