package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queryResponse struct {
	Status  string      `json:"status"`
	Data    QueryResult `json:"data"`
	QueryID string      `json:"query_id"`
}

func TestQuery_Text(t *testing.T) {
	db := loadedDB(t)
	out, _, err := execute(t, "--db", db, "query", "SELECT name, price FROM products WHERE category = 'hats'")
	require.NoError(t, err)

	assert.Contains(t, out, "Cap")
	assert.Contains(t, out, "5.25")
	assert.Contains(t, out, "Beanie")
	assert.NotContains(t, out, "Boot")
	assert.Contains(t, out, "2 row(s)")
}

func TestQuery_JSON(t *testing.T) {
	db := loadedDB(t)
	out, _, err := execute(t, "--db", db, "--format", "json", "query",
		"SELECT category, SUM(price) AS total FROM products GROUP BY category ORDER BY total DESC")
	require.NoError(t, err)

	var resp queryResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.QueryID)
	assert.Equal(t, []string{"category", "total"}, resp.Data.Columns)
	assert.Equal(t, [][]any{{"shoes", 31.0}, {"hats", 12.75}, {"winter", 12.25}}, resp.Data.Rows)
	assert.Equal(t, int64(3), resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Pages)
}

func TestQuery_MaxRows(t *testing.T) {
	db := loadedDB(t)
	out, _, err := execute(t, "--db", db, "--format", "json", "query", "--max-rows", "2", "SELECT name FROM products")
	require.NoError(t, err)

	var resp queryResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, [][]any{{"Boot"}, {"Sandal"}}, resp.Data.Rows)
}

func TestQuery_Scrolls(t *testing.T) {
	db := loadedDB(t)
	props := filepath.Join(t.TempDir(), "props.yaml")
	writeFile(t, props, "fetch_size: 2\n")

	out, _, err := execute(t, "--db", db, "--config", props, "--format", "json", "query", "SELECT name FROM products")
	require.NoError(t, err)

	var resp queryResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Len(t, resp.Data.Rows, 5)
	assert.Equal(t, 3, resp.Data.Pages)
}

func TestQuery_NoResult(t *testing.T) {
	db := loadedDB(t)
	out, _, err := execute(t, "--db", db, "query", "SELECT name FROM products WHERE price > 100")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [NO_RESULT]")
}

func TestQuery_CompileError(t *testing.T) {
	db := loadedDB(t)
	out, _, err := execute(t, "--db", db, "--format", "json", "query",
		"SELECT DISTINCT category FROM products GROUP BY category")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E202", resp.Error.Code)
}

func TestQuery_MissingDatabase(t *testing.T) {
	_, _, err := execute(t, "--db", filepath.Join(t.TempDir(), "missing.db"), "query", "SELECT name FROM products")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}

func TestQuery_Metrics(t *testing.T) {
	db := loadedDB(t)
	_, errOut, err := execute(t, "--db", db, "query", "--metrics", "SELECT name FROM products")
	require.NoError(t, err)
	assert.Contains(t, errOut, `sql4go_queries_total{outcome="ok"} 1`)
	assert.Contains(t, errOut, "sql4go_rows_total 5")
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "NULL", formatValue(nil))
	assert.Equal(t, "abc", formatValue("abc"))
	assert.Equal(t, "1.5", formatValue(1.5))
	assert.Equal(t, "2024-01-02T03:04:05Z", formatValue(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.Equal(t, `{"a":1}`, formatValue(map[string]any{"a": 1}))
	assert.Equal(t, `[1,"x"]`, formatValue([]any{1, "x"}))
}
