package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sql4go/internal/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sql4go.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	p := Default()
	require.NoError(t, Validate(p))

	assert.Equal(t, 10000, p.FetchSize)
	assert.Equal(t, 60*time.Second, p.ScrollTimeout())
	assert.Equal(t, 10*time.Second, p.QueryTimeout())
	assert.Equal(t, 1000, p.DefaultRowLength)
	assert.Equal(t, 100, p.FragmentSize)
	assert.Equal(t, 1, p.FragmentNumber)
	assert.True(t, p.NestedLateral)
	assert.Equal(t, "query_cache", p.QueryCacheTable)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	p, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().FetchSize, p.FetchSize)
	assert.Equal(t, Default().QueryCacheTable, p.QueryCacheTable)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
fetch_size: 500
result_nested_lateral: false
tables:
  - name: Products
    columns:
      - name: Price
        type: double
      - name: category
        type: keyword
`)

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500, p.FetchSize)
	assert.False(t, p.NestedLateral)
	assert.Equal(t, 60, p.ScrollTimeoutSec)

	types, err := p.TableTypes()
	require.NoError(t, err)
	assert.Equal(t, model.TableTypes{
		"Products": {"Price": model.TypeDouble, "category": model.TypeVarchar},
	}, types)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "fetch_size: 500\n")
	t.Setenv("SQL4GO_FETCH_SIZE", "250")

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250, p.FetchSize)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, "fetch_size: 0\n")

	_, err := Load(path)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Problems)
}

func TestValidate_UnknownColumnType(t *testing.T) {
	p := Default()
	p.Tables = []TableSpec{{Name: "t", Columns: []ColumnSpec{{Name: "c", Type: "geo_point"}}}}

	assert.Error(t, Validate(p))
	_, err := p.TableTypes()
	assert.Error(t, err)
}

func TestValidate_CacheTableName(t *testing.T) {
	p := Default()
	p.QueryCacheTable = "bad name"
	assert.Error(t, Validate(p))
}
