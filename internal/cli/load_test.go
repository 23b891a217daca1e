package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_Text(t *testing.T) {
	db := filepath.Join(t.TempDir(), "load.db")
	out, _, err := execute(t, "--db", db, "load", "products", "testdata/products.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 5 document(s) into products")
	assert.True(t, fileExists(db))
}

func TestLoad_JSON(t *testing.T) {
	db := filepath.Join(t.TempDir(), "load.db")
	out, _, err := execute(t, "--db", db, "--format", "json", "load", "products", "testdata/products.yaml")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   LoadResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, LoadResult{Index: "products", Documents: 5, Columns: 1}, resp.Data)
}

func TestLoad_GeneratesIDs(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "load.db")
	docs := filepath.Join(dir, "docs.yaml")
	writeFile(t, docs, "documents:\n  - {name: a}\n  - {name: b}\n")

	_, _, err := execute(t, "--db", db, "load", "things", docs)
	require.NoError(t, err)
	_, _, err = execute(t, "--db", db, "load", "things", docs)
	require.NoError(t, err)

	out, _, err := execute(t, "--db", db, "--format", "json", "query", "SELECT COUNT(*) FROM things")
	require.NoError(t, err)
	var resp queryResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, [][]any{{4.0}}, resp.Data.Rows)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "load.db")
	empty := filepath.Join(dir, "empty.yaml")
	writeFile(t, empty, "documents: []\n")
	typo := filepath.Join(dir, "typo.yaml")
	writeFile(t, typo, "docs:\n  - {name: a}\n")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing file", []string{"--db", db, "load", "t", filepath.Join(dir, "none.yaml")}, "failed to read documents"},
		{"no documents", []string{"--db", db, "load", "t", empty}, "no documents"},
		{"unknown key", []string{"--db", db, "load", "t", typo}, "failed to parse documents"},
		{"elastic backend", []string{"--backend", "elastic", "load", "t", empty}, "only supports the local backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
