package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)

		var version int
		require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
		assert.Equal(t, currentSchemaVersion, version)
		s.Close()
	}
}

func TestLoadMigrations(t *testing.T) {
	steps, err := loadMigrations()
	require.NoError(t, err)

	var names []string
	for i, m := range steps {
		assert.Equal(t, i+1, m.version)
		assert.NotEmpty(t, m.sql)
		names = append(names, m.name)
	}
	assert.Equal(t, []string{"documents", "columns"}, names)
	assert.Equal(t, len(steps), currentSchemaVersion)
}

func TestOpen_UpgradesDocumentsOnlyDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// A database that only ever ran the first step.
	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = raw.Exec(migrations[0].sql)
	require.NoError(t, err)
	_, err = raw.Exec(`INSERT INTO documents (idx, id, seq, source) VALUES ('t', '1', 1, '{"v": 1}')`)
	require.NoError(t, err)
	_, err = raw.Exec("PRAGMA user_version = 1")
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)

	ctx := context.Background()
	require.NoError(t, s.DeclareColumns(ctx, "t", map[string]string{"v": "INT"}))
	cols, err := s.Columns(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"v": "INT"}, cols)

	doc, ok, err := s.Get(ctx, "t", "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"v": int64(1)}, doc.Source)
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = raw.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestOpen_Pragmas(t *testing.T) {
	s := openTest(t)
	for _, p := range pragmas {
		assert.NoError(t, s.verifyPragma(p.name, p.expected))
	}
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(InMemory)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(context.Background(), Document{Index: "t", ID: "1"}))
	_, ok, err := s.Get(context.Background(), "t", "1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPutGet_RoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	doc := Document{Index: "products", ID: "1", Source: map[string]any{
		"name":   "boot <b>",
		"stock":  int64(9007199254740993),
		"price":  9.5,
		"tags":   []any{"a", "b"},
		"vendor": map[string]any{"id": int64(3)},
	}}
	require.NoError(t, s.Put(ctx, doc))

	got, ok, err := s.Get(ctx, "products", "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, DefaultType, got.Type)
	assert.Equal(t, doc.Source, got.Source)

	_, ok, err = s.Get(ctx, "products", "2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPut_ReplaceKeepsSeq(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Document{Index: "t", ID: "a", Source: map[string]any{"v": int64(1)}}))
	require.NoError(t, s.Put(ctx, Document{Index: "t", ID: "b", Source: map[string]any{"v": int64(2)}}))
	require.NoError(t, s.Put(ctx, Document{Index: "t", ID: "a", Source: map[string]any{"v": int64(3)}}))

	rows, err := s.Query(ctx, "SELECT idx, id, doc_type, source FROM documents ORDER BY seq ASC")
	require.NoError(t, err)
	defer rows.Close()

	var ids []string
	var values []any
	for rows.Next() {
		doc, err := ScanDocument(rows)
		require.NoError(t, err)
		ids = append(ids, doc.ID)
		values = append(values, doc.Source["v"])
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.Equal(t, []any{int64(3), int64(2)}, values)
}

func TestPut_RequiresIndexAndID(t *testing.T) {
	s := openTest(t)
	assert.Error(t, s.Put(context.Background(), Document{Index: "t"}))
	assert.Error(t, s.Put(context.Background(), Document{ID: "1"}))
}

func TestPutBatch_AllOrNothing(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	err := s.PutBatch(ctx, []Document{
		{Index: "t", ID: "1"},
		{Index: "t"},
	})
	require.Error(t, err)

	indices, err := s.Indices(ctx)
	require.NoError(t, err)
	assert.Empty(t, indices)

	require.NoError(t, s.PutBatch(ctx, []Document{{Index: "b", ID: "1"}, {Index: "a", ID: "1"}}))
	indices, err = s.Indices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, indices)
}

func TestDelete(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Document{Index: "t", ID: "1"}))

	deleted, err := s.Delete(ctx, "t", "1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.Delete(ctx, "t", "1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDeclareColumns(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.DeclareColumns(ctx, "logs-2024", map[string]string{"level": "VARCHAR", "code": "INT"}))
	require.NoError(t, s.DeclareColumns(ctx, "logs-2025", map[string]string{"code": "BIGINT", "host": "VARCHAR"}))

	cols, err := s.Columns(ctx, "logs-2024")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"level": "VARCHAR", "code": "INT"}, cols)

	// Later indices win when a pattern spans several.
	cols, err = s.Columns(ctx, "logs-*")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"level": "VARCHAR", "code": "BIGINT", "host": "VARCHAR"}, cols)

	indices, err := s.Indices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"logs-2024", "logs-2025"}, indices)
}

func TestUnmarshalSource(t *testing.T) {
	src, err := UnmarshalSource(`{"a": 1, "b": 1.5, "c": [2, {"d": 3}]}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": int64(1),
		"b": 1.5,
		"c": []any{int64(2), map[string]any{"d": int64(3)}},
	}, src)

	_, err = UnmarshalSource(`[1]`)
	assert.Error(t, err)
}
