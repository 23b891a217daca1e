package local

import (
	"context"
	"fmt"

	"github.com/roach88/sql4go/internal/backend"
	"github.com/roach88/sql4go/internal/model"
	"github.com/roach88/sql4go/internal/store"
)

// sampleSize is how many documents are read to infer column types.
const sampleSize = 100

// Catalog derives column types from declared columns and, for undeclared
// ones, from a sample of documents.
type Catalog struct {
	store *store.Store
}

var _ backend.Catalog = (*Catalog)(nil)

// NewCatalog creates a catalog over s.
func NewCatalog(s *store.Store) *Catalog {
	return &Catalog{store: s}
}

// Types returns the column types of each table. Tables may be GLOB
// patterns. Tables without documents or declarations are omitted.
func (c *Catalog) Types(ctx context.Context, tables ...string) (model.TableTypes, error) {
	out := make(model.TableTypes, len(tables))
	for _, table := range tables {
		cols, err := c.infer(ctx, table)
		if err != nil {
			return nil, err
		}
		declared, err := c.store.Columns(ctx, table)
		if err != nil {
			return nil, err
		}
		for name, typ := range declared {
			t, err := model.ParseSQLType(typ)
			if err != nil {
				return nil, fmt.Errorf("table %s column %s: %w", table, name, err)
			}
			cols[name] = t
		}
		if len(cols) > 0 {
			out[table] = cols
		}
	}
	return out, nil
}

func (c *Catalog) infer(ctx context.Context, table string) (model.ColumnTypes, error) {
	rows, err := c.store.Query(ctx, `
		SELECT idx, id, doc_type, source FROM documents
		WHERE idx GLOB ?
		ORDER BY idx COLLATE BINARY ASC, seq ASC
		LIMIT ?
	`, table, sampleSize)
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(model.ColumnTypes)
	for rows.Next() {
		doc, err := store.ScanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", table, err)
		}
		inferObject("", doc.Source, cols)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sample %s: %w", table, err)
	}
	return cols, nil
}

// inferObject records the type of every value under its dotted path. The
// first non-null observation of a path wins.
func inferObject(prefix string, obj map[string]any, out model.ColumnTypes) {
	for name, v := range obj {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		inferValue(path, v, out)
	}
}

func inferValue(path string, v any, out model.ColumnTypes) {
	switch t := v.(type) {
	case nil:
		return
	case map[string]any:
		setType(out, path, model.TypeObject)
		inferObject(path, t, out)
	case []any:
		for _, e := range t {
			if obj, ok := e.(map[string]any); ok {
				setType(out, path, model.TypeArray)
				inferObject(path, obj, out)
				continue
			}
			// Arrays of scalars take the type of their elements.
			inferValue(path, e, out)
		}
	case string:
		setType(out, path, model.TypeVarchar)
	case bool:
		setType(out, path, model.TypeBoolean)
	case int64:
		setType(out, path, model.TypeBigInt)
	case float64:
		setType(out, path, model.TypeDouble)
	default:
		setType(out, path, model.TypeOther)
	}
}

func setType(out model.ColumnTypes, path string, t model.SQLType) {
	if _, ok := out[path]; !ok {
		out[path] = t
	}
}
