package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Get returns the document stored under index and id.
func (s *Store) Get(ctx context.Context, index, id string) (Document, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT idx, id, doc_type, source FROM documents WHERE idx = ? AND id = ?
	`, index, id)
	doc, err := ScanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, fmt.Errorf("get document: %w", err)
	}
	return doc, true, nil
}

// Indices returns the names of every index holding documents or declared
// columns, sorted.
func (s *Store) Indices(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx FROM documents
		UNION
		SELECT idx FROM columns
		ORDER BY idx COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query indices: %w", err)
	}
	defer rows.Close()

	indices := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		indices = append(indices, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate indices: %w", err)
	}
	return indices, nil
}

// Columns returns the declared SQL type names of the columns of every index
// matching pattern (a GLOB pattern, so a plain name matches itself).
func (s *Store) Columns(ctx context.Context, pattern string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, sql_type FROM columns
		WHERE idx GLOB ?
		ORDER BY idx COLLATE BINARY ASC, name COLLATE BINARY ASC
	`, pattern)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		out[name] = typ
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return out, nil
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// ScanDocument reads the columns idx, id, doc_type and source.
func ScanDocument(row scanner) (Document, error) {
	var doc Document
	var source string
	if err := row.Scan(&doc.Index, &doc.ID, &doc.Type, &source); err != nil {
		return Document{}, err
	}
	src, err := UnmarshalSource(source)
	if err != nil {
		return Document{}, err
	}
	doc.Source = src
	return doc, nil
}
