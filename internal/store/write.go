package store

import (
	"context"
	"database/sql"
	"fmt"
)

// DefaultType is the document type recorded when none is given.
const DefaultType = "_doc"

// Document is one stored document.
type Document struct {
	Index  string
	ID     string
	Type   string
	Source map[string]any
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Put inserts or replaces a document.
// A replaced document keeps its position in index order.
func (s *Store) Put(ctx context.Context, doc Document) error {
	if err := putDocument(ctx, s.db, doc); err != nil {
		return fmt.Errorf("put document: %w", err)
	}
	return nil
}

// PutBatch stores documents in one transaction. Either every document is
// stored or none is.
func (s *Store) PutBatch(ctx context.Context, docs []Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put batch: %w", err)
	}
	for i, doc := range docs {
		if err := putDocument(ctx, tx, doc); err != nil {
			tx.Rollback()
			return fmt.Errorf("put batch: document %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put batch: %w", err)
	}
	return nil
}

func putDocument(ctx context.Context, db execer, doc Document) error {
	if doc.Index == "" || doc.ID == "" {
		return fmt.Errorf("document needs an index and an id")
	}
	if doc.Type == "" {
		doc.Type = DefaultType
	}
	source, err := marshalSource(doc.Source)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO documents (idx, id, doc_type, seq, source)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM documents), ?)
		ON CONFLICT(idx, id) DO UPDATE SET
			doc_type = excluded.doc_type,
			source = excluded.source
	`, doc.Index, doc.ID, doc.Type, source)
	return err
}

// Delete removes a document. It reports whether the document existed.
func (s *Store) Delete(ctx context.Context, index, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE idx = ? AND id = ?`, index, id)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	return n > 0, nil
}

// DeclareColumns records SQL type names for columns of index, replacing
// earlier declarations of the same columns.
func (s *Store) DeclareColumns(ctx context.Context, index string, types map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("declare columns: %w", err)
	}
	for name, typ := range types {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO columns (idx, name, sql_type) VALUES (?, ?, ?)
			ON CONFLICT(idx, name) DO UPDATE SET sql_type = excluded.sql_type
		`, index, name, typ)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("declare columns: %s.%s: %w", index, name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("declare columns: %w", err)
	}
	return nil
}
