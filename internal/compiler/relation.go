package compiler

import (
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/roach88/sql4go/internal/model"
)

// parseRelations resolves the FROM clause into table relations.
//
// The query-cache pseudo-table (matched case-insensitively) is removed
// from the result and reported through useCache instead.
func parseRelations(from sqlparser.TableExprs, cacheTable string) (rels []model.TableRelation, useCache bool, err error) {
	for _, expr := range from {
		found, err := parseTableExpr(expr)
		if err != nil {
			return nil, false, err
		}
		for _, rel := range found {
			if strings.EqualFold(rel.Table, cacheTable) {
				useCache = true
				continue
			}
			rels = append(rels, rel)
		}
	}
	if len(rels) == 0 {
		return nil, useCache, newError(ErrNoRelation, "FROM", "Specify at least one valid table to execute the query on")
	}
	return rels, useCache, nil
}

func parseTableExpr(expr sqlparser.TableExpr) ([]model.TableRelation, error) {
	switch t := expr.(type) {
	case *sqlparser.AliasedTableExpr:
		name, ok := t.Expr.(sqlparser.TableName)
		if !ok {
			return nil, newError(ErrUnsupportedRelation, "FROM", "subqueries are not supported: %s", sqlparser.String(t))
		}
		if name.Name.IsEmpty() {
			return nil, newError(ErrNoRelation, "FROM", "empty table name")
		}
		return []model.TableRelation{{Table: name.Name.String(), Alias: t.As.String()}}, nil
	case *sqlparser.ParenTableExpr:
		var out []model.TableRelation
		for _, inner := range t.Exprs {
			rels, err := parseTableExpr(inner)
			if err != nil {
				return nil, err
			}
			out = append(out, rels...)
		}
		return out, nil
	case *sqlparser.JoinTableExpr:
		return nil, newError(ErrUnsupportedRelation, "FROM", "joins are not supported: %s", sqlparser.String(t))
	default:
		return nil, newError(ErrUnsupportedRelation, "FROM", "unsupported relation %T", expr)
	}
}

// typesForColumns merges the column types visible to a query.
//
// The synthetic _id, _type and _index columns are seeded as VARCHAR, then
// each relation's declared columns overlay them in FROM order; on a name
// collision the later relation wins.
func typesForColumns(rels []model.TableRelation, types model.TableTypes) model.ColumnTypes {
	merged := model.ColumnTypes{
		model.FieldID:    model.TypeVarchar,
		model.FieldType:  model.TypeVarchar,
		model.FieldIndex: model.TypeVarchar,
	}
	for _, rel := range rels {
		for name, typ := range tableColumns(types, rel.Table) {
			merged[name] = typ
		}
	}
	return merged
}

// tableColumns finds the metadata of table, matching the name exactly
// first and case-insensitively second.
func tableColumns(types model.TableTypes, table string) model.ColumnTypes {
	if cols, ok := types[table]; ok {
		return cols
	}
	for name, cols := range types {
		if strings.EqualFold(name, table) {
			return cols
		}
	}
	return nil
}

// resolveField maps a field to the spelling used by the metadata, together
// with its declared type. Unknown fields keep their spelling and get
// TypeOther.
func resolveField(columns model.ColumnTypes, field string) (string, model.SQLType) {
	if typ, ok := columns[field]; ok {
		return field, typ
	}
	if field == model.FieldScore {
		return field, model.TypeFloat
	}
	folded := model.FoldLabel(field)
	for name, typ := range columns {
		if model.FoldLabel(name) == folded {
			return name, typ
		}
	}
	return field, model.TypeOther
}

// stripQualifier turns a column reference into a source field.
// A qualifier naming one of the relations is dropped; any other qualifier
// is kept as the leading path element of a nested field.
func stripQualifier(col *sqlparser.ColName, rels []model.TableRelation) string {
	name := col.Name.String()
	if col.Qualifier.IsEmpty() {
		return name
	}
	qualifier := col.Qualifier.Name.String()
	if col.Qualifier.Qualifier.IsEmpty() {
		for _, rel := range rels {
			if rel.Names(qualifier) {
				return name
			}
		}
		return qualifier + "." + name
	}
	return col.Qualifier.Qualifier.String() + "." + qualifier + "." + name
}

// Tables lists the table names of a statement's FROM clause without
// validating it, so callers can fetch metadata before compiling.
func Tables(stmt *sqlparser.Select) []string {
	var out []string
	var walk func(sqlparser.TableExpr)
	walk = func(expr sqlparser.TableExpr) {
		switch t := expr.(type) {
		case *sqlparser.AliasedTableExpr:
			if name, ok := t.Expr.(sqlparser.TableName); ok && !name.Name.IsEmpty() {
				out = append(out, name.Name.String())
			}
		case *sqlparser.ParenTableExpr:
			for _, inner := range t.Exprs {
				walk(inner)
			}
		case *sqlparser.JoinTableExpr:
			walk(t.LeftExpr)
			walk(t.RightExpr)
		}
	}
	if stmt != nil {
		for _, expr := range stmt.From {
			walk(expr)
		}
	}
	return out
}
