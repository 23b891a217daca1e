package compiler

import (
	"strconv"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/roach88/sql4go/internal/dsl"
	"github.com/roach88/sql4go/internal/model"
)

// Pseudo-fields with special meaning in WHERE.
const (
	// searchField compared to a string runs a free-text query.
	searchField = "_search"
)

// whereParser translates a WHERE expression into a backend query.
type whereParser struct {
	rels    []model.TableRelation
	columns model.ColumnTypes
}

// parseWhere returns MatchAll when there is no WHERE clause.
func parseWhere(where *sqlparser.Where, rels []model.TableRelation, columns model.ColumnTypes) (dsl.Query, error) {
	if where == nil || where.Expr == nil {
		return dsl.MatchAll{}, nil
	}
	p := &whereParser{rels: rels, columns: columns}
	return p.parse(where.Expr)
}

func (p *whereParser) parse(expr sqlparser.Expr) (dsl.Query, error) {
	switch e := expr.(type) {
	case *sqlparser.AndExpr:
		l, err := p.parse(e.Left)
		if err != nil {
			return nil, err
		}
		r, err := p.parse(e.Right)
		if err != nil {
			return nil, err
		}
		return dsl.And(l, r), nil
	case *sqlparser.OrExpr:
		l, err := p.parse(e.Left)
		if err != nil {
			return nil, err
		}
		r, err := p.parse(e.Right)
		if err != nil {
			return nil, err
		}
		return dsl.Or(l, r), nil
	case *sqlparser.NotExpr:
		inner, err := p.parse(e.Expr)
		if err != nil {
			return nil, err
		}
		return dsl.Not(inner), nil
	case *sqlparser.ParenExpr:
		return p.parse(e.Expr)
	case *sqlparser.ComparisonExpr:
		return p.parseComparison(e)
	case *sqlparser.RangeCond:
		return p.parseRange(e)
	case *sqlparser.IsExpr:
		return p.parseIs(e)
	}
	return nil, newError(ErrUnsupportedPredicate, "WHERE", "unsupported predicate: %s", sqlparser.String(expr))
}

func (p *whereParser) field(col *sqlparser.ColName) string {
	name, _ := resolveField(p.columns, stripQualifier(col, p.rels))
	return name
}

func (p *whereParser) parseComparison(e *sqlparser.ComparisonExpr) (dsl.Query, error) {
	switch e.Operator {
	case sqlparser.InStr, sqlparser.NotInStr:
		return p.parseIn(e)
	case sqlparser.LikeStr, sqlparser.NotLikeStr:
		return p.parseLike(e)
	}

	op, err := model.ParseCompareOp(e.Operator)
	if err != nil {
		return nil, newError(ErrUnsupportedPredicate, "WHERE", "%v", err)
	}

	col, value := e.Left, e.Right
	if _, ok := col.(*sqlparser.ColName); !ok {
		col, value = e.Right, e.Left
		op = op.Flip()
	}
	colName, ok := col.(*sqlparser.ColName)
	if !ok {
		return nil, newError(ErrUnsupportedPredicate, "WHERE", "comparison needs a column on one side: %s", sqlparser.String(e))
	}
	if _, isCol := value.(*sqlparser.ColName); isCol {
		return nil, newError(ErrUnsupportedPredicate, "WHERE", "comparing two columns is not supported: %s", sqlparser.String(e))
	}
	v, err := literal(value)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, newError(ErrInvalidLiteral, "WHERE", "comparison with NULL never matches, use IS NULL: %s", sqlparser.String(e))
	}

	field := p.field(colName)
	switch field {
	case model.FieldID:
		switch op {
		case model.OpEq:
			return dsl.IDs{Values: []string{toString(v)}}, nil
		case model.OpNe:
			return dsl.Not(dsl.IDs{Values: []string{toString(v)}}), nil
		}
	case searchField:
		if op != model.OpEq {
			return nil, newError(ErrUnsupportedPredicate, "WHERE", "%s only supports =", searchField)
		}
		return dsl.QueryString{Query: toString(v)}, nil
	}

	switch op {
	case model.OpEq:
		return dsl.Term{Field: field, Value: v}, nil
	case model.OpNe:
		return dsl.Not(dsl.Term{Field: field, Value: v}), nil
	case model.OpLt:
		return dsl.Range{Field: field, LT: v}, nil
	case model.OpLte:
		return dsl.Range{Field: field, LTE: v}, nil
	case model.OpGt:
		return dsl.Range{Field: field, GT: v}, nil
	case model.OpGte:
		return dsl.Range{Field: field, GTE: v}, nil
	}
	return nil, newError(ErrUnsupportedPredicate, "WHERE", "unsupported operator %s", e.Operator)
}

func (p *whereParser) parseIn(e *sqlparser.ComparisonExpr) (dsl.Query, error) {
	col, ok := e.Left.(*sqlparser.ColName)
	if !ok {
		return nil, newError(ErrUnsupportedPredicate, "WHERE", "IN needs a column on the left: %s", sqlparser.String(e))
	}
	tuple, ok := e.Right.(sqlparser.ValTuple)
	if !ok {
		return nil, newError(ErrUnsupportedPredicate, "WHERE", "IN needs a list of values: %s", sqlparser.String(e))
	}
	values := make([]any, 0, len(tuple))
	for _, item := range tuple {
		v, err := literal(item)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	var q dsl.Query
	field := p.field(col)
	if field == model.FieldID {
		ids := make([]string, len(values))
		for i, v := range values {
			ids[i] = toString(v)
		}
		q = dsl.IDs{Values: ids}
	} else {
		q = dsl.Terms{Field: field, Values: values}
	}
	if e.Operator == sqlparser.NotInStr {
		return dsl.Not(q), nil
	}
	return q, nil
}

func (p *whereParser) parseLike(e *sqlparser.ComparisonExpr) (dsl.Query, error) {
	col, ok := e.Left.(*sqlparser.ColName)
	if !ok {
		return nil, newError(ErrUnsupportedPredicate, "WHERE", "LIKE needs a column on the left: %s", sqlparser.String(e))
	}
	v, err := literal(e.Right)
	if err != nil {
		return nil, err
	}
	pattern, ok := v.(string)
	if !ok {
		return nil, newError(ErrInvalidLiteral, "WHERE", "LIKE needs a string pattern: %s", sqlparser.String(e))
	}
	q := dsl.Wildcard{Field: p.field(col), Pattern: likeToWildcard(pattern)}
	if e.Operator == sqlparser.NotLikeStr {
		return dsl.Not(q), nil
	}
	return q, nil
}

func (p *whereParser) parseRange(e *sqlparser.RangeCond) (dsl.Query, error) {
	col, ok := e.Left.(*sqlparser.ColName)
	if !ok {
		return nil, newError(ErrUnsupportedPredicate, "WHERE", "BETWEEN needs a column on the left: %s", sqlparser.String(e))
	}
	from, err := literal(e.From)
	if err != nil {
		return nil, err
	}
	to, err := literal(e.To)
	if err != nil {
		return nil, err
	}
	q := dsl.Range{Field: p.field(col), GTE: from, LTE: to}
	if e.Operator == sqlparser.NotBetweenStr {
		return dsl.Not(q), nil
	}
	return q, nil
}

func (p *whereParser) parseIs(e *sqlparser.IsExpr) (dsl.Query, error) {
	col, ok := e.Expr.(*sqlparser.ColName)
	if !ok {
		return nil, newError(ErrUnsupportedPredicate, "WHERE", "IS needs a column: %s", sqlparser.String(e))
	}
	exists := dsl.Exists{Field: p.field(col)}
	switch e.Operator {
	case sqlparser.IsNullStr:
		return dsl.Not(exists), nil
	case sqlparser.IsNotNullStr:
		return exists, nil
	}
	return nil, newError(ErrUnsupportedPredicate, "WHERE", "unsupported predicate: %s", sqlparser.String(e))
}

// literal converts a constant expression to a Go value: string, int64,
// float64, bool or nil for NULL.
func literal(expr sqlparser.Expr) (any, error) {
	switch v := expr.(type) {
	case *sqlparser.SQLVal:
		switch v.Type {
		case sqlparser.StrVal:
			return string(v.Val), nil
		case sqlparser.IntVal:
			n, err := strconv.ParseInt(string(v.Val), 10, 64)
			if err != nil {
				f, ferr := strconv.ParseFloat(string(v.Val), 64)
				if ferr != nil {
					return nil, newError(ErrInvalidLiteral, "", "invalid integer %s", v.Val)
				}
				return f, nil
			}
			return n, nil
		case sqlparser.FloatVal:
			f, err := strconv.ParseFloat(string(v.Val), 64)
			if err != nil {
				return nil, newError(ErrInvalidLiteral, "", "invalid number %s", v.Val)
			}
			return f, nil
		}
	case sqlparser.BoolVal:
		return bool(v), nil
	case *sqlparser.NullVal:
		return nil, nil
	case *sqlparser.UnaryExpr:
		if v.Operator == sqlparser.UMinusStr {
			inner, err := literal(v.Expr)
			if err != nil {
				return nil, err
			}
			switch n := inner.(type) {
			case int64:
				return -n, nil
			case float64:
				return -n, nil
			}
		}
	case *sqlparser.ParenExpr:
		return literal(v.Expr)
	}
	return nil, newError(ErrInvalidLiteral, "", "expected a literal value, got %s", sqlparser.String(expr))
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	}
	return ""
}

// likeToWildcard converts a SQL LIKE pattern to a wildcard pattern:
// % becomes *, _ becomes ? and a backslash escapes the next character.
func likeToWildcard(pattern string) string {
	var b strings.Builder
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			if r == '*' || r == '?' {
				b.WriteRune('\\')
			}
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			b.WriteRune('*')
		case r == '_':
			b.WriteRune('?')
		case r == '*' || r == '?':
			b.WriteRune('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
