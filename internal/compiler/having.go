package compiler

import (
	"github.com/xwb1989/sqlparser"

	"github.com/roach88/sql4go/internal/model"
)

// havingParser resolves a HAVING expression against the heading.
type havingParser struct {
	heading *model.Heading
	rels    []model.TableRelation
}

func parseHaving(having *sqlparser.Where, h *model.Heading, rels []model.TableRelation) (model.Comparison, error) {
	if having == nil || having.Expr == nil {
		return nil, nil
	}
	p := &havingParser{heading: h, rels: rels}
	return p.parse(having.Expr)
}

func (p *havingParser) parse(expr sqlparser.Expr) (model.Comparison, error) {
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
		return model.And{Terms: []model.Comparison{l, r}}, nil
	case *sqlparser.OrExpr:
		l, err := p.parse(e.Left)
		if err != nil {
			return nil, err
		}
		r, err := p.parse(e.Right)
		if err != nil {
			return nil, err
		}
		return model.Or{Terms: []model.Comparison{l, r}}, nil
	case *sqlparser.NotExpr:
		inner, err := p.parse(e.Expr)
		if err != nil {
			return nil, err
		}
		return model.Not{Term: inner}, nil
	case *sqlparser.ParenExpr:
		return p.parse(e.Expr)
	case *sqlparser.ComparisonExpr:
		return p.parseComparison(e)
	case *sqlparser.RangeCond:
		operand, err := p.operand(e.Left)
		if err != nil {
			return nil, err
		}
		low, err := p.operand(e.From)
		if err != nil {
			return nil, err
		}
		high, err := p.operand(e.To)
		if err != nil {
			return nil, err
		}
		return model.Between{Operand: operand, Low: low, High: high, Negate: e.Operator == sqlparser.NotBetweenStr}, nil
	case *sqlparser.IsExpr:
		operand, err := p.operand(e.Expr)
		if err != nil {
			return nil, err
		}
		switch e.Operator {
		case sqlparser.IsNullStr:
			return model.IsNull{Operand: operand}, nil
		case sqlparser.IsNotNullStr:
			return model.IsNull{Operand: operand, Negate: true}, nil
		}
	}
	return nil, newError(ErrUnsupportedPredicate, "HAVING", "unsupported predicate: %s", sqlparser.String(expr))
}

func (p *havingParser) parseComparison(e *sqlparser.ComparisonExpr) (model.Comparison, error) {
	switch e.Operator {
	case sqlparser.InStr, sqlparser.NotInStr:
		operand, err := p.operand(e.Left)
		if err != nil {
			return nil, err
		}
		tuple, ok := e.Right.(sqlparser.ValTuple)
		if !ok {
			return nil, newError(ErrUnsupportedPredicate, "HAVING", "IN needs a list of values: %s", sqlparser.String(e))
		}
		values := make([]any, len(tuple))
		for i, item := range tuple {
			v, err := literal(item)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return model.In{Operand: operand, Values: values, Negate: e.Operator == sqlparser.NotInStr}, nil
	}

	op, err := model.ParseCompareOp(e.Operator)
	if err != nil {
		return nil, newError(ErrUnsupportedPredicate, "HAVING", "%v", err)
	}
	l, err := p.operand(e.Left)
	if err != nil {
		return nil, err
	}
	r, err := p.operand(e.Right)
	if err != nil {
		return nil, err
	}
	return model.Simple{Left: l, Op: op, Right: r}, nil
}

// operand resolves a column reference (label, alias or field), an aggregate
// call or a literal.
func (p *havingParser) operand(expr sqlparser.Expr) (model.Operand, error) {
	switch e := expr.(type) {
	case *sqlparser.ColName:
		c, err := resolveColumn(e, p.heading, p.rels)
		if err != nil {
			return model.Operand{}, inClause(err, "HAVING")
		}
		return model.ColumnOperand(c.Index), nil
	case *sqlparser.FuncExpr:
		c, err := resolveAggregate(e, p.heading, p.rels)
		if err != nil {
			return model.Operand{}, inClause(err, "HAVING")
		}
		return model.ColumnOperand(c.Index), nil
	}
	v, err := literal(expr)
	if err != nil {
		return model.Operand{}, newError(ErrUnsupportedPredicate, "HAVING", "unsupported operand %s", sqlparser.String(expr))
	}
	return model.LiteralOperand(v), nil
}

// resolveColumn finds the heading column a bare or qualified name refers
// to: first by label, then by source field.
func resolveColumn(col *sqlparser.ColName, h *model.Heading, rels []model.TableRelation) (*model.Column, error) {
	if col.Qualifier.IsEmpty() {
		if c, ok := h.Lookup(col.Name.String()); ok {
			return c, nil
		}
	}
	field := stripQualifier(col, rels)
	if c, ok := h.LookupField(field); ok {
		return c, nil
	}
	return nil, newError(ErrUnresolvedColumn, "", "unknown column %s", sqlparser.String(col))
}

// resolveAggregate finds the column holding an aggregate call's value.
func resolveAggregate(fn *sqlparser.FuncExpr, h *model.Heading, rels []model.TableRelation) (*model.Column, error) {
	op, ok := model.AggregateFunc(fn.Name.Lowered(), fn.Distinct)
	if !ok {
		return nil, newError(ErrUnknownFunction, "", "unsupported function %s", fn.Name.String())
	}
	field, err := aggregateField(fn, rels)
	if err != nil {
		return nil, err
	}
	c, ok := h.LookupAggregate(op, field)
	if !ok {
		return nil, newError(ErrUnresolvedColumn, "", "aggregate %s is not computed", sqlparser.String(fn))
	}
	return c, nil
}
