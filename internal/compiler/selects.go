package compiler

import (
	"sort"
	"strconv"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/roach88/sql4go/internal/model"
)

// selectParser turns the select list into a heading.
type selectParser struct {
	rels    []model.TableRelation
	types   model.TableTypes
	columns model.ColumnTypes
	heading *model.Heading
	scoring bool
}

func newSelectParser(rels []model.TableRelation, types model.TableTypes, columns model.ColumnTypes) *selectParser {
	return &selectParser{rels: rels, types: types, columns: columns, heading: model.NewHeading()}
}

// parse handles every select item in order. The returned slice maps each
// item to the index of the column it produced (-1 for wildcards).
func (p *selectParser) parse(exprs sqlparser.SelectExprs) ([]int, error) {
	items := make([]int, len(exprs))
	for i, expr := range exprs {
		switch e := expr.(type) {
		case *sqlparser.StarExpr:
			if err := p.expandStar(e); err != nil {
				return nil, err
			}
			items[i] = -1
		case *sqlparser.AliasedExpr:
			col, err := p.parseAliased(e)
			if err != nil {
				return nil, err
			}
			items[i] = col.Index
		default:
			return nil, newError(ErrUnsupportedSelect, "SELECT", "unsupported select item: %s", sqlparser.String(expr))
		}
	}
	return items, nil
}

// expandStar adds one visible column per declared field of the relations
// the wildcard covers, in field-name order.
func (p *selectParser) expandStar(star *sqlparser.StarExpr) error {
	qualifier := star.TableName.Name.String()
	matched := false
	for _, rel := range p.rels {
		if qualifier != "" && !rel.Names(qualifier) {
			continue
		}
		matched = true
		cols := tableColumns(p.types, rel.Table)
		if len(cols) == 0 {
			return newError(ErrNoMetadata, "SELECT", "no column metadata for table %q, cannot expand *", rel.Table)
		}
		names := make([]string, 0, len(cols))
		for name := range cols {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, exists := p.heading.Lookup(name); exists {
				continue
			}
			if _, err := p.heading.Add(&model.Column{Label: name, Field: name, Type: cols[name], Visible: true}); err != nil {
				return newError(ErrDuplicateLabel, "SELECT", "%v", err)
			}
		}
	}
	if !matched {
		return newError(ErrUnresolvedColumn, "SELECT", "%s.* does not name a table in FROM", qualifier)
	}
	return nil
}

func (p *selectParser) parseAliased(e *sqlparser.AliasedExpr) (*model.Column, error) {
	alias := e.As.String()
	switch expr := e.Expr.(type) {
	case *sqlparser.ColName:
		field := stripQualifier(expr, p.rels)
		if field == model.FieldScore {
			p.scoring = true
		}
		label := alias
		if label == "" {
			label = field
		}
		return p.add(&model.Column{Label: label, Field: field, Visible: true})
	case *sqlparser.FuncExpr:
		return p.parseFunc(expr, alias)
	case *sqlparser.BinaryExpr, *sqlparser.ParenExpr, *sqlparser.UnaryExpr, *sqlparser.SQLVal:
		return p.parseComputed(e.Expr, alias)
	default:
		return nil, newError(ErrUnsupportedSelect, "SELECT", "unsupported select expression: %s", sqlparser.String(e.Expr))
	}
}

func (p *selectParser) parseFunc(fn *sqlparser.FuncExpr, alias string) (*model.Column, error) {
	label := alias
	if label == "" {
		label = sqlparser.String(fn)
	}
	name := fn.Name.Lowered()

	if name == "highlight" {
		field, err := p.singleField(fn)
		if err != nil {
			return nil, err
		}
		return p.add(&model.Column{Label: label, Field: field, Type: model.TypeVarchar, Op: model.OpHighlight, Visible: true})
	}

	op, ok := model.AggregateFunc(name, fn.Distinct)
	if !ok {
		return nil, newError(ErrUnknownFunction, "SELECT", "unsupported function %s", fn.Name.String())
	}
	field, err := aggregateField(fn, p.rels)
	if err != nil {
		return nil, err
	}
	return p.add(&model.Column{Label: label, Field: field, Type: aggregateType(op), Op: op, Visible: true})
}

// singleField extracts the one column argument of a function call.
func (p *selectParser) singleField(fn *sqlparser.FuncExpr) (string, error) {
	if len(fn.Exprs) != 1 {
		return "", newError(ErrUnsupportedSelect, "SELECT", "%s takes exactly one column", fn.Name.String())
	}
	arg, ok := fn.Exprs[0].(*sqlparser.AliasedExpr)
	if !ok {
		return "", newError(ErrUnsupportedSelect, "SELECT", "%s takes a column argument", fn.Name.String())
	}
	col, ok := arg.Expr.(*sqlparser.ColName)
	if !ok {
		return "", newError(ErrUnsupportedSelect, "SELECT", "%s takes a column argument", fn.Name.String())
	}
	return stripQualifier(col, p.rels), nil
}

// aggregateField returns the field an aggregate function reads, "*" for
// COUNT(*).
func aggregateField(fn *sqlparser.FuncExpr, rels []model.TableRelation) (string, error) {
	if len(fn.Exprs) != 1 {
		return "", newError(ErrUnsupportedSelect, "", "%s takes exactly one argument", sqlparser.String(fn))
	}
	switch arg := fn.Exprs[0].(type) {
	case *sqlparser.StarExpr:
		if fn.Name.Lowered() != "count" || fn.Distinct {
			return "", newError(ErrUnsupportedSelect, "", "* is only valid in COUNT(*)")
		}
		return model.FieldAll, nil
	case *sqlparser.AliasedExpr:
		col, ok := arg.Expr.(*sqlparser.ColName)
		if !ok {
			return "", newError(ErrUnsupportedSelect, "", "aggregate over an expression is not supported: %s", sqlparser.String(fn))
		}
		return stripQualifier(col, rels), nil
	}
	return "", newError(ErrUnsupportedSelect, "", "unsupported aggregate argument in %s", sqlparser.String(fn))
}

func aggregateType(op model.Operation) model.SQLType {
	switch op {
	case model.OpCount, model.OpCountDistinct:
		return model.TypeBigInt
	}
	return model.TypeDouble
}

func (p *selectParser) parseComputed(expr sqlparser.Expr, alias string) (*model.Column, error) {
	b := &computeBuilder{heading: p.heading, rels: p.rels, vars: make(map[int]int)}
	src, err := b.build(expr)
	if err != nil {
		return nil, err
	}
	label := alias
	if label == "" {
		label = sqlparser.String(expr)
	}
	return p.add(&model.Column{
		Label:       label,
		Type:        model.TypeDouble,
		Op:          model.OpComputed,
		Visible:     true,
		Computation: &model.Computation{Expr: src, Args: b.args},
	})
}

func (p *selectParser) add(c *model.Column) (*model.Column, error) {
	added, err := p.heading.Add(c)
	if err != nil {
		return nil, newError(ErrDuplicateLabel, "SELECT", "%v", err)
	}
	return added, nil
}

// addHidden returns the existing column for (op, field) or appends a hidden
// one. Hidden labels never collide with visible ones.
func addHidden(h *model.Heading, op model.Operation, field string) (*model.Column, error) {
	if op == model.OpNone {
		if c, ok := h.LookupField(field); ok {
			return c, nil
		}
	} else if c, ok := h.LookupAggregate(op, field); ok {
		return c, nil
	}

	label := field
	typ := model.TypeOther
	if op != model.OpNone {
		label = model.AggregateKey(op, field)
		typ = aggregateType(op)
	}
	base := label
	for n := 1; ; n++ {
		if _, taken := h.Lookup(label); !taken {
			break
		}
		label = base + "#" + strconv.Itoa(n)
	}
	c, err := h.Add(&model.Column{Label: label, Field: field, Type: typ, Op: op})
	if err != nil {
		return nil, newError(ErrDuplicateLabel, "", "%v", err)
	}
	return c, nil
}

// computeBuilder translates an arithmetic select expression into the
// expression language evaluated by the result layer. Every column or
// aggregate it references becomes a variable cN bound to a heading column.
type computeBuilder struct {
	heading *model.Heading
	rels    []model.TableRelation
	vars    map[int]int
	args    []int
}

func (b *computeBuilder) build(expr sqlparser.Expr) (string, error) {
	switch e := expr.(type) {
	case *sqlparser.BinaryExpr:
		switch e.Operator {
		case sqlparser.PlusStr, sqlparser.MinusStr, sqlparser.MultStr, sqlparser.DivStr:
		default:
			return "", newError(ErrInvalidExpression, "SELECT", "operator %s is not supported in computed columns", e.Operator)
		}
		l, err := b.build(e.Left)
		if err != nil {
			return "", err
		}
		r, err := b.build(e.Right)
		if err != nil {
			return "", err
		}
		return l + " " + e.Operator + " " + r, nil
	case *sqlparser.ParenExpr:
		inner, err := b.build(e.Expr)
		if err != nil {
			return "", err
		}
		return "(" + inner + ")", nil
	case *sqlparser.UnaryExpr:
		inner, err := b.build(e.Expr)
		if err != nil {
			return "", err
		}
		switch e.Operator {
		case sqlparser.UMinusStr:
			return "-(" + inner + ")", nil
		case sqlparser.UPlusStr:
			return inner, nil
		}
		return "", newError(ErrInvalidExpression, "SELECT", "operator %s is not supported in computed columns", e.Operator)
	case *sqlparser.SQLVal:
		switch e.Type {
		case sqlparser.IntVal, sqlparser.FloatVal:
			f, err := strconv.ParseFloat(string(e.Val), 64)
			if err != nil {
				return "", newError(ErrInvalidLiteral, "SELECT", "invalid number %s", e.Val)
			}
			return floatLiteral(f), nil
		}
		return "", newError(ErrInvalidExpression, "SELECT", "only numeric literals are supported in computed columns, got %s", sqlparser.String(e))
	case *sqlparser.ColName:
		c, err := addHidden(b.heading, model.OpNone, stripQualifier(e, b.rels))
		if err != nil {
			return "", err
		}
		return b.variable(c.Index), nil
	case *sqlparser.FuncExpr:
		op, ok := model.AggregateFunc(e.Name.Lowered(), e.Distinct)
		if !ok {
			return "", newError(ErrUnknownFunction, "SELECT", "unsupported function %s", e.Name.String())
		}
		field, err := aggregateField(e, b.rels)
		if err != nil {
			return "", err
		}
		c, err := addHidden(b.heading, op, field)
		if err != nil {
			return "", err
		}
		return b.variable(c.Index), nil
	}
	return "", newError(ErrInvalidExpression, "SELECT", "unsupported computed expression: %s", sqlparser.String(expr))
}

func (b *computeBuilder) variable(column int) string {
	n, ok := b.vars[column]
	if !ok {
		n = len(b.args)
		b.vars[column] = n
		b.args = append(b.args, column)
	}
	return "c" + strconv.Itoa(n)
}

// floatLiteral formats f so the expression language reads it as a double.
func floatLiteral(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
