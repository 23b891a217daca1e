// Package compiler translates SQL SELECT statements into search requests.
//
// Compilation is a fixed sequence of clause steps threaded through a State
// accumulator. The first failing step records its error and every later
// step is skipped, so callers always see the first problem and never a
// partially built request.
package compiler

import (
	"log/slog"
	"strconv"

	"github.com/xwb1989/sqlparser"

	"github.com/roach88/sql4go/internal/config"
	"github.com/roach88/sql4go/internal/dsl"
	"github.com/roach88/sql4go/internal/model"
)

// Unlimited is the row cap meaning "no cap".
const Unlimited = -1

// Compiled is the product of compiling one statement.
//
// Having and the aggregated OrderBy entries are residual: the executor
// applies them to materialized rows. When the request does not aggregate,
// OrderBy has already been pushed to the backend as sort directives.
type Compiled struct {
	Request   *dsl.Request
	Heading   *model.Heading
	Having    model.Comparison
	OrderBy   []model.OrderBy
	Limit     int
	Relations []model.TableRelation
	UseCache  bool
	Scoring   bool
}

// Aggregating reports whether the request carries an aggregation.
func (c *Compiled) Aggregating() bool {
	return c.Request.Aggregating()
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger used for compile diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// Compiler compiles statements under a fixed set of properties. It holds
// no per-statement state and is safe for concurrent use.
type Compiler struct {
	props  config.Props
	logger *slog.Logger
}

// New creates a compiler.
func New(props config.Props, opts ...Option) *Compiler {
	c := &Compiler{props: props, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Props returns the compiler's properties.
func (c *Compiler) Props() config.Props { return c.props }

// Parse parses sql and requires a plain SELECT.
func Parse(sql string) (*sqlparser.Select, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, newError(ErrParse, "", "%v", err)
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return nil, newError(ErrNotSelect, "", "only SELECT statements are supported, got %T", stmt)
	}
	return sel, nil
}

// CompileSQL parses and compiles sql.
func (c *Compiler) CompileSQL(sql string, maxRows int, types model.TableTypes) (*Compiled, error) {
	stmt, err := Parse(sql)
	if err != nil {
		return nil, err
	}
	return c.Compile(sql, stmt, maxRows, types)
}

// Compile compiles a parsed statement. sql must be the text stmt was parsed
// from; it is used to recover the user's spelling of column labels.
// maxRows caps the number of rows returned, Unlimited for no cap.
// types holds the declared column types of each known table.
func (c *Compiler) Compile(sql string, stmt *sqlparser.Select, maxRows int, types model.TableTypes) (*Compiled, error) {
	s := State{sql: sql, stmt: stmt, props: c.props, maxRows: maxRows, types: types}
	s = s.
		Then(checkDistinct).
		Then(parseLimit).
		Then(resolveRelations).
		Then(parseSelect).
		Then(c.recoverCase).
		Then(parseDistinct).
		Then(parseWhereClause).
		Then(parseGroupBy).
		Then(parseHavingClause).
		Then(parseOrderByClause).
		Then(buildRequest)
	if err := s.Err(); err != nil {
		c.logger.Debug("compile failed", "sql", sql, "error", err)
		return nil, err
	}

	c.logger.Info("compiled query",
		"indices", s.request.Indices,
		"aggregating", s.aggregating(),
		"scroll", s.request.Scrolling(),
		"limit", s.limit,
	)
	return &Compiled{
		Request:   s.request,
		Heading:   s.heading,
		Having:    s.having,
		OrderBy:   s.orderings,
		Limit:     s.limit,
		Relations: s.relations,
		UseCache:  s.useCache,
		Scoring:   s.scoring,
	}, nil
}

// Limit combines a row cap with a SQL LIMIT. A negative value on either
// side means unset; when both are set the smaller wins.
func Limit(maxRows, sqlLimit int) int {
	switch {
	case maxRows < 0:
		return sqlLimit
	case sqlLimit < 0:
		return maxRows
	case maxRows < sqlLimit:
		return maxRows
	}
	return sqlLimit
}

func checkDistinct(s State) (State, error) {
	if s.stmt == nil {
		return s, newError(ErrNotSelect, "", "no statement to compile")
	}
	if s.stmt.Distinct != "" && len(s.stmt.GroupBy) > 0 {
		return s, newError(ErrDistinctGroupBy, "", "Unable to combine DISTINCT and GROUP BY within a single query")
	}
	return s, nil
}

func parseLimit(s State) (State, error) {
	sqlLimit := Unlimited
	if l := s.stmt.Limit; l != nil {
		if l.Offset != nil {
			return s, newError(ErrInvalidLimit, "LIMIT", "OFFSET is not supported")
		}
		val, ok := l.Rowcount.(*sqlparser.SQLVal)
		if !ok || val.Type != sqlparser.IntVal {
			return s, newError(ErrInvalidLimit, "LIMIT", "LIMIT must be an integer, got %s", sqlparser.String(l.Rowcount))
		}
		n, err := strconv.Atoi(string(val.Val))
		if err != nil || n < 0 {
			return s, newError(ErrInvalidLimit, "LIMIT", "invalid LIMIT %s", val.Val)
		}
		sqlLimit = n
	}
	s.limit = Limit(s.maxRows, sqlLimit)
	return s, nil
}

func resolveRelations(s State) (State, error) {
	rels, useCache, err := parseRelations(s.stmt.From, s.props.QueryCacheTable)
	if err != nil {
		return s, err
	}
	s.relations = rels
	s.useCache = useCache
	s.columns = typesForColumns(rels, s.types)
	return s, nil
}

func parseSelect(s State) (State, error) {
	p := newSelectParser(s.relations, s.types, s.columns)
	items, err := p.parse(s.stmt.SelectExprs)
	if err != nil {
		return s, err
	}
	s.heading = p.heading
	s.items = items
	s.scoring = p.scoring
	return s, nil
}

func (c *Compiler) recoverCase(s State) (State, error) {
	recovered, err := recoverLabels(s.sql, s.stmt.SelectExprs, s.items, s.heading)
	if err != nil {
		return s, err
	}
	if !recovered {
		c.logger.Debug("could not align select list with SQL text, keeping formatted labels", "sql", s.sql)
	}
	resolveTypes(s.heading, s.columns)
	return s, nil
}

func parseDistinct(s State) (State, error) {
	if s.stmt.Distinct == "" {
		return s, nil
	}
	agg, err := distinctAggregation(s.heading, s.props.FetchSize)
	if err != nil {
		return s, err
	}
	s.aggregation = agg
	return s, nil
}

func parseWhereClause(s State) (State, error) {
	where, err := parseWhere(s.stmt.Where, s.relations, s.columns)
	if err != nil {
		return s, err
	}
	s.where = where
	return s, nil
}

func parseGroupBy(s State) (State, error) {
	if s.aggregation != nil {
		return s, nil
	}
	grouped := len(s.stmt.GroupBy) > 0
	if !grouped && !s.heading.HasAggregates() {
		return s, nil
	}

	if s.stmt.Having != nil {
		if err := collectAggregates(s.stmt.Having.Expr, s.heading, s.relations); err != nil {
			return s, inClause(err, "HAVING")
		}
	}
	for _, order := range s.stmt.OrderBy {
		if err := collectAggregates(order.Expr, s.heading, s.relations); err != nil {
			return s, inClause(err, "ORDER BY")
		}
	}
	resolveTypes(s.heading, s.columns)

	switch {
	case grouped:
		keys, err := groupKeys(s.stmt.GroupBy, s.heading, s.relations, s.columns)
		if err != nil {
			return s, err
		}
		agg, err := groupAggregation(keys, s.heading, s.props.FetchSize)
		if err != nil {
			return s, err
		}
		s.aggregation = agg
	case s.heading.AggregateOnly():
		s.aggregation = implicitAggregation(s.where, s.heading)
	default:
		for _, c := range s.heading.Visible() {
			if c.Op == model.OpHighlight {
				return s, newError(ErrNotGrouped, "SELECT", "HIGHLIGHT cannot be combined with aggregation")
			}
			if c.Op == model.OpNone {
				return s, newError(ErrNotGrouped, "SELECT", "column %s must appear in GROUP BY when aggregates are selected", c.Label)
			}
		}
		return s, newError(ErrNotGrouped, "SELECT", "aggregates cannot be mixed with plain columns without GROUP BY")
	}
	return s, nil
}

func parseHavingClause(s State) (State, error) {
	if s.stmt.Having == nil {
		return s, nil
	}
	if !s.aggregating() {
		return s, newError(ErrNotGrouped, "HAVING", "HAVING requires GROUP BY or an aggregate projection")
	}
	having, err := parseHaving(s.stmt.Having, s.heading, s.relations)
	if err != nil {
		return s, err
	}
	s.having = having
	return s, nil
}

func parseOrderByClause(s State) (State, error) {
	orderings, err := parseOrderBy(s.stmt.OrderBy, s.heading, s.relations, s.columns, s.aggregating())
	if err != nil {
		return s, err
	}
	s.orderings = orderings
	return s, nil
}

// buildRequest assembles the backend request and freezes the heading.
func buildRequest(s State) (State, error) {
	indices := make([]string, len(s.relations))
	for i, rel := range s.relations {
		indices[i] = rel.Table
	}
	req := dsl.NewRequest(indices...)
	props := s.props

	if s.aggregating() {
		req.Query = s.where
		req.Aggregation = s.aggregation
		req.Size = 0
	} else {
		if s.scoring {
			req.Query = s.where
		} else {
			req.PostFilter = s.where
		}
		for _, o := range s.orderings {
			req.AddSort(o.Field, o.Desc)
		}
		switch {
		case s.limit > 0 && s.limit < props.FetchSize:
			req.Size = s.limit
		case len(s.orderings) == 0:
			req.Size = props.FetchSize
			req.AddSort(dsl.DocOrder, false)
			req.Scroll = props.ScrollTimeout()
		default:
			req.Size = props.FetchSize
		}
	}

	if hs := s.heading.Highlights(); len(hs) > 0 {
		fields := make([]string, len(hs))
		for i, c := range hs {
			fields[i] = c.Field
		}
		req.Highlight = &dsl.Highlight{
			Fields:            fields,
			FragmentSize:      props.FragmentSize,
			NumberOfFragments: props.FragmentNumber,
		}
	}
	req.RequestCache = s.useCache
	req.Timeout = props.QueryTimeout()

	if err := dsl.Validate(req).Err(); err != nil {
		return s, newError(ErrInvalidRequest, "", "%v", err)
	}
	s.heading.Freeze()
	s.request = req
	return s, nil
}
