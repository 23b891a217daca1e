package compiler

import (
	"github.com/xwb1989/sqlparser"

	"github.com/roach88/sql4go/internal/config"
	"github.com/roach88/sql4go/internal/dsl"
	"github.com/roach88/sql4go/internal/model"
)

// State accumulates the products of each compilation step.
//
// State is a plain value: each step receives the current State and returns
// the next one. Once a step fails the error is recorded and every later
// step is skipped, so the first error is the one reported.
type State struct {
	sql     string
	stmt    *sqlparser.Select
	props   config.Props
	maxRows int

	types     model.TableTypes
	columns   model.ColumnTypes
	relations []model.TableRelation
	useCache  bool

	heading *model.Heading
	// items maps each select expression to the heading column it produced,
	// -1 for wildcards.
	items   []int
	scoring bool

	limit       int
	where       dsl.Query
	aggregation dsl.Aggregation
	having      model.Comparison
	orderings   []model.OrderBy
	request     *dsl.Request

	err error
}

// step is one compilation stage.
type step func(State) (State, error)

// Then runs fn unless an earlier step failed.
func (s State) Then(fn step) State {
	if s.err != nil {
		return s
	}
	next, err := fn(s)
	if err != nil {
		s.err = err
		return s
	}
	return next
}

// Err returns the first error recorded, if any.
func (s State) Err() error { return s.err }

// Heading returns the heading built so far.
func (s State) Heading() *model.Heading { return s.heading }

// Relations returns the resolved FROM relations.
func (s State) Relations() []model.TableRelation { return s.relations }

// aggregating reports whether an aggregation was synthesized.
func (s State) aggregating() bool { return s.aggregation != nil }
