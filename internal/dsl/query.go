package dsl

// Query is a search predicate.
//
// This is a sealed interface - only types in this package implement it.
// The marker method enables exhaustive type switches in backends.
//
// Query types:
//   - MatchAll: every document
//   - Term, Terms: exact value match
//   - Range: bounded comparison
//   - Exists: field present and not null
//   - Wildcard: glob pattern with * and ?
//   - IDs: document id match
//   - QueryString: free text search
//   - Bool: boolean composition
type Query interface {
	queryNode()
}

// MatchAll matches every document.
type MatchAll struct{}

func (MatchAll) queryNode() {}

// Term matches documents whose field equals Value exactly.
type Term struct {
	Field string
	Value any
}

func (Term) queryNode() {}

// Terms matches documents whose field equals any of Values.
type Terms struct {
	Field  string
	Values []any
}

func (Terms) queryNode() {}

// Range matches documents whose field lies within the bounds.
// Nil bounds are open.
type Range struct {
	Field string
	GT    any
	GTE   any
	LT    any
	LTE   any
}

func (Range) queryNode() {}

// Exists matches documents where field has a non-null value.
type Exists struct {
	Field string
}

func (Exists) queryNode() {}

// Wildcard matches a glob pattern where * matches any run of characters
// and ? matches exactly one.
type Wildcard struct {
	Field   string
	Pattern string
}

func (Wildcard) queryNode() {}

// IDs matches documents by id.
type IDs struct {
	Values []string
}

func (IDs) queryNode() {}

// QueryString is a free-text query over all fields.
type QueryString struct {
	Query string
}

func (QueryString) queryNode() {}

// Bool combines queries.
//
// Semantics: all Must and Filter queries hold, no MustNot query holds and,
// when Should is non-empty, at least MinimumShouldMatch (default 1) of the
// Should queries hold.
type Bool struct {
	Must               []Query
	Filter             []Query
	Should             []Query
	MustNot            []Query
	MinimumShouldMatch int
}

func (Bool) queryNode() {}

// Not is a convenience constructor for a single negation.
func Not(q Query) Query {
	return Bool{MustNot: []Query{q}}
}

// And combines queries conjunctively, flattening nested conjunctions.
func And(qs ...Query) Query {
	var must []Query
	for _, q := range qs {
		if b, ok := q.(Bool); ok && len(b.Should) == 0 && len(b.Filter) == 0 && len(b.MustNot) == 0 {
			must = append(must, b.Must...)
			continue
		}
		must = append(must, q)
	}
	if len(must) == 1 {
		return must[0]
	}
	return Bool{Must: must}
}

// Or combines queries disjunctively, flattening nested disjunctions.
func Or(qs ...Query) Query {
	var should []Query
	for _, q := range qs {
		if b, ok := q.(Bool); ok && len(b.Must) == 0 && len(b.Filter) == 0 && len(b.MustNot) == 0 && b.MinimumShouldMatch <= 1 {
			should = append(should, b.Should...)
			continue
		}
		should = append(should, q)
	}
	if len(should) == 1 {
		return should[0]
	}
	return Bool{Should: should, MinimumShouldMatch: 1}
}
