package dsl

import "time"

// DocOrder is the sort field meaning "index order", the cheapest order for
// scrolling.
const DocOrder = "_doc"

// Sort is a single sort directive.
type Sort struct {
	Field string
	Desc  bool
}

// Highlight requests highlighted fragments for Fields.
type Highlight struct {
	Fields            []string
	FragmentSize      int
	NumberOfFragments int
}

// Request is a complete search request.
//
// Exactly one of Query and PostFilter is normally set: Query when the
// matching should be scored, PostFilter for plain filtering. Aggregation
// always runs against Query.
type Request struct {
	Indices     []string
	Query       Query
	PostFilter  Query
	Aggregation Aggregation
	Sorts       []Sort
	Highlight   *Highlight

	// Size is the page size. Zero means no hits are returned, which is the
	// case for aggregating requests.
	Size int

	// Scroll, when non-zero, opens a scroll cursor kept alive for this long.
	Scroll time.Duration

	RequestCache bool
	Timeout      time.Duration
}

// NewRequest creates a request against indices matching every document.
func NewRequest(indices ...string) *Request {
	return &Request{Indices: indices}
}

// Scrolling reports whether executing the request opens a scroll cursor.
func (r *Request) Scrolling() bool {
	return r.Scroll > 0
}

// Aggregating reports whether the request carries an aggregation.
func (r *Request) Aggregating() bool {
	return r.Aggregation != nil
}

// EffectiveQuery returns the query that decides which documents match,
// whichever slot it was placed in. It never returns nil.
func (r *Request) EffectiveQuery() Query {
	switch {
	case r.Query != nil && r.PostFilter != nil:
		return And(r.Query, r.PostFilter)
	case r.Query != nil:
		return r.Query
	case r.PostFilter != nil:
		return r.PostFilter
	}
	return MatchAll{}
}

// AddSort appends a sort directive.
func (r *Request) AddSort(field string, desc bool) {
	r.Sorts = append(r.Sorts, Sort{Field: field, Desc: desc})
}
