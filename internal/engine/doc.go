// Package engine executes compiled SQL queries against a search backend.
//
// A QueryState owns one compiled request at a time and walks it through
// its lifecycle:
//
//	Uncompiled -> Ready -> HasResult -> Exhausted
//	    any state -> Closed (terminal)
//
// Execute issues the request and materializes the first page. MoreResults
// advances the backend scroll and materializes the next page until the
// result is exhausted. Aggregated responses get the residual HAVING
// filter, ORDER BY and computed columns applied client-side; hit responses
// only need computed columns because filtering and sorting ran in the
// backend.
//
// RESOURCES:
//
// A scroll id is a backend-held cursor. The state releases it exactly once:
// when the result is exhausted, when Close is called, when a new request
// replaces the old one, or when a fetch fails.
//
// A QueryState is not safe for concurrent use. Run one state per logical
// statement.
package engine
