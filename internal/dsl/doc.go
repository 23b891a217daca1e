// Package dsl defines the backend-neutral search request produced by the
// compiler.
//
// The request is modeled on the Elasticsearch query DSL: a boolean query
// tree, an optional aggregation tree, sort keys, highlight settings and
// paging. Queries and aggregations are sealed interfaces so that each
// backend can switch over the variants exhaustively:
//
//   - Elasticsearch renders the request with Source into its JSON body
//   - the local SQLite backend compiles it to parameterized SQL
//
// Source output is deterministic (maps marshal with sorted keys), which
// makes explain output suitable for golden files.
package dsl
