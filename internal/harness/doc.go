// Package harness runs SQL scenarios end to end against the local backend.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	properties:
//	  fetch_size: 2
//	columns:
//	  products: { stock: INTEGER }
//	documents:
//	  products:
//	    - { _id: "1", name: Boot, category: shoes, price: 10.5 }
//	steps:
//	  - sql: "SELECT category, SUM(price) AS total FROM products GROUP BY category"
//	    expect:
//	      columns: [category, total]
//	      rows:
//	        - [shoes, 10.5]
//	      pages: 1
//	  - sql: "SELECT nope FROM"
//	    expect:
//	      error: E200
//
// Every step runs on a fresh query state. Rows of all pages are
// concatenated before comparison; numbers compare by value regardless of
// their Go type. An expected error is a compile error code (E2xx) or a
// query error code such as NO_RESULT.
//
// After each step the harness checks that no scroll is left open.
//
// # Deterministic Testing
//
// Scenarios run with a fixed query id, a manual clock and an in-memory
// SQLite database, so the recorded trace is identical across runs and can
// be compared against golden files.
package harness
