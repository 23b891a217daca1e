// Package backend defines the boundary between the query engine and a
// search backend.
//
// A backend understands three calls: an initial search, a scroll advance
// and a scroll release. Responses carry either document hits or a decoded
// aggregation bucket tree; the engine decides which by inspecting them.
package backend

import (
	"context"
	"time"

	"github.com/roach88/sql4go/internal/dsl"
	"github.com/roach88/sql4go/internal/model"
)

// Client issues requests against a search backend.
//
// Implementations must be safe for use by one QueryState at a time; a
// client shared by several states must synchronize internally.
type Client interface {
	// Search runs req. When req scrolls, the response carries a scroll id.
	Search(ctx context.Context, req *dsl.Request) (*Response, error)

	// Scroll fetches the next page of an open scroll and extends its
	// keep-alive by ttl.
	Scroll(ctx context.Context, scrollID string, ttl time.Duration) (*Response, error)

	// ClearScroll releases a scroll.
	ClearScroll(ctx context.Context, scrollID string) error
}

// Catalog provides the declared column types of tables.
type Catalog interface {
	// Types returns the column types of each named table. Tables the
	// backend does not know are omitted from the result.
	Types(ctx context.Context, tables ...string) (model.TableTypes, error)
}

// Response is one page of a search or scroll.
type Response struct {
	// Total is the number of documents matching the query, not the
	// number of hits in this page.
	Total int64

	Hits     []Hit
	ScrollID string

	Aggregations Aggregations
}

// Aggregated reports whether the response carries aggregation results.
func (r *Response) Aggregated() bool {
	return len(r.Aggregations) > 0
}

// Hit is one matching document.
type Hit struct {
	ID        string
	Index     string
	Type      string
	Score     *float64
	Source    map[string]any
	Highlight map[string][]string
}

// Aggregations maps aggregation names to results.
type Aggregations map[string]*Aggregation

// Aggregation is the result of one named aggregation.
//
// Metric aggregations set Value (nil when the backend reports null).
// Single-bucket aggregations set DocCount and Sub. Multi-bucket
// aggregations set Buckets.
type Aggregation struct {
	Value    *float64
	DocCount int64
	Sub      Aggregations
	Buckets  []*Bucket
}

// Bucket is one group of a multi-bucket aggregation.
type Bucket struct {
	Key          any
	DocCount     int64
	Aggregations Aggregations
}
