// Package elastic implements the search backend on Elasticsearch.
//
// Requests are rendered from the dsl package and sent through the
// olivere/elastic client's raw request API, so the query DSL produced by
// the compiler reaches the cluster unchanged.
package elastic

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/olivere/elastic/v7"

	"github.com/roach88/sql4go/internal/backend"
	"github.com/roach88/sql4go/internal/dsl"
)

const scrollPath = "/_search/scroll"

// Dial creates an Elasticsearch client for hosts. Sniffing and background
// health checks are disabled so the client works against single nodes and
// proxies.
func Dial(hosts ...string) (*elastic.Client, error) {
	es, err := elastic.NewClient(
		elastic.SetURL(hosts...),
		elastic.SetSniff(false),
		elastic.SetHealthcheck(false),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", strings.Join(hosts, ","), err)
	}
	return es, nil
}

// Client is a backend.Client on top of an Elasticsearch cluster.
type Client struct {
	es     *elastic.Client
	logger *slog.Logger
}

var _ backend.Client = (*Client)(nil)

// NewClient wraps es. A nil logger uses slog.Default().
func NewClient(es *elastic.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{es: es, logger: logger}
}

// Search runs req against its indices.
func (c *Client) Search(ctx context.Context, req *dsl.Request) (*backend.Response, error) {
	body, err := req.Body()
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	for k, v := range req.Params() {
		params.Set(k, v)
	}
	path := indexPath(req.Indices) + "/_search"
	c.logger.Debug("search", "path", path, "params", params.Encode())

	res, err := c.es.PerformRequest(ctx, elastic.PerformRequestOptions{
		Method: http.MethodPost,
		Path:   path,
		Params: params,
		Body:   body,
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", strings.Join(req.Indices, ","), err)
	}
	return DecodeResponse(res.Body)
}

// Scroll fetches the next page of scrollID.
func (c *Client) Scroll(ctx context.Context, scrollID string, ttl time.Duration) (*backend.Response, error) {
	c.logger.Debug("scroll", "ttl", ttl)
	res, err := c.es.PerformRequest(ctx, elastic.PerformRequestOptions{
		Method: http.MethodPost,
		Path:   scrollPath,
		Body: map[string]any{
			"scroll":    dsl.FormatTTL(ttl),
			"scroll_id": scrollID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scroll: %w", err)
	}
	return DecodeResponse(res.Body)
}

// ClearScroll releases scrollID. A scroll that already expired is not an
// error.
func (c *Client) ClearScroll(ctx context.Context, scrollID string) error {
	c.logger.Debug("clear scroll")
	_, err := c.es.PerformRequest(ctx, elastic.PerformRequestOptions{
		Method: http.MethodDelete,
		Path:   scrollPath,
		Body:   map[string]any{"scroll_id": []string{scrollID}},
	})
	if err != nil && !elastic.IsNotFound(err) {
		return fmt.Errorf("clear scroll: %w", err)
	}
	return nil
}

func indexPath(indices []string) string {
	escaped := make([]string, len(indices))
	for i, idx := range indices {
		escaped[i] = url.PathEscape(idx)
	}
	return "/" + strings.Join(escaped, ",")
}
