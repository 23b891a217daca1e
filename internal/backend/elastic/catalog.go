package elastic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/olivere/elastic/v7"
	"github.com/patrickmn/go-cache"

	"github.com/roach88/sql4go/internal/backend"
	"github.com/roach88/sql4go/internal/model"
)

// DefaultMappingTTL is how long fetched mappings are reused.
const DefaultMappingTTL = 5 * time.Minute

// Catalog reads column types from index mappings and caches them.
type Catalog struct {
	es    *elastic.Client
	cache *cache.Cache
}

var _ backend.Catalog = (*Catalog)(nil)

// NewCatalog creates a catalog whose entries expire after ttl.
func NewCatalog(es *elastic.Client, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = DefaultMappingTTL
	}
	return &Catalog{es: es, cache: cache.New(ttl, 2*ttl)}
}

// Types returns the column types of each table. A table may be an index,
// an alias or a pattern; the mappings of every index it resolves to are
// merged. Unknown tables are omitted.
func (c *Catalog) Types(ctx context.Context, tables ...string) (model.TableTypes, error) {
	out := make(model.TableTypes, len(tables))
	for _, table := range tables {
		if cached, ok := c.cache.Get(table); ok {
			out[table] = cached.(model.ColumnTypes)
			continue
		}
		cols, err := c.fetch(ctx, table)
		if err != nil {
			return nil, err
		}
		if cols == nil {
			continue
		}
		c.cache.SetDefault(table, cols)
		out[table] = cols
	}
	return out, nil
}

// Invalidate drops the cached mapping of table.
func (c *Catalog) Invalidate(table string) {
	c.cache.Delete(table)
}

type mappingResponse map[string]struct {
	Mappings struct {
		Properties map[string]property `json:"properties"`
	} `json:"mappings"`
}

type property struct {
	Type       string              `json:"type"`
	Properties map[string]property `json:"properties"`
}

func (c *Catalog) fetch(ctx context.Context, table string) (model.ColumnTypes, error) {
	res, err := c.es.PerformRequest(ctx, elastic.PerformRequestOptions{
		Method: http.MethodGet,
		Path:   "/" + url.PathEscape(table) + "/_mapping",
	})
	if elastic.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mapping of %s: %w", table, err)
	}

	var mappings mappingResponse
	if err := json.Unmarshal(res.Body, &mappings); err != nil {
		return nil, fmt.Errorf("decode mapping of %s: %w", table, err)
	}
	if len(mappings) == 0 {
		return nil, nil
	}
	cols := make(model.ColumnTypes)
	for _, index := range mappings {
		flatten("", index.Mappings.Properties, cols)
	}
	return cols, nil
}

// flatten records every property under its dotted path. Object and nested
// properties are recorded themselves and recursed into.
func flatten(prefix string, props map[string]property, out model.ColumnTypes) {
	for name, p := range props {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		out[path] = sqlType(p)
		if len(p.Properties) > 0 {
			flatten(path, p.Properties, out)
		}
	}
}

// sqlType maps an Elasticsearch field type to a SQL type.
func sqlType(p property) model.SQLType {
	switch p.Type {
	case "text", "keyword", "constant_keyword", "wildcard", "ip":
		return model.TypeVarchar
	case "long", "unsigned_long":
		return model.TypeBigInt
	case "integer":
		return model.TypeInteger
	case "short":
		return model.TypeSmallInt
	case "byte":
		return model.TypeTinyInt
	case "double":
		return model.TypeDouble
	case "float", "half_float", "scaled_float":
		return model.TypeFloat
	case "boolean":
		return model.TypeBoolean
	case "date", "date_nanos":
		return model.TypeTimestamp
	case "nested":
		return model.TypeArray
	case "object", "":
		if len(p.Properties) > 0 {
			return model.TypeObject
		}
	}
	return model.TypeOther
}
