package dsl

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// QuerySource renders a query as an Elasticsearch query DSL object.
func QuerySource(q Query) (map[string]any, error) {
	switch n := q.(type) {
	case MatchAll:
		return map[string]any{"match_all": map[string]any{}}, nil
	case Term:
		return map[string]any{"term": map[string]any{n.Field: n.Value}}, nil
	case Terms:
		return map[string]any{"terms": map[string]any{n.Field: n.Values}}, nil
	case Range:
		bounds := make(map[string]any)
		if n.GT != nil {
			bounds["gt"] = n.GT
		}
		if n.GTE != nil {
			bounds["gte"] = n.GTE
		}
		if n.LT != nil {
			bounds["lt"] = n.LT
		}
		if n.LTE != nil {
			bounds["lte"] = n.LTE
		}
		return map[string]any{"range": map[string]any{n.Field: bounds}}, nil
	case Exists:
		return map[string]any{"exists": map[string]any{"field": n.Field}}, nil
	case Wildcard:
		return map[string]any{"wildcard": map[string]any{n.Field: map[string]any{"value": n.Pattern}}}, nil
	case IDs:
		return map[string]any{"ids": map[string]any{"values": n.Values}}, nil
	case QueryString:
		return map[string]any{"query_string": map[string]any{"query": n.Query}}, nil
	case Bool:
		body := make(map[string]any)
		for key, qs := range map[string][]Query{
			"must":     n.Must,
			"filter":   n.Filter,
			"should":   n.Should,
			"must_not": n.MustNot,
		} {
			if len(qs) == 0 {
				continue
			}
			list := make([]any, len(qs))
			for i, sub := range qs {
				src, err := QuerySource(sub)
				if err != nil {
					return nil, err
				}
				list[i] = src
			}
			body[key] = list
		}
		if len(n.Should) > 0 && n.MinimumShouldMatch > 0 {
			body["minimum_should_match"] = n.MinimumShouldMatch
		}
		return map[string]any{"bool": body}, nil
	case nil:
		return nil, fmt.Errorf("cannot render nil query")
	default:
		return nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// AggregationSource renders an aggregation as a named entry suitable for
// an "aggs" object.
func AggregationSource(a Aggregation) (map[string]any, error) {
	var body map[string]any
	switch n := a.(type) {
	case TermsAgg:
		terms := map[string]any{"field": n.Field}
		if n.Size > 0 {
			terms["size"] = n.Size
		}
		body = map[string]any{"terms": terms}
	case FilterAgg:
		filter := n.Filter
		if filter == nil {
			filter = MatchAll{}
		}
		src, err := QuerySource(filter)
		if err != nil {
			return nil, err
		}
		body = map[string]any{"filter": src}
	case MetricAgg:
		body = map[string]any{string(n.Kind): map[string]any{"field": n.Field}}
	case nil:
		return nil, fmt.Errorf("cannot render nil aggregation")
	default:
		return nil, fmt.Errorf("unsupported aggregation type: %T", a)
	}

	if subs := SubAggregations(a); len(subs) > 0 {
		children := make(map[string]any, len(subs))
		for _, sub := range subs {
			src, err := AggregationSource(sub)
			if err != nil {
				return nil, err
			}
			for k, v := range src {
				children[k] = v
			}
		}
		body["aggs"] = children
	}
	return map[string]any{a.AggName(): body}, nil
}

// Body renders the request body sent to the search endpoint.
func (r *Request) Body() (map[string]any, error) {
	body := map[string]any{"size": r.Size}
	if r.Query != nil {
		src, err := QuerySource(r.Query)
		if err != nil {
			return nil, fmt.Errorf("render query: %w", err)
		}
		body["query"] = src
	}
	if r.PostFilter != nil {
		src, err := QuerySource(r.PostFilter)
		if err != nil {
			return nil, fmt.Errorf("render post_filter: %w", err)
		}
		body["post_filter"] = src
	}
	if r.Aggregation != nil {
		src, err := AggregationSource(r.Aggregation)
		if err != nil {
			return nil, fmt.Errorf("render aggregation: %w", err)
		}
		body["aggs"] = src
	}
	if len(r.Sorts) > 0 {
		sorts := make([]any, len(r.Sorts))
		for i, s := range r.Sorts {
			order := "asc"
			if s.Desc {
				order = "desc"
			}
			sorts[i] = map[string]any{s.Field: map[string]any{"order": order}}
		}
		body["sort"] = sorts
	}
	if r.Highlight != nil && len(r.Highlight.Fields) > 0 {
		fields := make(map[string]any, len(r.Highlight.Fields))
		for _, f := range r.Highlight.Fields {
			fields[f] = map[string]any{}
		}
		body["highlight"] = map[string]any{
			"fields":              fields,
			"fragment_size":       r.Highlight.FragmentSize,
			"number_of_fragments": r.Highlight.NumberOfFragments,
		}
	}
	if r.Timeout > 0 {
		body["timeout"] = strconv.FormatInt(r.Timeout.Milliseconds(), 10) + "ms"
	}
	return body, nil
}

// Params returns the URL parameters of the search call.
func (r *Request) Params() map[string]string {
	params := make(map[string]string)
	if r.Scrolling() {
		params["scroll"] = FormatTTL(r.Scroll)
	}
	if r.RequestCache {
		params["request_cache"] = "true"
	}
	return params
}

// FormatTTL renders a duration in the backend's time unit syntax.
func FormatTTL(d time.Duration) string {
	return strconv.FormatInt(int64(d/time.Second), 10) + "s"
}

// Explain renders the indices, URL parameters and body as indented JSON.
func (r *Request) Explain() ([]byte, error) {
	body, err := r.Body()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(map[string]any{
		"indices": r.Indices,
		"params":  r.Params(),
		"body":    body,
	}, "", "  ")
}
