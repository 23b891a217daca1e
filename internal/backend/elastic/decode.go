package elastic

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/olivere/elastic/v7"

	"github.com/roach88/sql4go/internal/backend"
)

// Bucket and metric fields that are never sub-aggregations.
var reservedAggregationKeys = map[string]bool{
	"key":                         true,
	"key_as_string":               true,
	"doc_count":                   true,
	"doc_count_error_upper_bound": true,
	"sum_other_doc_count":         true,
	"value":                       true,
	"value_as_string":             true,
	"buckets":                     true,
	"meta":                        true,
}

// DecodeResponse converts a search or scroll response body.
func DecodeResponse(body []byte) (*backend.Response, error) {
	var sr elastic.SearchResult
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if sr.Error != nil {
		return nil, fmt.Errorf("search failed: %s: %s", sr.Error.Type, sr.Error.Reason)
	}

	resp := &backend.Response{ScrollID: sr.ScrollId}
	if sr.Hits != nil {
		if sr.Hits.TotalHits != nil {
			resp.Total = sr.Hits.TotalHits.Value
		}
		resp.Hits = make([]backend.Hit, 0, len(sr.Hits.Hits))
		for _, h := range sr.Hits.Hits {
			hit := backend.Hit{
				ID:        h.Id,
				Index:     h.Index,
				Type:      h.Type,
				Score:     h.Score,
				Highlight: map[string][]string(h.Highlight),
			}
			if len(h.Source) > 0 {
				src, err := decodeObject(h.Source)
				if err != nil {
					return nil, fmt.Errorf("decode _source of %s: %w", h.Id, err)
				}
				hit.Source = src
			}
			resp.Hits = append(resp.Hits, hit)
		}
	}
	if len(sr.Aggregations) > 0 {
		aggs, err := decodeAggregations(map[string]json.RawMessage(sr.Aggregations))
		if err != nil {
			return nil, err
		}
		resp.Aggregations = aggs
	}
	return resp, nil
}

func decodeAggregations(raw map[string]json.RawMessage) (backend.Aggregations, error) {
	out := make(backend.Aggregations, len(raw))
	for name, msg := range raw {
		agg, err := decodeAggregation(msg)
		if err != nil {
			return nil, fmt.Errorf("decode aggregation %q: %w", name, err)
		}
		out[name] = agg
	}
	return out, nil
}

func decodeAggregation(msg json.RawMessage) (*backend.Aggregation, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(msg, &fields); err != nil {
		return nil, err
	}
	agg := &backend.Aggregation{}
	if v, ok := fields["value"]; ok {
		if err := json.Unmarshal(v, &agg.Value); err != nil {
			return nil, err
		}
	}
	if v, ok := fields["doc_count"]; ok {
		if err := json.Unmarshal(v, &agg.DocCount); err != nil {
			return nil, err
		}
	}
	if v, ok := fields["buckets"]; ok {
		var buckets []map[string]json.RawMessage
		if err := json.Unmarshal(v, &buckets); err != nil {
			return nil, fmt.Errorf("buckets: %w", err)
		}
		for _, b := range buckets {
			bucket, err := decodeBucket(b)
			if err != nil {
				return nil, err
			}
			agg.Buckets = append(agg.Buckets, bucket)
		}
	}
	sub, err := subAggregations(fields)
	if err != nil {
		return nil, err
	}
	agg.Sub = sub
	return agg, nil
}

func decodeBucket(fields map[string]json.RawMessage) (*backend.Bucket, error) {
	b := &backend.Bucket{}
	if v, ok := fields["key"]; ok {
		key, err := decodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("bucket key: %w", err)
		}
		b.Key = key
	}
	if v, ok := fields["doc_count"]; ok {
		if err := json.Unmarshal(v, &b.DocCount); err != nil {
			return nil, err
		}
	}
	sub, err := subAggregations(fields)
	if err != nil {
		return nil, err
	}
	b.Aggregations = sub
	return b, nil
}

// subAggregations decodes every object-valued field that is not one of the
// reserved bucket or metric fields.
func subAggregations(fields map[string]json.RawMessage) (backend.Aggregations, error) {
	var out backend.Aggregations
	for name, v := range fields {
		if reservedAggregationKeys[name] {
			continue
		}
		if trimmed := bytes.TrimSpace(v); len(trimmed) == 0 || trimmed[0] != '{' {
			continue
		}
		agg, err := decodeAggregation(v)
		if err != nil {
			return nil, fmt.Errorf("decode aggregation %q: %w", name, err)
		}
		if out == nil {
			out = make(backend.Aggregations)
		}
		out[name] = agg
	}
	return out, nil
}

func decodeObject(msg json.RawMessage) (map[string]any, error) {
	v, err := decodeValue(msg)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %T", v)
	}
	return obj, nil
}

// decodeValue decodes JSON keeping integers exact: whole numbers become
// int64 and other numbers float64.
func decodeValue(msg json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalize(v), nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	}
	return v
}
