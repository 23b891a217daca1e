package result

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/sql4go/internal/model"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Convert coerces a backend value to the Go representation of typ:
// int64 for integer types, float64 for FLOAT and DOUBLE, bool, string and
// time.Time. Values that cannot be coerced are returned unchanged, and
// OTHER, OBJECT and ARRAY values are never coerced.
func Convert(v any, typ model.SQLType) any {
	if v == nil {
		return nil
	}
	switch typ {
	case model.TypeTinyInt, model.TypeSmallInt, model.TypeInteger, model.TypeBigInt:
		return toInt(v)
	case model.TypeFloat, model.TypeDouble:
		if f, ok := model.ToFloat(v); ok {
			return f
		}
	case model.TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b
		case string:
			if parsed, err := strconv.ParseBool(b); err == nil {
				return parsed
			}
		}
		if f, ok := model.ToFloat(v); ok {
			return f != 0
		}
	case model.TypeVarchar:
		switch s := v.(type) {
		case string:
			return s
		case []any, map[string]any:
			return v
		}
		return fmt.Sprint(v)
	case model.TypeDate, model.TypeTimestamp:
		return toTime(v)
	}
	return v
}

func toInt(v any) any {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	f, ok := model.ToFloat(v)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return v
	}
	return int64(f)
}

// toTime accepts ISO-8601 text and epoch milliseconds.
func toTime(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC()
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC()
		}
		return t
	}
	if f, ok := model.ToFloat(v); ok {
		return time.UnixMilli(int64(f)).UTC()
	}
	return v
}
