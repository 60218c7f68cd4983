package adapters

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// asMap returns v as a JSON object, or nil.
func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// asList returns v as a JSON array, or nil.
func asList(v any) []any {
	l, _ := v.([]any)
	return l
}

// unwrapList accepts either a bare array or an object carrying the array under
// one of the given field names.
func unwrapList(raw any, fields ...string) ([]any, error) {
	if raw == nil {
		return nil, errMissing
	}
	if list, ok := raw.([]any); ok {
		return list, nil
	}
	obj := asMap(raw)
	if obj == nil {
		return nil, fmt.Errorf("expected array or object, got %T", raw)
	}
	for _, field := range fields {
		if v, ok := obj[field]; ok {
			if list, ok := v.([]any); ok {
				return list, nil
			}
			if v == nil {
				return []any{}, nil
			}
			return nil, fmt.Errorf("field %q is %T, expected array", field, v)
		}
	}
	return nil, fmt.Errorf("object has none of %s", strings.Join(fields, ", "))
}

// unwrapData returns raw.data when it is an object, otherwise raw itself.
func unwrapData(raw any) map[string]any {
	obj := asMap(raw)
	if data := asMap(obj["data"]); data != nil {
		return data
	}
	return obj
}

// toFloat coerces JSON numbers and numeric strings.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// intField returns the first of fields that coerces to a number.
func intField(obj map[string]any, fields ...string) int64 {
	for _, field := range fields {
		if i, ok := toInt(obj[field]); ok {
			return i
		}
	}
	return 0
}

func floatField(obj map[string]any, fields ...string) float64 {
	for _, field := range fields {
		if f, ok := toFloat(obj[field]); ok {
			return f
		}
	}
	return 0
}

// toString coerces ids that may arrive as numbers or strings.
func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case map[string]any, []any:
		return ""
	}
	return fmt.Sprint(v)
}

// stringField returns the first non-empty string form among fields.
func stringField(obj map[string]any, fields ...string) string {
	for _, field := range fields {
		if s := toString(obj[field]); s != "" {
			return s
		}
	}
	return ""
}

// toBool follows JavaScript truthiness for the scalar shapes the backend uses.
func toBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b != "" && b != "false" && b != "0"
	case nil:
		return false
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}

func toTime(v any) time.Time {
	switch t := v.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC()
			}
		}
	case json.Number, float64, int64:
		if ms, ok := toInt(t); ok && ms > 0 {
			return time.UnixMilli(ms).UTC()
		}
	}
	return time.Time{}
}
