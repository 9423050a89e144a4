package analytics

import (
	"time"
)

// Row-to-record field readers. The executor hands back field->value maps
// whose concrete types depend on the column type (bigint -> int64, float8 ->
// float64, date/timestamp -> time.Time); aggregates are cast to a stable
// type in the SQL so these stay small.

func fieldString(row map[string]any, key string) string {
	if v, ok := row[key].(string); ok {
		return v
	}
	return ""
}

func fieldInt64(row map[string]any, key string) int64 {
	switch v := row[key].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func fieldInt64Ptr(row map[string]any, key string) *int64 {
	if row[key] == nil {
		return nil
	}
	v := fieldInt64(row, key)
	return &v
}

func fieldFloat(row map[string]any, key string) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

func fieldBool(row map[string]any, key string) bool {
	if v, ok := row[key].(bool); ok {
		return v
	}
	return false
}

func fieldTime(row map[string]any, key string) time.Time {
	if v, ok := row[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}

func fieldTimePtr(row map[string]any, key string) *time.Time {
	if v, ok := row[key].(time.Time); ok {
		return &v
	}
	return nil
}
