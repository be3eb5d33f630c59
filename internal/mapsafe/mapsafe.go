// Package mapsafe reads typed values out of loosely typed parameter maps, as
// produced by YAML config files, JSON bodies and form fields.
package mapsafe

import (
	"strconv"
	"strings"
)

// Get returns m[key] converted to the type of fallback. Numbers convert
// between integer and float kinds, and numeric or boolean strings are parsed.
// A missing key or an unconvertible value yields fallback.
func Get[T any](m map[string]any, key string, fallback T) T {
	val, ok := m[key]
	if !ok || val == nil {
		return fallback
	}

	var out any
	switch any(fallback).(type) {
	case int:
		if f, ok := toFloat(val); ok {
			out = int(f)
		}
	case float64:
		if f, ok := toFloat(val); ok {
			out = f
		}
	case float32:
		if f, ok := toFloat(val); ok {
			out = float32(f)
		}
	case string:
		switch x := val.(type) {
		case string:
			out = x
		case []byte:
			out = string(x)
		}
	case bool:
		switch x := val.(type) {
		case bool:
			out = x
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(x)); err == nil {
				out = b
			}
		}
	default:
		if v, ok := val.(T); ok {
			return v
		}
	}

	if v, ok := out.(T); ok {
		return v
	}
	return fallback
}

// Merge returns a new map holding base overlaid with every layer in order.
func Merge(base map[string]any, layers ...map[string]any) map[string]any {
	size := len(base)
	for _, l := range layers {
		size += len(l)
	}

	merged := make(map[string]any, size)
	for k, v := range base {
		merged[k] = v
	}
	for _, l := range layers {
		for k, v := range l {
			merged[k] = v
		}
	}

	return merged
}

func toFloat(val any) (float64, bool) {
	switch x := val.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
