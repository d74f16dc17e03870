package parsing

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Helpers for walking decoded JSON (map[string]any / []any trees) whose shape varies by source.

func field(v any, keys ...string) any {
	cur := v
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[k]
	}
	return cur
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case map[string]any:
		// schema.org values are often wrapped: {"@type": "...", "name": "..."}
		for _, k := range []string{"name", "value", "@value", "text"} {
			if s := str(t[k]); s != "" {
				return s
			}
		}
	}
	return ""
}

func num(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return &f
		}
	case string:
		cleaned := strings.NewReplacer(" ", "", "\u00a0", "", ",", ".").Replace(strings.TrimSpace(t))
		if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return &f
		}
	}
	return nil
}

func boolean(v any) *bool {
	switch t := v.(type) {
	case bool:
		return &t
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return &b
		}
	}
	return nil
}

// list treats a scalar as a one-element list, which JSON-LD permits for most properties.
func list(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

func strs(v any) []string {
	var out []string
	for _, item := range list(v) {
		if s := str(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// timestamp accepts RFC 3339, bare dates and epoch milliseconds.
func timestamp(v any) *time.Time {
	switch t := v.(type) {
	case float64:
		ts := time.UnixMilli(int64(t)).UTC()
		return &ts
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, s); err == nil {
				ts = ts.UTC()
				return &ts
			}
		}
	}
	return nil
}

// findObject walks v depth-first and returns the first object accepted by match.
func findObject(v any, match func(map[string]any) bool) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		if match(t) {
			return t
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if found := findObject(t[k], match); found != nil {
				return found
			}
		}
	case []any:
		for _, child := range t {
			if found := findObject(child, match); found != nil {
				return found
			}
		}
	}
	return nil
}

func firstNonEmpty(candidates ...func() string) string {
	for _, c := range candidates {
		if s := c(); s != "" {
			return s
		}
	}
	return ""
}
