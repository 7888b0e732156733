package store

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// TimeLayout is used when a backend stores times as text. Fixed width keeps
// lexical and chronological order identical.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

func AsTime(value any) time.Time {
	switch v := value.(type) {
	case time.Time:
		return v
	case *time.Time:
		if v != nil {
			return *v
		}
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

// AsStrings converts a stored array to a deduplicated string slice. Non
// string elements are ignored.
func AsStrings(value any) []string {
	var raw []any
	switch v := value.(type) {
	case []string:
		raw = toAny(v)
	case []any:
		raw = v
	default:
		return []string{}
	}
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok || s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

// mergeArray applies union (remove=false) or difference (remove=true)
// semantics. Existing order is preserved and union appends new values.
func mergeArray(existing any, values []any, remove bool) []any {
	var current []any
	switch v := existing.(type) {
	case []any:
		current = v
	case []string:
		current = toAny(v)
	}

	out := make([]any, 0, len(current)+len(values))
	for _, item := range current {
		if remove && containsValue(values, item) {
			continue
		}
		if containsValue(out, item) {
			continue
		}
		out = append(out, item)
	}
	if !remove {
		for _, value := range values {
			if !containsValue(out, value) {
				out = append(out, value)
			}
		}
	}
	return out
}

func containsValue(list []any, value any) bool {
	for _, item := range list {
		if equalValues(item, value) {
			return true
		}
	}
	return false
}

func inValues(value any) []any {
	switch v := value.(type) {
	case []any:
		return v
	case []string:
		return toAny(v)
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func equalValues(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		return ta.Equal(AsTime(b))
	}
	if tb, ok := b.(time.Time); ok {
		return tb.Equal(AsTime(a))
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	ta, tb := AsTime(a), AsTime(b)
	if !ta.IsZero() && !tb.IsZero() {
		return ta.Compare(tb)
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func matchesFilters(data map[string]any, filters []Filter) bool {
	for _, filter := range filters {
		value, ok := data[filter.Field]
		if !ok {
			return false
		}
		switch filter.Op {
		case OpEqual:
			if !equalValues(value, filter.Value) {
				return false
			}
		case OpIn:
			if !containsValue(inValues(filter.Value), value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// sortDocuments orders by the query clause. docs must already be in path
// order so that ties stay stable.
func sortDocuments(docs []Document, q Query) {
	if q.OrderBy == "" {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		cmp := compareValues(docs[i].Data[q.OrderBy], docs[j].Data[q.OrderBy])
		if q.Descending {
			return cmp > 0
		}
		return cmp < 0
	})
}

func applyLimit(docs []Document, limit int) []Document {
	if limit > 0 && len(docs) > limit {
		return docs[:limit]
	}
	return docs
}

// resolveValues replaces ServerTimestamp with now and, when textTimes is
// set, times with their TimeLayout form.
func resolveValues(data map[string]any, now time.Time, textTimes bool) map[string]any {
	out := make(map[string]any, len(data))
	for key, value := range data {
		out[key] = resolveValue(value, now, textTimes)
	}
	return out
}

func resolveValue(value any, now time.Time, textTimes bool) any {
	switch v := value.(type) {
	case serverTimestamp:
		return resolveValue(now, now, textTimes)
	case time.Time:
		if textTimes {
			return v.UTC().Format(TimeLayout)
		}
		return v.UTC()
	case map[string]any:
		return resolveValues(v, now, textTimes)
	case []string:
		return toAny(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = resolveValue(item, now, textTimes)
		}
		return out
	default:
		return value
	}
}

func resolveWrite(w Write, now time.Time, textTimes bool) Write {
	if w.Data != nil {
		w.Data = resolveValues(w.Data, now, textTimes)
	}
	if w.Values != nil {
		values := make([]any, len(w.Values))
		for i, value := range w.Values {
			values[i] = resolveValue(value, now, textTimes)
		}
		w.Values = values
	}
	return w
}

func resolveFilters(filters []Filter, textTimes bool) []Filter {
	out := make([]Filter, len(filters))
	for i, filter := range filters {
		filter.Value = resolveValue(filter.Value, time.Time{}, textTimes)
		out[i] = filter
	}
	return out
}
