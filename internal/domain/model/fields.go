package model

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/kailas-cloud/dmodel/internal/domain"
)

// fields reads typed values out of a structured tree. The first failure is kept
// in err and later reads become no-ops.
type fields struct {
	tree map[string]any
	seen map[string]struct{}
	err  error
}

func newFields(tree map[string]any) *fields {
	return &fields{tree: tree, seen: make(map[string]struct{}, len(tree))}
}

func (f *fields) get(key string) (any, bool) {
	f.seen[key] = struct{}{}
	if f.err != nil {
		return nil, false
	}
	v, ok := f.tree[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (f *fields) fail(key, want string, v any) {
	if f.err == nil {
		f.err = fmt.Errorf("%w: field %q: expected %s, got %T", domain.ErrMalformedData, key, want, v)
	}
}

func (f *fields) str(key string) string {
	v, ok := f.get(key)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		f.fail(key, "string", v)
	}
	return s
}

func (f *fields) strs(key string) []string {
	v, ok := f.get(key)
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return slices.Clone(list)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				f.fail(key, "array of strings", item)
				return nil
			}
			out = append(out, s)
		}
		return out
	default:
		f.fail(key, "array of strings", v)
		return nil
	}
}

func (f *fields) boolean(key string, def bool) bool {
	v, ok := f.get(key)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			f.fail(key, "boolean", v)
			return def
		}
		return parsed
	default:
		f.fail(key, "boolean", v)
		return def
	}
}

// count reads a non-negative integer; numeric-looking strings are accepted.
func (f *fields) count(key string) (int, bool) {
	v, ok := f.get(key)
	if !ok {
		return 0, false
	}
	n, ok := toInt(v)
	if !ok || n < 0 {
		f.fail(key, "non-negative integer", v)
		return 0, false
	}
	return n, true
}

func (f *fields) object(key string) map[string]any {
	v, ok := f.get(key)
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		f.fail(key, "object", v)
		return nil
	}
	out, _ := normalize(m).(map[string]any)
	return out
}

func (f *fields) toc(key string) []TOCEntry {
	v, ok := f.get(key)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		if typed, isTyped := v.([]map[string]any); isTyped {
			list = make([]any, len(typed))
			for i := range typed {
				list[i] = typed[i]
			}
		} else {
			f.fail(key, "array of objects", v)
			return nil
		}
	}
	out := make([]TOCEntry, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			f.fail(key, "array of objects", item)
			return nil
		}
		entry, err := newTOCEntry(obj)
		if err != nil {
			if f.err == nil {
				f.err = fmt.Errorf("field %q: %w", key, err)
			}
			return nil
		}
		out = append(out, entry)
	}
	return out
}

// rest returns every key not read so far.
func (f *fields) rest() map[string]any {
	var out map[string]any
	for k, v := range f.tree {
		if _, ok := f.seen[k]; ok {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[k] = normalize(v)
	}
	return out
}

// toInt converts any integral value, including numeric strings.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), n <= math.MaxInt
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), n <= math.MaxInt
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		fl, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(fl)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}

func floatToInt(f float64) (int, bool) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return int(f), true
}

// scalarString renders a scalar value as a string.
func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case bool:
		return strconv.FormatBool(s), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32), true
	}
	if n, ok := toInt(v); ok {
		return strconv.Itoa(n), true
	}
	return "", false
}

// normalize rewrites a tree into canonical Go types: map[string]any, []any,
// string, bool, int64 or float64.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = item
		}
		return out
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return normalize(f)
		}
		return t.String()
	case float64:
		if i, ok := floatToInt(t); ok {
			return int64(i)
		}
		return t
	case float32:
		return normalize(float64(t))
	case string, bool, nil:
		return t
	}
	if n, ok := toInt(v); ok {
		return int64(n)
	}
	return v
}
