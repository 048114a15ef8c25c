// Package resolve implements {{dotted.path}} substitution against a data bag.
//
// Resolution is a single pass: substituted values are never re-scanned, so
// user data containing braces cannot trigger further expansion.
package resolve

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/soochol/autoflow/internal/xjson"
)

var templatePattern = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

// String replaces every {{path}} in template with the value found at path in
// data. Missing paths render as "".
func String(template string, data map[string]any) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	return templatePattern.ReplaceAllStringFunc(template, func(match string) string {
		path := templatePattern.FindStringSubmatch(match)[1]
		val, ok := Lookup(data, path)
		if !ok {
			return ""
		}
		return Format(val)
	})
}

// Value resolves every string inside v (maps and slices are walked) and
// returns a new value; v itself is not modified.
func Value(v any, data map[string]any) any {
	switch t := v.(type) {
	case string:
		return String(t, data)
	case map[string]any:
		return Config(t, data)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Value(item, data)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, item := range t {
			out[i] = String(item, data)
		}
		return out
	default:
		return v
	}
}

// Config returns a copy of config with every string-valued field resolved.
func Config(config map[string]any, data map[string]any) map[string]any {
	out := make(map[string]any, len(config))
	for k, v := range config {
		out[k] = Value(v, data)
	}
	return out
}

// Lookup walks a dotted path through nested maps and lists. Numeric
// segments index into lists.
func Lookup(data map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var cur any = data
	for _, seg := range strings.Split(path, ".") {
		next, ok := step(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func step(cur any, seg string) (any, bool) {
	switch c := cur.(type) {
	case map[string]any:
		v, ok := c[seg]
		return v, ok
	case map[string]string:
		v, ok := c[seg]
		return v, ok
	case []any:
		i, ok := index(seg, len(c))
		if !ok {
			return nil, false
		}
		return c[i], true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(cur)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(seg).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		i, ok := index(seg, rv.Len())
		if !ok {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	}
	return nil, false
}

func index(seg string, n int) (int, bool) {
	i, err := strconv.Atoi(seg)
	if err != nil || i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

// Format renders a looked-up value as template text. Maps and lists are
// rendered as JSON.
func Format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", t)
	case fmt.Stringer:
		return t.String()
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if b, err := xjson.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}
