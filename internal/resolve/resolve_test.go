package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	data := map[string]any{
		"id": "42",
		"a":  map[string]any{"b": "x"},
		"user": map[string]any{
			"name":   "Ada",
			"age":    float64(36),
			"admin":  true,
			"emails": []any{"ada@example.com", "lovelace@example.com"},
		},
		"items": []any{
			map[string]any{"sku": "A-1"},
			map[string]any{"sku": "B-2"},
		},
		"labels": map[string]string{"env": "prod"},
		"count":  7,
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"no placeholders", "plain text", "plain text"},
		{"top-level key", "https://x/{{id}}", "https://x/42"},
		{"nested key", "{{a.b}}", "x"},
		{"missing nested key", "{{a.c}}", ""},
		{"missing top-level key", "[{{nope}}]", "[]"},
		{"path through scalar", "{{id.deeper}}", ""},
		{"list index", "{{user.emails.1}}", "lovelace@example.com"},
		{"list index out of range", "{{user.emails.5}}", ""},
		{"index into list of maps", "{{items.0.sku}}-{{items.1.sku}}", "A-1-B-2"},
		{"float renders without exponent", "{{user.age}}", "36"},
		{"bool", "{{user.admin}}", "true"},
		{"int", "{{count}}", "7"},
		{"string map", "{{labels.env}}", "prod"},
		{"whitespace inside braces", "{{ user.name }}", "Ada"},
		{"multiple placeholders", "{{user.name}} <{{user.emails.0}}>", "Ada <ada@example.com>"},
		{"map renders as json", "{{a}}", `{"b":"x"}`},
		{"unterminated marker passes through", "{{id", "{{id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, String(tt.template, data))
		})
	}
}

func TestString_IdempotentWithoutMarkers(t *testing.T) {
	s := "no markers {here} at all"
	once := String(s, map[string]any{"here": "x"})
	assert.Equal(t, s, once)
	assert.Equal(t, once, String(once, nil))
}

func TestString_NoRecursiveExpansion(t *testing.T) {
	data := map[string]any{
		"evil":   "{{secret}}",
		"secret": "leaked",
	}
	assert.Equal(t, "{{secret}}", String("{{evil}}", data))
}

func TestString_NilData(t *testing.T) {
	assert.Equal(t, "a  b", String("a {{x.y}} b", nil))
}

func TestConfig_ResolvesNestedStringsWithoutMutatingInput(t *testing.T) {
	cfg := map[string]any{
		"url":     "https://api/{{id}}",
		"timeout": 30,
		"headers": map[string]any{"X-User": "{{user}}"},
		"tags":    []any{"{{id}}", 1},
	}
	data := map[string]any{"id": "7", "user": "bob"}

	out := Config(cfg, data)

	assert.Equal(t, "https://api/7", out["url"])
	assert.Equal(t, 30, out["timeout"])
	assert.Equal(t, map[string]any{"X-User": "bob"}, out["headers"])
	assert.Equal(t, []any{"7", 1}, out["tags"])
	assert.Equal(t, "https://api/{{id}}", cfg["url"], "input config must not be modified")
}

func TestLookup(t *testing.T) {
	data := map[string]any{"a": map[string]any{"b": nil}}

	v, ok := Lookup(data, "a.b")
	assert.True(t, ok)
	assert.Nil(t, v)

	_, ok = Lookup(data, "")
	assert.False(t, ok)

	_, ok = Lookup(data, "a.b.c")
	assert.False(t, ok)
}
