// Package xjson is the single JSON import site for JSONB columns, queue
// payloads and template rendering.
package xjson

import (
	stdjson "encoding/json"
	"io"

	gjson "github.com/goccy/go-json"
)

func Marshal(v any) ([]byte, error) {
	return gjson.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return gjson.Unmarshal(data, v)
}

// MarshalOrNull encodes v, returning SQL-friendly "null" on a nil map.
func MarshalOrNull(v any) []byte {
	b, err := gjson.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return b
}

// RawMessage is kept compatible with encoding/json's RawMessage type.
type RawMessage = stdjson.RawMessage

func NewDecoder(r io.Reader) *gjson.Decoder {
	return gjson.NewDecoder(r)
}

func NewEncoder(w io.Writer) *gjson.Encoder {
	return gjson.NewEncoder(w)
}
