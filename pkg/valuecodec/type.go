// Package valuecodec infers a Record's value Type from a raw Go value and
// converts values to and from the JSON-safe shape persisted in a bucket
// file (binary payloads travel as base64 text).
package valuecodec

import (
	"encoding/base64"
	"reflect"
)

// Type tags the kind of value a Record carries. It drives both merge
// behaviour and codec choice, so it must stay a pure function of the
// stored payload.
type Type string

const (
	TypeString Type = "string"
	TypeNumber Type = "number"
	TypeBinary Type = "binary"
	TypeObject Type = "object"
	TypeArray  Type = "array"
	TypeList   Type = "list"
)

// Infer derives the Type of v the way a fresh write would: nil/absent
// values and strings are "string", numeric Go types are "number", byte
// slices are "binary", slices are "array", anything else is "object".
func Infer(v any) Type {
	switch val := v.(type) {
	case nil:
		return TypeString
	case string:
		return TypeString
	case []byte:
		return TypeBinary
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return TypeNumber
	case []any:
		return TypeArray
	default:
		_ = val
		return reflectInfer(v)
	}
}

// reflectInfer handles array/object shapes that aren't already caught by
// the concrete cases above (e.g. typed slices decoded from JSON).
func reflectInfer(v any) Type {
	switch v.(type) {
	case map[string]any:
		return TypeObject
	}
	if isSlice(v) {
		return TypeArray
	}
	return TypeObject
}

func isSlice(v any) bool {
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// EncodeStorable converts v into the shape that is safe to marshal as the
// record's JSON "value" field: binary payloads become base64 strings,
// everything else passes through unchanged.
func EncodeStorable(t Type, v any) any {
	if t != TypeBinary {
		return v
	}
	switch b := v.(type) {
	case []byte:
		return base64.StdEncoding.EncodeToString(b)
	case string:
		return b
	default:
		return v
	}
}

// DecodeStorable is the inverse of EncodeStorable: a binary-typed value
// read back out of a bucket file is base64 text and must be decoded to a
// byte sequence before it reaches the caller.
func DecodeStorable(t Type, stored any) (any, error) {
	if t != TypeBinary {
		return stored, nil
	}
	s, ok := stored.(string)
	if !ok {
		return stored, nil
	}
	return base64.StdEncoding.DecodeString(s)
}
