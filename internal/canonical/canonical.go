// Package canonical implements the deterministic JSON encoding that every
// hash and signature in the attestation pipeline is built on. Two
// semantically equal values — regardless of map key insertion order, struct
// field declaration order, or which language produced them — MUST encode to
// byte-identical output. Every downstream commitment, chain hash, and
// signature preimage depends on that property holding exactly.
//
// This package never delegates to encoding/json's Marshal for the top-level
// walk: encoding/json does not detect cycles (it recurses until the stack
// overflows), escapes HTML characters by default (diverging from what a
// non-Go verifier's default JSON writer produces), and gives no control
// over integer-vs-decimal formatting for values that arrive as float64.
// Canonicalization is applied at every nesting level, not only the top.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"

	"github.com/mnemom/aip-core/internal/aiperr"
)

// Marshal produces the canonical byte encoding of v: object keys in
// ascending Unicode code-point order at every depth, array order preserved,
// integers without a fractional part, no superfluous whitespace. It fails
// with an aiperr Kind=canonicalization error on cycles, non-string mapping
// keys, non-finite numbers, or value types it cannot represent in JSON
// (channels, functions, complex numbers).
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := &encoder{buf: &buf, seen: map[uintptr]bool{}}
	if err := enc.encode(reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type encoder struct {
	buf  *bytes.Buffer
	seen map[uintptr]bool
}

func (e *encoder) encode(v reflect.Value) error {
	if !v.IsValid() {
		e.buf.WriteString("null")
		return nil
	}

	// Unwrap interfaces and pointers, tracking identity for cycle detection.
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer {
		if v.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		if v.Kind() == reflect.Pointer {
			ptr := v.Pointer()
			if e.seen[ptr] {
				return aiperr.Canonicalization("canonical: encode", fmt.Errorf("cycle detected"))
			}
			e.seen[ptr] = true
			defer delete(e.seen, ptr)
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Invalid:
		e.buf.WriteString("null")
		return nil
	case reflect.Bool:
		if v.Bool() {
			e.buf.WriteString("true")
		} else {
			e.buf.WriteString("false")
		}
		return nil
	case reflect.String:
		return e.encodeString(v.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.buf.WriteString(strconv.FormatInt(v.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		e.buf.WriteString(strconv.FormatUint(v.Uint(), 10))
		return nil
	case reflect.Float32, reflect.Float64:
		return e.encodeFloat(v.Float())
	case reflect.Slice:
		// A nil slice canonicalizes to an empty array, not null: the input
		// commitment must not change depending on whether a caller built
		// conscienceValues with make([]T, 0) or left it nil.
		if v.IsNil() {
			e.buf.WriteString("[]")
			return nil
		}
		// Track the backing array so a slice that contains itself fails as a
		// cycle instead of recursing without end.
		if v.Len() > 0 {
			ptr := v.Pointer()
			if e.seen[ptr] {
				return aiperr.Canonicalization("canonical: encode", fmt.Errorf("cycle detected"))
			}
			e.seen[ptr] = true
			defer delete(e.seen, ptr)
		}
		return e.encodeSequence(v)
	case reflect.Array:
		return e.encodeSequence(v)
	case reflect.Map:
		ptr := v.Pointer()
		if e.seen[ptr] {
			return aiperr.Canonicalization("canonical: encode", fmt.Errorf("cycle detected"))
		}
		e.seen[ptr] = true
		defer delete(e.seen, ptr)
		return e.encodeMap(v)
	case reflect.Struct:
		return e.encodeStruct(v)
	default:
		return aiperr.Canonicalization("canonical: encode", fmt.Errorf("unsupported kind %s", v.Kind()))
	}
}

func (e *encoder) encodeString(s string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return aiperr.Canonicalization("canonical: encode string", err)
	}
	e.buf.Write(bytes.TrimRight(buf.Bytes(), "\n"))
	return nil
}

func (e *encoder) encodeFloat(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return aiperr.Canonicalization("canonical: encode number", fmt.Errorf("non-finite value"))
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		e.buf.WriteString(strconv.FormatInt(int64(f), 10))
		return nil
	}
	e.buf.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

func (e *encoder) encodeSequence(v reflect.Value) error {
	e.buf.WriteByte('[')
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.encode(v.Index(i)); err != nil {
			return err
		}
	}
	e.buf.WriteByte(']')
	return nil
}

func (e *encoder) encodeMap(v reflect.Value) error {
	if v.Type().Key().Kind() != reflect.String {
		return aiperr.Canonicalization("canonical: encode map", fmt.Errorf("non-string map key type %s", v.Type().Key()))
	}
	keys := v.MapKeys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	e.buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.encodeString(k.String()); err != nil {
			return err
		}
		e.buf.WriteByte(':')
		if err := e.encode(v.MapIndex(k)); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')
	return nil
}

// fieldEntry pairs a resolved JSON key with the struct field value to emit.
type fieldEntry struct {
	key string
	val reflect.Value
}

func (e *encoder) encodeStruct(v reflect.Value) error {
	t := v.Type()
	var entries []fieldEntry
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue // unexported
		}
		name, omitempty, skip := jsonFieldName(f)
		if skip {
			continue
		}
		fv := v.Field(i)
		if omitempty && isEmptyValue(fv) {
			continue
		}
		entries = append(entries, fieldEntry{key: name, val: fv})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	e.buf.WriteByte('{')
	for i, ent := range entries {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.encodeString(ent.key); err != nil {
			return err
		}
		e.buf.WriteByte(':')
		if err := e.encode(ent.val); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')
	return nil
}

func jsonFieldName(f reflect.StructField) (name string, omitempty bool, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	name = f.Name
	if tag == "" {
		return name, false, false
	}
	parts := splitTag(tag)
	if parts[0] != "" {
		name = parts[0]
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitempty = true
		}
	}
	return name, omitempty, false
}

func splitTag(tag string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			parts = append(parts, tag[start:i])
			start = i + 1
		}
	}
	parts = append(parts, tag[start:])
	return parts
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Pointer:
		return v.IsNil()
	}
	return false
}
