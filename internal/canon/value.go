// Package canon implements the Orket canonical-JSON profile: an RFC 8785 (JCS)
// flavored byte encoding with additional domain restrictions (integer-only
// numbers, unordered-list-key sorting, non-semantic-key stripping) used for
// structural digesting throughout the kernel.
package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindString
	KindArray
	KindObject
)

// Value is a tagged JSON value. It is the dynamic, dict-shaped representation
// that canonicalization, ref extraction, and link validation operate over,
// instead of a statically typed DTO — mirroring the source system's use of
// dynamic payloads for body/links/manifest and turn inputs.
type Value struct {
	kind Kind
	b    bool
	i    int64
	s    string
	arr  []Value
	obj  map[string]Value
}

// JSSafeIntMax is the largest integer exactly representable as an IEEE-754
// double (2^53 - 1), the upper bound of the "JS-safe" integer domain.
const JSSafeIntMax = int64(1<<53) - 1

// JSSafeIntMin is the lower bound of the JS-safe integer domain.
const JSSafeIntMin = -JSSafeIntMax

func Null() Value                 { return Value{kind: KindNull} }
func Bool(b bool) Value           { return Value{kind: KindBool, b: b} }
func Int(i int64) Value           { return Value{kind: KindInt, i: i} }
func String(s string) Value       { return Value{kind: KindString, s: s} }
func Array(items []Value) Value   { return Value{kind: KindArray, arr: items} }
func Object(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindObject, obj: m}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) IsObject() bool { return v.kind == KindObject }
func (v Value) IsArray() bool { return v.kind == KindArray }
func (v Value) IsString() bool { return v.kind == KindString }

// BoolValue returns the bool payload; only meaningful when Kind() == KindBool.
func (v Value) BoolValue() bool { return v.b }

// IntValue returns the integer payload; only meaningful when Kind() == KindInt.
func (v Value) IntValue() int64 { return v.i }

// StringValue returns the string payload; only meaningful when Kind() == KindString.
func (v Value) StringValue() string { return v.s }

// Items returns the array payload; only meaningful when Kind() == KindArray.
func (v Value) Items() []Value { return v.arr }

// Fields returns the object payload; only meaningful when Kind() == KindObject.
func (v Value) Fields() map[string]Value { return v.obj }

// Get returns the field named key, and whether it was present.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	val, ok := v.obj[key]
	return val, ok
}

// GetString returns a field's string value, or "" if absent/non-string.
func (v Value) GetString(key string) string {
	val, ok := v.Get(key)
	if !ok || val.kind != KindString {
		return ""
	}
	return val.s
}

// SortedKeys returns the object's keys in lexicographic order.
func (v Value) SortedKeys() []string {
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsRefObject reports whether v is an object carrying string "type" and "id"
// fields — the structural predicate for a link-graph reference, per the
// source system's is_ref_object(x) := is_object(x) ∧ has_string(x,"type") ∧
// has_string(x,"id").
func (v Value) IsRefObject() bool {
	if v.kind != KindObject {
		return false
	}
	t, ok := v.Get("type")
	if !ok || t.kind != KindString {
		return false
	}
	id, ok := v.Get("id")
	if !ok || id.kind != KindString {
		return false
	}
	return true
}

// ParseJSON decodes bytes into a Value, rejecting floats, NaN/Inf, and
// out-of-range integers. Object key order is not preserved (canonicalization
// always re-sorts), but duplicate keys resolve to the last occurrence exactly
// as encoding/json does.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, &Error{Path: "$", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if dec.More() {
		return Value{}, &Error{Path: "$", Message: "trailing data after JSON value"}
	}
	return fromAny(raw, "$")
}

func fromAny(raw any, path string) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return numberToValue(t, path)
	case string:
		return String(t), nil
	case []any:
		items := make([]Value, 0, len(t))
		for i, item := range t {
			val, err := fromAny(item, fmt.Sprintf("%s/%d", path, i))
			if err != nil {
				return Value{}, err
			}
			items = append(items, val)
		}
		return Array(items), nil
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for k, item := range t {
			val, err := fromAny(item, fmt.Sprintf("%s/%s", path, escapePointerSegment(k)))
			if err != nil {
				return Value{}, err
			}
			obj[k] = val
		}
		return Object(obj), nil
	default:
		return Value{}, &Error{Path: path, Message: fmt.Sprintf("unsupported JSON type %T", raw)}
	}
}

func numberToValue(n json.Number, path string) (Value, error) {
	s := n.String()
	for _, c := range s {
		if c == '.' || c == 'e' || c == 'E' {
			return Value{}, &Error{Path: path, Message: "floating-point numbers are not permitted in canonical JSON: " + s}
		}
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, &Error{Path: path, Message: "numeric value is not finite: " + s}
	}
	i, err := n.Int64()
	if err != nil {
		return Value{}, &Error{Path: path, Message: "integer out of int64 range: " + s}
	}
	if i > JSSafeIntMax || i < JSSafeIntMin {
		return Value{}, &Error{Path: path, Message: fmt.Sprintf("integer %d outside JS-safe range", i)}
	}
	return Int(i), nil
}
