package types

import (
	"fmt"
	"math"
	"sort"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a tagged JSON value. The zero Value is null.
// Values are treated as immutable once built; accessors return copies of
// composite contents.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  map[string]Value
}

func Null() Value            { return Value{} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }
func Int(n int64) Value      { return Value{kind: KindNumber, n: float64(n)} }
func String(s string) Value  { return Value{kind: KindString, s: s} }
func Array(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindArray, arr: cp}
}

// Object builds an object value from m. The map is copied.
func Object(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindObject, obj: cp}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean and whether v is a bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the number and whether v is a number.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsString returns the string and whether v is a string.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsArray returns a copy of the elements and whether v is an array.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	cp := make([]Value, len(v.arr))
	copy(cp, v.arr)
	return cp, true
}

// Len returns the number of elements of an array or members of an object.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	}
	return 0
}

// Field returns the member name of an object value.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	f, ok := v.obj[name]
	return f, ok
}

// Keys returns the member names of an object in sorted order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Finite reports whether v contains no NaN or infinite numbers at any depth.
func (v Value) Finite() bool {
	switch v.kind {
	case KindNumber:
		return !math.IsNaN(v.n) && !math.IsInf(v.n, 0)
	case KindArray:
		for _, e := range v.arr {
			if !e.Finite() {
				return false
			}
		}
	case KindObject:
		for _, e := range v.obj {
			if !e.Finite() {
				return false
			}
		}
	}
	return true
}

// Equal reports deep equality. NaN equals NaN so that round trips of
// non-finite documents compare equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		if math.IsNaN(v.n) || math.IsNaN(o.n) {
			return math.IsNaN(v.n) && math.IsNaN(o.n)
		}
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, e := range v.obj {
			oe, ok := o.obj[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders v as lenient JSON. Intended for logs and CLI output.
func (v Value) String() string {
	b, err := Marshal(v, true)
	if err != nil {
		return fmt.Sprintf("<invalid value: %v>", err)
	}
	return string(b)
}

// --- conversion ---

// FromAny converts a decoded Go value (as produced by yaml.v3 or
// encoding/json) into a Value. Integer types become numbers, map keys of
// any type are formatted with %v.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = ev
		}
		return Value{kind: KindArray, arr: out}, nil
	case []Value:
		return Array(t...), nil
	case []float64:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = Number(e)
		}
		return Value{kind: KindArray, arr: out}, nil
	case []string:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = String(e)
		}
		return Value{kind: KindArray, arr: out}, nil
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = ev
		}
		return Value{kind: KindObject, obj: out}, nil
	case map[any]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			ks := fmt.Sprintf("%v", k)
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", ks, err)
			}
			out[ks] = ev
		}
		return Value{kind: KindObject, obj: out}, nil
	case map[string]Value:
		return Object(t), nil
	}
	return Value{}, fmt.Errorf("types: unsupported type %T", x)
}

// MustFromAny is FromAny for static tables known to be convertible.
func MustFromAny(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}

// Any converts v back into plain Go values: nil, bool, float64, string,
// []any and map[string]any.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Any()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.Any()
		}
		return out
	}
	return nil
}
