package sim

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueKind tags the payload held by a Value.
type ValueKind uint8

const (
	ValueKindNone ValueKind = iota
	ValueKindBool
	ValueKindInt
	ValueKindFloat
	ValueKindEnum
	ValueKindString
)

// Value is a model variable: a bool, int64, float64, enum tag or string.
// The zero Value has kind ValueKindNone.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	s    string
}

func BoolValue(b bool) Value     { return Value{kind: ValueKindBool, b: b} }
func IntValue(i int64) Value     { return Value{kind: ValueKindInt, i: i} }
func FloatValue(f float64) Value { return Value{kind: ValueKindFloat, f: f} }
func EnumValue(tag string) Value { return Value{kind: ValueKindEnum, s: tag} }
func StringValue(s string) Value { return Value{kind: ValueKindString, s: s} }
func (v Value) Kind() ValueKind  { return v.kind }
func (v Value) IsNumeric() bool  { return v.kind == ValueKindBool || v.kind == ValueKindInt || v.kind == ValueKindFloat }
func (v Value) Text() string     { return v.s }

// Bool reports the truth of v. Numbers are true when non-zero, strings when non-empty.
func (v Value) Bool() bool {
	switch v.kind {
	case ValueKindBool:
		return v.b
	case ValueKindInt:
		return v.i != 0
	case ValueKindFloat:
		return v.f != 0
	case ValueKindEnum, ValueKindString:
		return v.s != ""
	}
	return false
}

// Float returns v as a float64. Non-numeric values yield 0.
func (v Value) Float() float64 {
	switch v.kind {
	case ValueKindBool:
		if v.b {
			return 1
		}
		return 0
	case ValueKindInt:
		return float64(v.i)
	case ValueKindFloat:
		return v.f
	}
	return 0
}

// Int returns v as an int64, truncating floats.
func (v Value) Int() int64 {
	if v.kind == ValueKindInt {
		return v.i
	}
	return int64(v.Float())
}

// Compare orders two values: numerically when both are numeric, lexically otherwise.
func (v Value) Compare(o Value) int {
	if v.IsNumeric() && o.IsNumeric() {
		a, b := v.Float(), o.Float()
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	return strings.Compare(v.String(), o.String())
}

// Equal reports whether v and o compare equal.
func (v Value) Equal(o Value) bool { return v.Compare(o) == 0 }

// Add returns v+o as a numeric value; ints stay ints when both operands are ints.
func (v Value) Add(o Value) Value {
	if v.kind == ValueKindInt && o.kind == ValueKindInt {
		return IntValue(v.i + o.i)
	}
	if v.kind == ValueKindNone && o.kind == ValueKindInt {
		return o
	}
	return FloatValue(v.Float() + o.Float())
}

func (v Value) String() string {
	switch v.kind {
	case ValueKindBool:
		return strconv.FormatBool(v.b)
	case ValueKindInt:
		return strconv.FormatInt(v.i, 10)
	case ValueKindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case ValueKindEnum, ValueKindString:
		return v.s
	}
	return "<none>"
}

// ValueOf converts a boxed Go value (as decoded from YAML) into a Value.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t, nil
	case bool:
		return BoolValue(t), nil
	case int:
		return IntValue(int64(t)), nil
	case int64:
		return IntValue(t), nil
	case float64:
		return FloatValue(t), nil
	case string:
		return StringValue(t), nil
	}
	return Value{}, fmt.Errorf("unsupported variable type %T", x)
}

// Vars is a name to value store.
type Vars map[string]Value

// Get returns the named value and whether it was set.
func (vs Vars) Get(name string) (Value, bool) {
	v, ok := vs[name]
	return v, ok
}

// Set stores a value under name.
func (vs Vars) Set(name string, v Value) {
	vs[name] = v
}

// Clone returns a shallow copy; a nil receiver yields an empty map.
func (vs Vars) Clone() Vars {
	out := make(Vars, len(vs))
	for k, v := range vs {
		out[k] = v
	}
	return out
}
