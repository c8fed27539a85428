package launch

import (
	"errors"
	"fmt"
	"sort"
)

// Entry is one key/value pair of an ordered dictionary literal.
type Entry struct {
	Key   string
	Value any
}

// Map is a dictionary literal whose insertion order is kept.
type Map []Entry

// Coerce converts a Go literal into a value. Values pass through unchanged
// and stay owned by the caller; anything else is allocated here and owned
// by the returned value.
//
//	bool                         -> Bool (matched before any integer rule)
//	string                       -> String
//	int*, uint*                  -> Integer
//	float32, float64             -> Real
//	map[string]any, map[string]string, Map -> Dictionary
//	[]any, []string, []int, []int64, []bool, []float64 -> Array
func (m *Marshaler) Coerce(v any) (Value, error) {
	switch x := v.(type) {
	case Value:
		if isNilValue(x) {
			return nil, &UnsupportedTypeError{Got: fmt.Sprintf("%T(nil)", v)}
		}
		return x, nil
	case bool:
		return valueOf(m.Bool(x))
	case string:
		return valueOf(m.String(x))
	case float32:
		return valueOf(m.Real(float64(x)))
	case float64:
		return valueOf(m.Real(x))
	case map[string]any:
		return valueOf(m.Dictionary(x))
	case map[string]string:
		return valueOf(m.Dictionary(anyMap(x)))
	case Map:
		return valueOf(m.OrderedDictionary(x))
	case []any:
		return valueOf(m.Array(x))
	case []string:
		return valueOf(m.Array(anySlice(x)))
	case []int:
		return valueOf(m.Array(anySlice(x)))
	case []int64:
		return valueOf(m.Array(anySlice(x)))
	case []bool:
		return valueOf(m.Array(anySlice(x)))
	case []float64:
		return valueOf(m.Array(anySlice(x)))
	}
	if n, ok, overflow := toInt64(v); ok {
		if overflow {
			return nil, &TypeMismatchError{Kind: KindInteger, Got: fmt.Sprintf("%T", v), Reason: "a signed 64-bit integer"}
		}
		return valueOf(m.Integer(n))
	}
	return nil, &UnsupportedTypeError{Got: fmt.Sprintf("%T", v)}
}

// literalKind reports the kind Coerce would produce for v without
// allocating. Unsupported literals report KindInvalid.
func literalKind(v any) Kind {
	switch x := v.(type) {
	case Value:
		return x.Kind()
	case bool:
		return KindBool
	case string:
		return KindString
	case float32, float64:
		return KindReal
	case map[string]any, map[string]string, Map:
		return KindDictionary
	case []any, []string, []int, []int64, []bool, []float64:
		return KindArray
	}
	if _, ok, _ := toInt64(v); ok {
		return KindInteger
	}
	return KindInvalid
}

// operand turns a container argument into a value. temp reports whether
// the value was allocated here, in which case the caller releases it on
// failure.
func (m *Marshaler) operand(container Kind, v any) (val Value, temp bool, err error) {
	if x, ok := v.(Value); ok && !isNilValue(x) {
		return x, false, nil
	}
	val, err = m.Coerce(v)
	if err != nil {
		if errors.Is(err, ErrUnsupportedType) && !errors.Is(err, ErrValueType) {
			err = &ValueTypeError{Container: container, Err: err}
		}
		return nil, false, err
	}
	return val, true, nil
}

func isNilValue(v Value) bool {
	switch x := v.(type) {
	case *Integer:
		return x == nil
	case *Real:
		return x == nil
	case *Bool:
		return x == nil
	case *String:
		return x == nil
	case *FileDescriptor:
		return x == nil
	case *MachPort:
		return x == nil
	case *ErrorCode:
		return x == nil
	case *Dictionary:
		return x == nil
	case *Array:
		return x == nil
	}
	return v == nil
}

func anyMap(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func anySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func sortedKeys(in map[string]any) []string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
