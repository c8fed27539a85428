package launch

import (
	"fmt"
	"math"
	"unicode/utf8"
)

// literal validates v against the expected Go type of kind and returns the
// normalized payload: int64, float64, bool, string, int (fd), uint32 (port)
// or Errno. Constructors and the decoder share it.
func literal(kind Kind, v any) (any, error) {
	mismatch := func(reason string) error {
		return &TypeMismatchError{Kind: kind, Got: fmt.Sprintf("%T", v), Reason: reason}
	}
	switch kind {
	case KindInteger:
		n, ok, overflow := toInt64(v)
		if !ok || overflow {
			return nil, mismatch("a signed 64-bit integer")
		}
		return n, nil
	case KindReal:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		}
		return nil, mismatch("a float")
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return nil, mismatch("a bool")
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch("a string")
		}
		if !utf8.ValidString(s) {
			return nil, mismatch("valid UTF-8")
		}
		return s, nil
	case KindFileDescriptor:
		n, ok, overflow := toInt64(v)
		if !ok || overflow || n < 0 || n > math.MaxInt32 {
			return nil, mismatch("a non-negative descriptor")
		}
		return int(n), nil
	case KindMachPort:
		n, ok, overflow := toInt64(v)
		if !ok || overflow || n < 0 || n > math.MaxUint32 {
			return nil, mismatch("a non-negative port name")
		}
		return uint32(n), nil
	case KindErrorCode:
		if e, ok := v.(Errno); ok {
			return e, nil
		}
		n, ok, overflow := toInt64(v)
		if !ok || overflow || n < math.MinInt32 || n > math.MaxInt32 {
			return nil, mismatch("an error code")
		}
		return Errno(n), nil
	}
	return nil, mismatch("a scalar kind")
}

// toInt64 converts any Go integer type. bool and float are never integers.
func toInt64(v any) (n int64, ok bool, overflow bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true, false
	case int8:
		return int64(x), true, false
	case int16:
		return int64(x), true, false
	case int32:
		return int64(x), true, false
	case int64:
		return x, true, false
	case uint:
		return int64(x), true, uint64(x) > math.MaxInt64
	case uint8:
		return int64(x), true, false
	case uint16:
		return int64(x), true, false
	case uint32:
		return int64(x), true, false
	case uint64:
		return int64(x), true, x > math.MaxInt64
	}
	return 0, false, false
}
