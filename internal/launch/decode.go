package launch

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog/log"
)

// UnknownSentinel is decoded in place of kinds this package does not model.
const UnknownSentinel = "?"

// MaxDecodeDepth bounds recursion into nested composites.
const MaxDecodeDepth = 128

// Decode converts the tree rooted at h into plain Go values:
//
//	integer -> int64       real     -> float64   bool -> bool
//	string  -> string      fd       -> int       machport -> uint32
//	errno   -> Errno       dictionary -> map[string]any
//	array   -> []any       other kinds -> UnknownSentinel
//
// Decode never frees or retains h or any handle below it.
func (m *Marshaler) Decode(h Handle) (any, error) {
	if h == NilHandle {
		return nil, ErrNilHandle
	}
	return m.decode(h, 0)
}

func (m *Marshaler) decode(h Handle, depth int) (any, error) {
	if depth > MaxDecodeDepth {
		return nil, ErrTooDeep
	}
	n := m.native
	switch kind := n.Type(h); kind {
	case KindInteger:
		return literal(kind, n.Integer(h))
	case KindReal:
		return literal(kind, n.Real(h))
	case KindBool:
		return literal(kind, n.Bool(h))
	case KindString:
		return literal(kind, n.String(h))
	case KindFileDescriptor:
		return literal(kind, n.FD(h))
	case KindMachPort:
		return literal(kind, n.MachPort(h))
	case KindErrorCode:
		return literal(kind, n.Errno(h))
	case KindDictionary:
		return m.decodeDictionary(h, depth)
	case KindArray:
		return m.decodeArray(h, depth)
	default:
		log.Debug().Str("kind", kind.String()).Msg("launch.decode unmodeled kind")
		return UnknownSentinel, nil
	}
}

func (m *Marshaler) decodeDictionary(h Handle, depth int) (any, error) {
	out := make(map[string]any)
	var firstErr error
	m.native.DictIterate(h, func(child Handle, key string) {
		if firstErr != nil {
			return
		}
		v, err := m.decode(child, depth+1)
		if err != nil {
			firstErr = fmt.Errorf("key %q: %w", key, err)
			return
		}
		out[key] = v
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (m *Marshaler) decodeArray(h Handle, depth int) (any, error) {
	count := m.native.ArrayCount(h)
	out := make([]any, 0, count)
	for i := 0; i < count; i++ {
		child := m.native.ArrayIndex(h, i)
		if child == NilHandle {
			return nil, fmt.Errorf("index %d: %w", i, ErrNilHandle)
		}
		v, err := m.decode(child, depth+1)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// DecodeInto decodes h and maps the plain tree onto out, which must be a
// pointer. Struct fields are matched by their cbor or json tags.
func (m *Marshaler) DecodeInto(h Handle, out any) error {
	plain, err := m.Decode(h)
	if err != nil {
		return err
	}
	data, err := cbor.Marshal(plain)
	if err != nil {
		return fmt.Errorf("launch: re-encode decoded tree: %w", err)
	}
	if err := cbor.Unmarshal(data, out); err != nil {
		return fmt.Errorf("launch: map decoded tree onto %T: %w", out, err)
	}
	return nil
}
