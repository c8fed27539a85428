package launch

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Marshaler builds values over one Native and decodes its handles.
type Marshaler struct {
	native Native
}

// NewMarshaler returns a Marshaler bound to native.
func NewMarshaler(native Native) *Marshaler {
	return &Marshaler{native: native}
}

func (m *Marshaler) Native() Native {
	return m.native
}

func (m *Marshaler) allocFailed(kind Kind) error {
	log.Debug().Str("kind", kind.String()).Msg("launch.alloc failed")
	return fmt.Errorf("%w: %s", ErrAllocation, kind)
}

// Integer allocates an integer value.
func (m *Marshaler) Integer(v int64) (*Integer, error) {
	h := m.native.NewInteger(v)
	if h == NilHandle {
		return nil, m.allocFailed(KindInteger)
	}
	return &Integer{slot: ownedSlot(m.native, h), v: v}, nil
}

// Real allocates a real value.
func (m *Marshaler) Real(v float64) (*Real, error) {
	h := m.native.NewReal(v)
	if h == NilHandle {
		return nil, m.allocFailed(KindReal)
	}
	return &Real{slot: ownedSlot(m.native, h), v: v}, nil
}

// Bool allocates a boolean value.
func (m *Marshaler) Bool(v bool) (*Bool, error) {
	h := m.native.NewBool(v)
	if h == NilHandle {
		return nil, m.allocFailed(KindBool)
	}
	return &Bool{slot: ownedSlot(m.native, h), v: v}, nil
}

// String allocates a string value. s must be valid UTF-8.
func (m *Marshaler) String(s string) (*String, error) {
	if _, err := literal(KindString, s); err != nil {
		return nil, err
	}
	h := m.native.NewString(s)
	if h == NilHandle {
		return nil, m.allocFailed(KindString)
	}
	return &String{slot: ownedSlot(m.native, h), v: s}, nil
}

// FileDescriptor allocates a descriptor value. Negative descriptors fail
// with ErrTypeMismatch.
func (m *Marshaler) FileDescriptor(fd int) (*FileDescriptor, error) {
	p, err := literal(KindFileDescriptor, fd)
	if err != nil {
		return nil, err
	}
	h := m.native.NewFD(p.(int))
	if h == NilHandle {
		return nil, m.allocFailed(KindFileDescriptor)
	}
	return &FileDescriptor{slot: ownedSlot(m.native, h), fd: p.(int)}, nil
}

// MachPort allocates a port value. Ports outside [0, MaxUint32] fail with
// ErrTypeMismatch.
func (m *Marshaler) MachPort(port int64) (*MachPort, error) {
	p, err := literal(KindMachPort, port)
	if err != nil {
		return nil, err
	}
	h := m.native.NewMachPort(p.(uint32))
	if h == NilHandle {
		return nil, m.allocFailed(KindMachPort)
	}
	return &MachPort{slot: ownedSlot(m.native, h), port: p.(uint32)}, nil
}

// ErrorCode wraps code without allocating.
func (m *Marshaler) ErrorCode(code int) *ErrorCode {
	return &ErrorCode{slot: slot{native: m.native, state: Released}, code: Errno(code)}
}

// New constructs a value of kind from a dynamically typed literal,
// rejecting literals whose runtime type does not match the kind.
func (m *Marshaler) New(kind Kind, v any) (Value, error) {
	if kind.Composite() {
		if literalKind(v) != kind {
			return nil, &TypeMismatchError{Kind: kind, Got: fmt.Sprintf("%T", v)}
		}
		return m.Coerce(v)
	}
	p, err := literal(kind, v)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindInteger:
		return valueOf(m.Integer(p.(int64)))
	case KindReal:
		return valueOf(m.Real(p.(float64)))
	case KindBool:
		return valueOf(m.Bool(p.(bool)))
	case KindString:
		return valueOf(m.String(p.(string)))
	case KindFileDescriptor:
		return valueOf(m.FileDescriptor(p.(int)))
	case KindMachPort:
		return valueOf(m.MachPort(int64(p.(uint32))))
	case KindErrorCode:
		return m.ErrorCode(int(p.(Errno))), nil
	}
	return nil, &TypeMismatchError{Kind: kind, Got: fmt.Sprintf("%T", v)}
}

// valueOf converts a typed constructor result without producing a non-nil
// interface around a nil pointer.
func valueOf[T Value](v T, err error) (Value, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}
