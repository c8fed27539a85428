package launch

import (
	"strconv"
	"syscall"
)

// State is the ownership state of a value's handle slot.
type State uint8

const (
	// Owned: the value frees its handle on Release.
	Owned State = iota
	// Absorbed: a parent composite owns the handle; the value keeps a
	// non-owning reference and Release is a no-op.
	Absorbed
	// Released: the handle is gone (freed, displaced, or never allocated).
	Released
)

func (s State) String() string {
	switch s {
	case Owned:
		return "owned"
	case Absorbed:
		return "absorbed"
	case Released:
		return "released"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Value is a launch data value. The set of implementations is closed:
// Integer, Real, Bool, String, FileDescriptor, MachPort, ErrorCode,
// Dictionary and Array.
type Value interface {
	Kind() Kind
	// Handle returns the native handle, or NilHandle once released.
	Handle() Handle
	State() State
	// Interface returns the plain Go payload. Composites return
	// map[string]any and []any built from their mirrors.
	Interface() any
	// Release frees the handle tree if this value owns it.
	Release()
	String() string

	base() *slot
	invalidate()
}

// slot is the ownership cell embedded in every value.
type slot struct {
	native Native
	handle Handle
	state  State
}

func ownedSlot(n Native, h Handle) slot {
	return slot{native: n, handle: h, state: Owned}
}

func (s *slot) Handle() Handle {
	if s.state == Released {
		return NilHandle
	}
	return s.handle
}

func (s *slot) State() State { return s.state }

func (s *slot) base() *slot { return s }

func (s *slot) Release() {
	if s.state != Owned {
		return
	}
	s.native.Free(s.handle)
	s.invalidate()
}

func (s *slot) absorb() {
	if s.state == Owned {
		s.state = Absorbed
	}
}

func (s *slot) invalidate() {
	s.handle = NilHandle
	s.state = Released
}

// Integer is a signed 64-bit integer value.
type Integer struct {
	slot
	v int64
}

func (v *Integer) Kind() Kind     { return KindInteger }
func (v *Integer) Int() int64     { return v.v }
func (v *Integer) Interface() any { return v.v }
func (v *Integer) String() string { return strconv.FormatInt(v.v, 10) }

// Real is a 64-bit float value.
type Real struct {
	slot
	v float64
}

func (v *Real) Kind() Kind     { return KindReal }
func (v *Real) Float() float64 { return v.v }
func (v *Real) Interface() any { return v.v }
func (v *Real) String() string { return strconv.FormatFloat(v.v, 'g', -1, 64) }

// Bool is a boolean value.
type Bool struct {
	slot
	v bool
}

func (v *Bool) Kind() Kind     { return KindBool }
func (v *Bool) Bool() bool     { return v.v }
func (v *Bool) Interface() any { return v.v }
func (v *Bool) String() string { return strconv.FormatBool(v.v) }

// String is an immutable UTF-8 string value.
type String struct {
	slot
	v string
}

func (v *String) Kind() Kind     { return KindString }
func (v *String) Str() string    { return v.v }
func (v *String) Interface() any { return v.v }
func (v *String) String() string { return strconv.Quote(v.v) }

// Bytes returns the UTF-8 encoding handed to the native layer.
func (v *String) Bytes() []byte { return []byte(v.v) }

// FileDescriptor is a non-negative file descriptor value.
type FileDescriptor struct {
	slot
	fd int
}

func (v *FileDescriptor) Kind() Kind     { return KindFileDescriptor }
func (v *FileDescriptor) FD() int        { return v.fd }
func (v *FileDescriptor) Interface() any { return v.fd }
func (v *FileDescriptor) String() string { return "fd(" + strconv.Itoa(v.fd) + ")" }

// MachPort is a mach port name value.
type MachPort struct {
	slot
	port uint32
}

func (v *MachPort) Kind() Kind     { return KindMachPort }
func (v *MachPort) Port() uint32   { return v.port }
func (v *MachPort) Interface() any { return v.port }
func (v *MachPort) String() string { return "port(" + strconv.FormatUint(uint64(v.port), 10) + ")" }

// Errno is the plain form of a decoded error code.
type Errno int

func (e Errno) Syscall() syscall.Errno { return syscall.Errno(e) }

func (e Errno) String() string {
	if e == 0 {
		return "errno(0)"
	}
	return "errno(" + strconv.Itoa(int(e)) + ": " + syscall.Errno(e).Error() + ")"
}

// ErrorCode wraps an error code. It never owns a native handle, so it
// cannot be inserted into a composite or sent.
type ErrorCode struct {
	slot
	code Errno
}

func (v *ErrorCode) Kind() Kind     { return KindErrorCode }
func (v *ErrorCode) Code() Errno    { return v.code }
func (v *ErrorCode) Interface() any { return v.code }
func (v *ErrorCode) String() string { return v.code.String() }
