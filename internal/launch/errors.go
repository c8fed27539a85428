package launch

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

var (
	ErrTypeMismatch     = errors.New("launch: type mismatch")
	ErrKeyType          = errors.New("launch: dictionary key must be a string")
	ErrKeyNotFound      = errors.New("launch: key not found")
	ErrValueType        = errors.New("launch: value is not a launch value")
	ErrIndexType        = errors.New("launch: array index must be an integer")
	ErrIndexOutOfBounds = errors.New("launch: index out of bounds")
	ErrUnsupportedType  = errors.New("launch: unsupported type")
	ErrAllocation       = errors.New("launch: native allocation failed")
	ErrInsertion        = errors.New("launch: native insertion failed")
	ErrTransport        = errors.New("launch: transport failure")
	ErrNotOwned         = errors.New("launch: value does not own its handle")
	ErrReleased         = errors.New("launch: value has been released")
	ErrNilHandle        = errors.New("launch: nil handle")
	ErrTooDeep          = errors.New("launch: handle tree too deep")
)

// TypeMismatchError reports a literal whose runtime type disagrees with the
// kind being constructed.
type TypeMismatchError struct {
	Kind   Kind
	Got    string
	Reason string
}

func (e *TypeMismatchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("launch: %s expects %s, got %s", e.Kind, e.Reason, e.Got)
	}
	return fmt.Sprintf("launch: %s cannot hold %s", e.Kind, e.Got)
}

func (e *TypeMismatchError) Unwrap() error { return ErrTypeMismatch }

// UnsupportedTypeError reports a literal with no coercion rule.
type UnsupportedTypeError struct {
	Got string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("launch: no coercion for %s", e.Got)
}

func (e *UnsupportedTypeError) Unwrap() error { return ErrUnsupportedType }

// ValueTypeError reports a container value that could not be turned into a
// launch value. It matches both ErrValueType and the underlying cause.
type ValueTypeError struct {
	Container Kind
	Err       error
}

func (e *ValueTypeError) Error() string {
	return fmt.Sprintf("launch: %s value: %v", e.Container, e.Err)
}

func (e *ValueTypeError) Unwrap() []error { return []error{ErrValueType, e.Err} }

// KeyError reports a dictionary lookup for an absent key.
type KeyError struct {
	Key string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("launch: key %q not found", e.Key)
}

func (e *KeyError) Unwrap() error { return ErrKeyNotFound }

// IndexError reports an array index outside the valid range.
type IndexError struct {
	Index int64
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("launch: index %d out of bounds for array of length %d", e.Index, e.Len)
}

func (e *IndexError) Unwrap() error { return ErrIndexOutOfBounds }

// TransportError reports a failed Send. Domain and Errno carry the native
// cause when the transport reported one.
type TransportError struct {
	Domain string
	Errno  syscall.Errno
	Err    error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString("launch: transport failure")
	if e.Domain != "" {
		b.WriteString(" [")
		b.WriteString(e.Domain)
		b.WriteString("]")
	}
	if e.Errno != 0 {
		fmt.Fprintf(&b, " errno=%d (%s)", int(e.Errno), e.Errno.Error())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// faultDomain is implemented by transport errors that name the subsystem
// the failure came from.
type faultDomain interface {
	FaultDomain() string
}

func newTransportError(cause error) *TransportError {
	te := &TransportError{Err: cause}
	if cause == nil {
		return te
	}
	var errno syscall.Errno
	if errors.As(cause, &errno) {
		te.Errno = errno
	}
	var fd faultDomain
	if errors.As(cause, &fd) {
		te.Domain = fd.FaultDomain()
	}
	return te
}
