package launch

// Handle is an opaque reference to memory owned by the native layer.
type Handle uintptr

// NilHandle is the null/failure sentinel returned by allocators and Send.
const NilHandle Handle = 0

// Allocator creates native handles. Every method returns NilHandle on failure.
type Allocator interface {
	Alloc(kind Kind) Handle
	NewInteger(v int64) Handle
	NewReal(v float64) Handle
	NewBool(v bool) Handle
	NewString(v string) Handle
	NewFD(fd int) Handle
	NewMachPort(port uint32) Handle
	// Free releases h and every handle it owns. Freeing an already freed
	// handle is undefined.
	Free(h Handle)
}

// Reader inspects native handles without changing ownership.
type Reader interface {
	Type(h Handle) Kind
	Integer(h Handle) int64
	Real(h Handle) float64
	Bool(h Handle) bool
	String(h Handle) string
	FD(h Handle) int
	MachPort(h Handle) uint32
	Errno(h Handle) int
	// DictIterate calls fn once per entry, synchronously, before returning.
	DictIterate(dict Handle, fn func(value Handle, key string))
	ArrayIndex(array Handle, index int) Handle
	ArrayCount(array Handle) int
}

// Mutator changes composite handles. A successful insert or set transfers
// ownership of value to the composite and frees any handle it displaces.
// A successful remove frees the removed value.
type Mutator interface {
	DictInsert(dict, value Handle, key string) bool
	DictRemove(dict Handle, key string) bool
	ArraySetIndex(array, value Handle, index int) bool
}

// Sender is the transport primitive. The returned handle is owned by the
// caller. A failure is reported as NilHandle and, when known, an error
// describing the native cause.
type Sender interface {
	Send(request Handle) (Handle, error)
}

// Native is the complete external API consumed by this package.
type Native interface {
	Allocator
	Reader
	Mutator
	Sender
}
