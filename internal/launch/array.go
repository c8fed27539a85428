package launch

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"
)

// Array is an index-addressed composite with no gaps.
type Array struct {
	slot
	m     *Marshaler
	items []Value
}

// Array allocates an array and appends init in order. A nil init yields an
// empty array.
func (m *Marshaler) Array(init []any) (*Array, error) {
	h := m.native.Alloc(KindArray)
	if h == NilHandle {
		return nil, m.allocFailed(KindArray)
	}
	a := &Array{slot: ownedSlot(m.native, h), m: m}
	for _, v := range init {
		if err := a.Append(v); err != nil {
			a.Release()
			return nil, err
		}
	}
	return a, nil
}

func (a *Array) Kind() Kind { return KindArray }

func (a *Array) Len() int { return len(a.items) }

// SetValueAt stores value at index. index is a Go integer or *Integer in
// [0, Len()]; index == Len() appends. An overwritten element is freed by
// the native set and its wrapper becomes Released.
func (a *Array) SetValueAt(index, value any) error {
	i, err := arrayIndex(index)
	if err != nil {
		return err
	}
	if i < 0 || i > int64(len(a.items)) {
		return &IndexError{Index: i, Len: len(a.items)}
	}
	child, temp, err := a.m.operand(KindArray, value)
	if err != nil {
		return err
	}
	if err := a.m.claim(a, child); err != nil {
		if temp {
			child.Release()
		}
		return err
	}
	if !a.native.ArraySetIndex(a.handle, child.Handle(), int(i)) {
		if temp {
			child.Release()
		}
		log.Debug().Int64("index", i).Str("kind", child.Kind().String()).Msg("launch.array set rejected")
		return fmt.Errorf("%w: array index %d", ErrInsertion, i)
	}
	if int(i) == len(a.items) {
		a.items = append(a.items, child)
	} else {
		a.items[i].invalidate()
		a.items[i] = child
	}
	child.base().absorb()
	return nil
}

// Append is SetValueAt(Len(), value).
func (a *Array) Append(value any) error {
	return a.SetValueAt(len(a.items), value)
}

// GetValueAt returns the plain value at index in [0, Len()).
func (a *Array) GetValueAt(index any) (any, error) {
	i, err := arrayIndex(index)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= int64(len(a.items)) {
		return nil, &IndexError{Index: i, Len: len(a.items)}
	}
	return a.items[i].Interface(), nil
}

// At returns the child value at i.
func (a *Array) At(i int) (Value, bool) {
	if i < 0 || i >= len(a.items) {
		return nil, false
	}
	return a.items[i], true
}

// Release frees the native array and everything it owns when a is a root.
func (a *Array) Release() {
	if a.state != Owned {
		return
	}
	a.native.Free(a.handle)
	a.invalidate()
}

func (a *Array) invalidate() {
	a.slot.invalidate()
	for _, child := range a.items {
		child.invalidate()
	}
}

func (a *Array) Interface() any {
	out := make([]any, len(a.items))
	for i, v := range a.items {
		out[i] = v.Interface()
	}
	return out
}

func (a *Array) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range a.items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(v.String())
	}
	b.WriteByte(']')
	return b.String()
}

func arrayIndex(index any) (int64, error) {
	if iv, ok := index.(*Integer); ok && iv != nil {
		return iv.Int(), nil
	}
	n, ok, overflow := toInt64(index)
	if !ok {
		return 0, fmt.Errorf("%w: %w: got %T", ErrIndexOutOfBounds, ErrIndexType, index)
	}
	if overflow {
		return math.MaxInt64, nil
	}
	return n, nil
}
