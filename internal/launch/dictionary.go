package launch

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Dictionary is a string-keyed composite. Its mirror keeps first-insertion
// key order and stays in sync with the native dictionary.
type Dictionary struct {
	slot
	m       *Marshaler
	keys    []string
	entries map[string]Value
}

// Dictionary allocates a dictionary and inserts init in sorted key order.
// A nil init yields an empty dictionary.
func (m *Marshaler) Dictionary(init map[string]any) (*Dictionary, error) {
	d, err := m.newDictionary()
	if err != nil {
		return nil, err
	}
	for _, k := range sortedKeys(init) {
		if err := d.Insert(k, init[k]); err != nil {
			d.Release()
			return nil, err
		}
	}
	return d, nil
}

// OrderedDictionary allocates a dictionary and inserts entries in order.
func (m *Marshaler) OrderedDictionary(entries Map) (*Dictionary, error) {
	d, err := m.newDictionary()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := d.Insert(e.Key, e.Value); err != nil {
			d.Release()
			return nil, err
		}
	}
	return d, nil
}

func (m *Marshaler) newDictionary() (*Dictionary, error) {
	h := m.native.Alloc(KindDictionary)
	if h == NilHandle {
		return nil, m.allocFailed(KindDictionary)
	}
	return &Dictionary{
		slot:    ownedSlot(m.native, h),
		m:       m,
		entries: make(map[string]Value),
	}, nil
}

func (d *Dictionary) Kind() Kind { return KindDictionary }

func (d *Dictionary) Len() int { return len(d.keys) }

// Keys returns the keys in mirror order.
func (d *Dictionary) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Insert binds value under key. key is a string or *String; value is a
// Value or a literal accepted by Coerce. On success value is absorbed by
// the dictionary. An existing binding is replaced: the native insert frees
// the displaced handle and its wrapper becomes Released.
func (d *Dictionary) Insert(key, value any) error {
	k, err := dictKey(key)
	if err != nil {
		return err
	}
	child, temp, err := d.m.operand(KindDictionary, value)
	if err != nil {
		return err
	}
	if err := d.m.claim(d, child); err != nil {
		if temp {
			child.Release()
		}
		return err
	}
	if !d.native.DictInsert(d.handle, child.Handle(), k) {
		if temp {
			child.Release()
		}
		log.Debug().Str("key", k).Str("kind", child.Kind().String()).Msg("launch.dict insert rejected")
		return fmt.Errorf("%w: dictionary key %q", ErrInsertion, k)
	}
	if prev, ok := d.entries[k]; ok {
		prev.invalidate()
	} else {
		d.keys = append(d.keys, k)
	}
	d.entries[k] = child
	child.base().absorb()
	return nil
}

// Find returns the plain value bound to key. It reads only the mirror.
func (d *Dictionary) Find(key any) (any, error) {
	k, err := dictKey(key)
	if err != nil {
		return nil, err
	}
	v, ok := d.entries[k]
	if !ok {
		return nil, &KeyError{Key: k}
	}
	return v.Interface(), nil
}

// Lookup returns the child value bound to key.
func (d *Dictionary) Lookup(key string) (Value, bool) {
	v, ok := d.entries[key]
	return v, ok
}

// Remove unbinds key. It reports false, leaving state unchanged, when the
// key is absent, the key type is invalid, or the native remove fails. The
// removed child's handle is freed by the native remove.
func (d *Dictionary) Remove(key any) bool {
	k, err := dictKey(key)
	if err != nil || d.state == Released {
		return false
	}
	if !d.native.DictRemove(d.handle, k) {
		return false
	}
	if child, ok := d.entries[k]; ok {
		child.invalidate()
		delete(d.entries, k)
		for i, existing := range d.keys {
			if existing == k {
				d.keys = append(d.keys[:i], d.keys[i+1:]...)
				break
			}
		}
	}
	return true
}

// Release frees the native dictionary and everything it owns when d is a
// root. It is a no-op for an absorbed or released dictionary.
func (d *Dictionary) Release() {
	if d.state != Owned {
		return
	}
	d.native.Free(d.handle)
	d.invalidate()
}

func (d *Dictionary) invalidate() {
	d.slot.invalidate()
	for _, child := range d.entries {
		child.invalidate()
	}
}

func (d *Dictionary) Interface() any {
	out := make(map[string]any, len(d.entries))
	for k, v := range d.entries {
		out[k] = v.Interface()
	}
	return out
}

func (d *Dictionary) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: %s", k, d.entries[k].String())
	}
	b.WriteByte('}')
	return b.String()
}

func dictKey(key any) (string, error) {
	switch k := key.(type) {
	case string:
		return k, nil
	case *String:
		if k != nil {
			return k.Str(), nil
		}
	}
	return "", fmt.Errorf("%w: got %T", ErrKeyType, key)
}
