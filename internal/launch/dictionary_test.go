package launch_test

import (
	"errors"
	"sort"
	"testing"

	"github.com/danmuck/launchkit/internal/launch"
	"github.com/google/go-cmp/cmp"
)

func TestDictionaryInsertFindRemoveScenario(t *testing.T) {
	m, n := newMarshaler(t)
	d, err := m.Dictionary(nil)
	if err != nil {
		t.Fatalf("dictionary: %v", err)
	}
	if err := d.Insert("k", 5); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := d.Find("k")
	if err != nil || got != int64(5) {
		t.Fatalf("find: %v %v", got, err)
	}
	if !d.Remove("k") {
		t.Fatalf("remove returned false")
	}
	_, err = d.Find("k")
	var ke *launch.KeyError
	if !errors.As(err, &ke) || ke.Key != "k" || !errors.Is(err, launch.ErrKeyNotFound) {
		t.Fatalf("expected KeyError, got %v", err)
	}
	if d.Remove("k") {
		t.Fatalf("second remove returned true")
	}
	d.Release()
	requireBalanced(t, n)
}

func TestDictionaryKeySetTracksInsertAndRemove(t *testing.T) {
	m, n := newMarshaler(t)
	d, err := m.Dictionary(nil)
	if err != nil {
		t.Fatalf("dictionary: %v", err)
	}
	ops := []struct {
		insert bool
		key    string
	}{
		{true, "a"}, {true, "b"}, {true, "c"}, {false, "b"}, {true, "a"},
		{false, "zz"}, {true, "d"}, {false, "a"}, {false, "a"}, {true, "b"},
	}
	want := map[string]bool{}
	for i, op := range ops {
		if op.insert {
			if err := d.Insert(op.key, i); err != nil {
				t.Fatalf("insert %q: %v", op.key, err)
			}
			want[op.key] = true
		} else {
			removed := d.Remove(op.key)
			if removed != want[op.key] {
				t.Fatalf("remove %q = %v, want %v", op.key, removed, want[op.key])
			}
			delete(want, op.key)
		}
		if d.Len() != len(want) {
			t.Fatalf("step %d: Len() = %d want %d", i, d.Len(), len(want))
		}
		keys := d.Keys()
		sort.Strings(keys)
		var wantKeys []string
		for k := range want {
			wantKeys = append(wantKeys, k)
		}
		sort.Strings(wantKeys)
		if diff := cmp.Diff(wantKeys, keys); diff != "" {
			t.Fatalf("step %d keys (-want +got):\n%s", i, diff)
		}
	}
	d.Release()
	requireBalanced(t, n)
}

func TestDictionaryKeyOrder(t *testing.T) {
	m, _ := newMarshaler(t)
	d, err := m.Dictionary(map[string]any{"b": 1, "a": 2, "c": 3})
	if err != nil {
		t.Fatalf("dictionary: %v", err)
	}
	defer d.Release()
	if err := d.Insert("a", 9); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := d.Insert("0", true); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c", "0"}, d.Keys()); diff != "" {
		t.Fatalf("keys (-want +got):\n%s", diff)
	}
}

func TestDictionaryKeyAndValueTypes(t *testing.T) {
	m, n := newMarshaler(t)
	d, err := m.Dictionary(nil)
	if err != nil {
		t.Fatalf("dictionary: %v", err)
	}
	if err := d.Insert(1, "x"); !errors.Is(err, launch.ErrKeyType) {
		t.Fatalf("expected ErrKeyType, got %v", err)
	}
	if _, err := d.Find(2.5); !errors.Is(err, launch.ErrKeyType) {
		t.Fatalf("expected ErrKeyType from Find, got %v", err)
	}
	if d.Remove(3) {
		t.Fatalf("remove with int key returned true")
	}
	if err := d.Insert("k", struct{}{}); !errors.Is(err, launch.ErrValueType) {
		t.Fatalf("expected ErrValueType, got %v", err)
	}

	key, err := m.String("label")
	if err != nil {
		t.Fatalf("string: %v", err)
	}
	if err := d.Insert(key, "com.example.job"); err != nil {
		t.Fatalf("insert with *String key: %v", err)
	}
	if got, err := d.Find(key); err != nil || got != "com.example.job" {
		t.Fatalf("find with *String key: %v %v", got, err)
	}
	if key.State() != launch.Owned {
		t.Fatalf("key wrapper should stay owned by the caller, got %s", key.State())
	}
	key.Release()
	d.Release()
	requireBalanced(t, n)
}

func TestDictionaryInsertAbsorbsValue(t *testing.T) {
	m, n := newMarshaler(t)
	d, _ := m.Dictionary(nil)
	v, _ := m.Integer(3)
	if err := d.Insert("k", v); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if v.State() != launch.Absorbed {
		t.Fatalf("state after insert: %s", v.State())
	}
	v.Release()
	if got, _ := d.Find("k"); got != int64(3) {
		t.Fatalf("absorbed value freed by child release: %v", got)
	}

	other, _ := m.Dictionary(nil)
	if err := other.Insert("k", v); !errors.Is(err, launch.ErrNotOwned) {
		t.Fatalf("expected ErrNotOwned re-inserting absorbed value, got %v", err)
	}
	if err := other.Insert("e", m.ErrorCode(1)); !errors.Is(err, launch.ErrNotOwned) {
		t.Fatalf("expected ErrNotOwned inserting errno, got %v", err)
	}
	other.Release()

	d.Release()
	if v.State() != launch.Released {
		t.Fatalf("descendant state after root release: %s", v.State())
	}
	requireBalanced(t, n)
}

func TestDictionaryReplaceReleasesPrevious(t *testing.T) {
	m, n := newMarshaler(t)
	d, _ := m.Dictionary(nil)
	first, _ := m.String("first")
	if err := d.Insert("k", first); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := d.Insert("k", "second"); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if first.State() != launch.Released || first.Handle() != launch.NilHandle {
		t.Fatalf("displaced wrapper state: %s", first.State())
	}
	if d.Len() != 1 {
		t.Fatalf("Len() = %d", d.Len())
	}
	if got, _ := d.Find("k"); got != "second" {
		t.Fatalf("find: %v", got)
	}
	d.Release()
	requireBalanced(t, n)
}

func TestDictionaryCycleRejected(t *testing.T) {
	m, n := newMarshaler(t)
	outer, _ := m.Dictionary(nil)
	inner, _ := m.Dictionary(nil)
	if err := outer.Insert("self", outer); !errors.Is(err, launch.ErrInsertion) {
		t.Fatalf("expected ErrInsertion for self insert, got %v", err)
	}
	if err := outer.Insert("inner", inner); err != nil {
		t.Fatalf("insert inner: %v", err)
	}
	if err := inner.Insert("nested", 1); err != nil {
		t.Fatalf("insert into absorbed dictionary: %v", err)
	}
	if got := outer.Interface(); !cmp.Equal(got, map[string]any{"inner": map[string]any{"nested": int64(1)}}) {
		t.Fatalf("mirror: %#v", got)
	}
	outer.Release()
	if err := inner.Insert("late", 1); !errors.Is(err, launch.ErrReleased) {
		t.Fatalf("expected ErrReleased, got %v", err)
	}
	requireBalanced(t, n)
}

func TestDictionaryNativeInsertFailure(t *testing.T) {
	m, n := newMarshaler(t)
	d, _ := m.Dictionary(map[string]any{"keep": 1})
	n.FailInserts(true)
	err := d.Insert("k", []any{1, 2})
	if !errors.Is(err, launch.ErrInsertion) {
		t.Fatalf("expected ErrInsertion, got %v", err)
	}
	if d.Len() != 1 {
		t.Fatalf("mirror changed on failure: %v", d.Keys())
	}
	v, _ := m.Integer(1)
	if err := d.Insert("k", v); !errors.Is(err, launch.ErrInsertion) {
		t.Fatalf("expected ErrInsertion, got %v", err)
	}
	if v.State() != launch.Owned {
		t.Fatalf("caller value must stay owned after failed insert, got %s", v.State())
	}
	n.FailInserts(false)
	v.Release()
	d.Release()
	requireBalanced(t, n)
}

func TestDictionaryFreshPerCall(t *testing.T) {
	m, _ := newMarshaler(t)
	a, _ := m.Dictionary(nil)
	b, _ := m.Dictionary(nil)
	defer a.Release()
	defer b.Release()
	if err := a.Insert("k", 1); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if b.Len() != 0 {
		t.Fatalf("empty dictionaries share state")
	}
}
