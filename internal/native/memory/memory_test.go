package memory

import (
	"errors"
	"syscall"
	"testing"

	"github.com/danmuck/launchkit/internal/launch"
	"github.com/danmuck/launchkit/internal/protocol"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestFreeRootReleasesSubtree(t *testing.T) {
	n := New(WithName("memory-test"))
	dict := n.Alloc(launch.KindDictionary)
	arr := n.Alloc(launch.KindArray)
	if !n.ArraySetIndex(arr, n.NewInteger(1), 0) || !n.ArraySetIndex(arr, n.NewString("x"), 1) {
		t.Fatalf("array set failed")
	}
	if !n.DictInsert(dict, arr, "list") || !n.DictInsert(dict, n.NewBool(true), "flag") {
		t.Fatalf("dict insert failed")
	}
	if got := n.Stats().Live(); got != 5 {
		t.Fatalf("live handles: got %d want 5", got)
	}
	n.Free(dict)
	st := n.Stats()
	if st.Live() != 0 || st.Frees != 5 || st.InvalidFrees != 0 {
		t.Fatalf("unexpected stats after free: %+v", st)
	}
}

func TestDoubleFreeIsDetected(t *testing.T) {
	n := New()
	h := n.NewInteger(7)
	n.Free(h)
	n.Free(h)
	if got := n.Stats().InvalidFrees; got != 1 {
		t.Fatalf("invalid frees: got %d want 1", got)
	}
}

func TestFreeAttachedChildIsRejected(t *testing.T) {
	n := New()
	arr := n.Alloc(launch.KindArray)
	child := n.NewInteger(1)
	n.ArraySetIndex(arr, child, 0)
	n.Free(child)
	if !n.Live(child) {
		t.Fatalf("attached child must survive a direct free")
	}
	if got := n.Stats().InvalidFrees; got != 1 {
		t.Fatalf("invalid frees: got %d want 1", got)
	}
}

func TestHandlesAreNeverReused(t *testing.T) {
	n := New()
	a := n.NewInteger(1)
	n.Free(a)
	b := n.NewInteger(2)
	if a == b {
		t.Fatalf("handle %d reused", a)
	}
}

func TestInsertRejectsAttachedAndCycles(t *testing.T) {
	n := New()
	outer := n.Alloc(launch.KindDictionary)
	inner := n.Alloc(launch.KindDictionary)
	if !n.DictInsert(outer, inner, "inner") {
		t.Fatalf("insert inner failed")
	}
	if n.DictInsert(outer, inner, "again") {
		t.Fatalf("attached child inserted twice")
	}
	if n.DictInsert(inner, outer, "cycle") {
		t.Fatalf("cycle accepted")
	}
	if n.DictInsert(outer, outer, "self") {
		t.Fatalf("self insert accepted")
	}
}

func TestDictInsertReplaceFreesPrevious(t *testing.T) {
	n := New()
	dict := n.Alloc(launch.KindDictionary)
	first := n.NewInteger(1)
	n.DictInsert(dict, first, "k")
	n.DictInsert(dict, n.NewInteger(2), "k")
	if n.Live(first) {
		t.Fatalf("replaced handle still live")
	}
	var keys []string
	n.DictIterate(dict, func(v launch.Handle, key string) {
		keys = append(keys, key)
		if n.Integer(v) != 2 {
			t.Fatalf("unexpected value %d", n.Integer(v))
		}
	})
	if diff := cmp.Diff([]string{"k"}, keys); diff != "" {
		t.Fatalf("keys (-want +got):\n%s", diff)
	}
}

func TestDictRemoveFreesValue(t *testing.T) {
	n := New()
	dict := n.Alloc(launch.KindDictionary)
	v := n.NewString("x")
	n.DictInsert(dict, v, "k")
	if !n.DictRemove(dict, "k") {
		t.Fatalf("remove failed")
	}
	if n.Live(v) {
		t.Fatalf("removed value still live")
	}
	if n.DictRemove(dict, "k") {
		t.Fatalf("second remove should fail")
	}
}

func TestArraySetIndexBounds(t *testing.T) {
	n := New()
	arr := n.Alloc(launch.KindArray)
	v := n.NewInteger(1)
	if n.ArraySetIndex(arr, v, 1) {
		t.Fatalf("set past end accepted")
	}
	if !n.ArraySetIndex(arr, v, 0) {
		t.Fatalf("append failed")
	}
	if got := n.ArrayIndex(arr, 1); got != launch.NilHandle {
		t.Fatalf("out of range index returned %d", got)
	}
	if n.Type(12345) != launch.KindInvalid {
		t.Fatalf("unknown handle should report invalid kind")
	}
}

func TestFaultInjection(t *testing.T) {
	n := New()
	n.FailAllocsAfter(1)
	if n.NewInteger(1) == launch.NilHandle {
		t.Fatalf("first allocation should succeed")
	}
	if n.NewInteger(2) != launch.NilHandle {
		t.Fatalf("second allocation should fail")
	}
	n.ClearFaults()

	dict := n.Alloc(launch.KindDictionary)
	n.FailInserts(true)
	if n.DictInsert(dict, n.NewInteger(3), "k") {
		t.Fatalf("insert should fail")
	}
	n.FailInserts(false)

	arr := n.Alloc(launch.KindArray)
	n.FailSetIndex(true)
	if n.ArraySetIndex(arr, n.NewInteger(4), 0) {
		t.Fatalf("set index should fail")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	tree := protocol.DictionaryNode(
		protocol.Entry{Key: "z", Value: protocol.IntegerNode(1)},
		protocol.Entry{Key: "a", Value: protocol.ArrayNode(
			protocol.BoolNode(true),
			protocol.RealNode(2.5),
			protocol.StringNode("x"),
			protocol.ErrnoNode(int(syscall.ENOENT)),
			&protocol.Node{Kind: launch.KindOpaque, Data: []byte{1, 2}},
		)},
	)
	n := New()
	h, err := n.Import(tree)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	out, err := n.Export(h)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if diff := cmp.Diff(tree, out, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
	n.Free(h)
	if live := n.Stats().Live(); live != 0 {
		t.Fatalf("live after free: %d", live)
	}
}

func TestImportFailureLeaksNothing(t *testing.T) {
	n := New()
	n.FailAllocsAfter(2)
	_, err := n.Import(protocol.ArrayNode(protocol.IntegerNode(1), protocol.IntegerNode(2), protocol.IntegerNode(3)))
	if !errors.Is(err, launch.ErrAllocation) {
		t.Fatalf("expected ErrAllocation, got %v", err)
	}
	if live := n.Stats().Live(); live != 0 {
		t.Fatalf("partial import leaked %d handles", live)
	}
}

func TestImportRejectsChildrenOnScalars(t *testing.T) {
	n := New()
	bad := []*protocol.Node{
		{Kind: launch.KindInteger, Entries: []protocol.Entry{{Key: "x", Value: protocol.IntegerNode(2)}}},
		{Kind: launch.KindString, Entries: []protocol.Entry{{Key: "x"}}},
		{Kind: launch.KindDictionary, Items: []*protocol.Node{protocol.IntegerNode(1)}},
	}
	for _, node := range bad {
		if _, err := n.Import(node); !errors.Is(err, protocol.ErrInvalidPayload) {
			t.Fatalf("import %+v: expected ErrInvalidPayload, got %v", node, err)
		}
	}
	if live := n.Stats().Live(); live != 0 {
		t.Fatalf("rejected imports left %d handles", live)
	}

	// a malformed reply fails the send instead of reaching the table
	n = New(WithTransport(TransportFunc(func(*protocol.Node) (*protocol.Node, error) {
		return bad[0], nil
	})))
	req := n.NewInteger(1)
	if _, err := n.Send(req); !errors.Is(err, protocol.ErrInvalidPayload) {
		t.Fatalf("send: expected ErrInvalidPayload, got %v", err)
	}
	n.Free(req)
	if live := n.Stats().Live(); live != 0 {
		t.Fatalf("live after rejected reply: %d", live)
	}
}

func TestSend(t *testing.T) {
	var seen *protocol.Node
	n := New(WithTransport(TransportFunc(func(req *protocol.Node) (*protocol.Node, error) {
		seen = req
		return protocol.StringNode("ok"), nil
	})))
	req := n.NewInteger(9)
	reply, err := n.Send(req)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if seen == nil || seen.Int != 9 {
		t.Fatalf("transport saw %+v", seen)
	}
	if n.String(reply) != "ok" {
		t.Fatalf("reply: %q", n.String(reply))
	}
	if reply == req {
		t.Fatalf("reply must be a new root")
	}
}

func TestSendFailures(t *testing.T) {
	n := New()
	if _, err := n.Send(n.NewInteger(1)); !errors.Is(err, ErrNoTransport) {
		t.Fatalf("expected ErrNoTransport, got %v", err)
	}

	n = New(WithTransport(Echo))
	n.FailSend(syscall.ECONNREFUSED)
	if _, err := n.Send(n.NewInteger(1)); !errors.Is(err, syscall.ECONNREFUSED) {
		t.Fatalf("expected injected errno, got %v", err)
	}
	n.ClearFaults()
	if _, err := n.Send(launch.Handle(9999)); !errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("expected ErrInvalidHandle, got %v", err)
	}

	n = New(WithTransport(TransportFunc(func(*protocol.Node) (*protocol.Node, error) { return nil, nil })))
	if _, err := n.Send(n.NewInteger(1)); !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("expected ErrEmptyReply, got %v", err)
	}
}
