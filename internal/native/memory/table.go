package memory

import (
	"sync"

	"github.com/danmuck/launchkit/internal/launch"
	"github.com/danmuck/launchkit/internal/observability"
	"github.com/rs/zerolog/log"
)

type node struct {
	kind   launch.Kind
	i      int64
	r      float64
	b      bool
	s      string
	data   []byte
	keys   []string
	dict   map[string]launch.Handle
	items  []launch.Handle
	parent launch.Handle
}

// Stats is a snapshot of table accounting. Frees counts every handle
// released, including children freed with their root.
type Stats struct {
	Allocs       int
	Frees        int
	InvalidFrees int
	Reads        int
}

// Live is the number of handles allocated and not yet freed.
func (s Stats) Live() int { return s.Allocs - s.Frees }

// Native implements launch.Native. The table is guarded by a mutex; trees
// built on it are still single-owner.
type Native struct {
	mu        sync.Mutex
	name      string
	next      launch.Handle
	nodes     map[launch.Handle]*node
	stats     Stats
	transport Transport
	faults    faults
}

type faults struct {
	limitAllocs bool
	allocBudget int
	insert      bool
	setIndex    bool
	send        error
}

type Option func(*Native)

// WithName sets the label used in metrics and logs.
func WithName(name string) Option {
	return func(n *Native) { n.name = name }
}

// WithTransport sets the transport used by Send.
func WithTransport(t Transport) Option {
	return func(n *Native) { n.transport = t }
}

func New(opts ...Option) *Native {
	n := &Native{
		name:  "memory",
		nodes: make(map[launch.Handle]*node),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

var _ launch.Native = (*Native)(nil)

func (n *Native) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}

// Live reports whether h is an allocated handle.
func (n *Native) Live(h launch.Handle) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.nodes[h]
	return ok
}

// FailAllocsAfter lets the next count allocations succeed and fails the rest.
func (n *Native) FailAllocsAfter(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.faults.limitAllocs = true
	n.faults.allocBudget = count
}

func (n *Native) FailInserts(fail bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.faults.insert = fail
}

func (n *Native) FailSetIndex(fail bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.faults.setIndex = fail
}

// FailSend makes Send return err without contacting the transport.
func (n *Native) FailSend(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.faults.send = err
}

func (n *Native) ClearFaults() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.faults = faults{}
}

// alloc must be called with mu held.
func (n *Native) alloc(nd *node) launch.Handle {
	if n.faults.limitAllocs {
		if n.faults.allocBudget <= 0 {
			log.Debug().Str("native", n.name).Str("kind", nd.kind.String()).Msg("memory.alloc injected failure")
			return launch.NilHandle
		}
		n.faults.allocBudget--
	}
	n.next++
	h := n.next
	n.nodes[h] = nd
	n.stats.Allocs++
	observability.RecordHandleAlloc(n.name, nd.kind.String())
	return h
}

func (n *Native) newNode(nd *node) launch.Handle {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.alloc(nd)
}

// Alloc creates an empty composite. Scalar kinds get a zero payload.
func (n *Native) Alloc(kind launch.Kind) launch.Handle {
	if kind == launch.KindInvalid {
		return launch.NilHandle
	}
	nd := &node{kind: kind}
	if kind == launch.KindDictionary {
		nd.dict = make(map[string]launch.Handle)
	}
	return n.newNode(nd)
}

func (n *Native) NewInteger(v int64) launch.Handle {
	return n.newNode(&node{kind: launch.KindInteger, i: v})
}

func (n *Native) NewReal(v float64) launch.Handle {
	return n.newNode(&node{kind: launch.KindReal, r: v})
}

func (n *Native) NewBool(v bool) launch.Handle {
	return n.newNode(&node{kind: launch.KindBool, b: v})
}

func (n *Native) NewString(v string) launch.Handle {
	return n.newNode(&node{kind: launch.KindString, s: v})
}

func (n *Native) NewFD(fd int) launch.Handle {
	if fd < 0 {
		return launch.NilHandle
	}
	return n.newNode(&node{kind: launch.KindFileDescriptor, i: int64(fd)})
}

func (n *Native) NewMachPort(port uint32) launch.Handle {
	return n.newNode(&node{kind: launch.KindMachPort, i: int64(port)})
}

// NewErrno allocates an error code handle. The value layer never creates
// these; they arrive in replies.
func (n *Native) NewErrno(code int) launch.Handle {
	return n.newNode(&node{kind: launch.KindErrorCode, i: int64(code)})
}

// NewOpaque allocates an opaque handle carrying data.
func (n *Native) NewOpaque(data []byte) launch.Handle {
	return n.newNode(&node{kind: launch.KindOpaque, data: append([]byte(nil), data...)})
}

// Free releases h and its subtree. Freeing a dead handle, or a handle that
// is attached to a composite, is counted as an invalid free and ignored.
func (n *Native) Free(h launch.Handle) {
	n.mu.Lock()
	defer n.mu.Unlock()
	nd, ok := n.nodes[h]
	if !ok || nd.parent != launch.NilHandle {
		n.stats.InvalidFrees++
		observability.RecordInvalidFree(n.name)
		log.Warn().Str("native", n.name).Uint64("handle", uint64(h)).Bool("attached", ok).Msg("memory.free invalid handle")
		return
	}
	n.freeTree(h)
}

// freeTree must be called with mu held.
func (n *Native) freeTree(h launch.Handle) {
	count := n.release(h)
	n.stats.Frees += count
	observability.RecordHandleFrees(n.name, count)
}

func (n *Native) release(h launch.Handle) int {
	nd, ok := n.nodes[h]
	if !ok {
		return 0
	}
	delete(n.nodes, h)
	count := 1
	for _, key := range nd.keys {
		count += n.release(nd.dict[key])
	}
	for _, item := range nd.items {
		count += n.release(item)
	}
	return count
}

func (n *Native) read(h launch.Handle) *node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stats.Reads++
	nd := n.nodes[h]
	if nd == nil {
		return &node{}
	}
	return nd
}

func (n *Native) Type(h launch.Handle) launch.Kind { return n.read(h).kind }
func (n *Native) Integer(h launch.Handle) int64    { return n.read(h).i }
func (n *Native) Real(h launch.Handle) float64     { return n.read(h).r }
func (n *Native) Bool(h launch.Handle) bool        { return n.read(h).b }
func (n *Native) String(h launch.Handle) string    { return n.read(h).s }
func (n *Native) FD(h launch.Handle) int           { return int(n.read(h).i) }
func (n *Native) MachPort(h launch.Handle) uint32  { return uint32(n.read(h).i) }
func (n *Native) Errno(h launch.Handle) int        { return int(n.read(h).i) }

// DictIterate snapshots the entries and calls fn outside the table lock so
// fn may read the children.
func (n *Native) DictIterate(dict launch.Handle, fn func(value launch.Handle, key string)) {
	n.mu.Lock()
	n.stats.Reads++
	nd, ok := n.nodes[dict]
	var keys []string
	var values []launch.Handle
	if ok && nd.kind == launch.KindDictionary {
		keys = append(keys, nd.keys...)
		for _, key := range keys {
			values = append(values, nd.dict[key])
		}
	}
	n.mu.Unlock()
	for i, key := range keys {
		fn(values[i], key)
	}
}

func (n *Native) ArrayIndex(array launch.Handle, index int) launch.Handle {
	nd := n.read(array)
	if nd.kind != launch.KindArray || index < 0 || index >= len(nd.items) {
		return launch.NilHandle
	}
	return nd.items[index]
}

func (n *Native) ArrayCount(array launch.Handle) int {
	nd := n.read(array)
	if nd.kind != launch.KindArray {
		return 0
	}
	return len(nd.items)
}

// attachable must be called with mu held.
func (n *Native) attachable(parent, child launch.Handle) bool {
	cn, ok := n.nodes[child]
	if !ok || cn.parent != launch.NilHandle || parent == child {
		return false
	}
	for p := n.nodes[parent].parent; p != launch.NilHandle; p = n.nodes[p].parent {
		if p == child {
			return false
		}
	}
	return true
}

func (n *Native) DictInsert(dict, value launch.Handle, key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	dn, ok := n.nodes[dict]
	if !ok || dn.kind != launch.KindDictionary || n.faults.insert || !n.attachable(dict, value) {
		return false
	}
	if old, exists := dn.dict[key]; exists {
		n.nodes[old].parent = launch.NilHandle
		n.freeTree(old)
	} else {
		dn.keys = append(dn.keys, key)
	}
	dn.dict[key] = value
	n.nodes[value].parent = dict
	return true
}

func (n *Native) DictRemove(dict launch.Handle, key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	dn, ok := n.nodes[dict]
	if !ok || dn.kind != launch.KindDictionary {
		return false
	}
	old, exists := dn.dict[key]
	if !exists {
		return false
	}
	delete(dn.dict, key)
	for i, k := range dn.keys {
		if k == key {
			dn.keys = append(dn.keys[:i], dn.keys[i+1:]...)
			break
		}
	}
	n.freeTree(old)
	return true
}

func (n *Native) ArraySetIndex(array, value launch.Handle, index int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	an, ok := n.nodes[array]
	if !ok || an.kind != launch.KindArray || index < 0 || index > len(an.items) {
		return false
	}
	if n.faults.setIndex || !n.attachable(array, value) {
		return false
	}
	if index == len(an.items) {
		an.items = append(an.items, value)
	} else {
		old := an.items[index]
		n.nodes[old].parent = launch.NilHandle
		n.freeTree(old)
		an.items[index] = value
	}
	n.nodes[value].parent = array
	return true
}
