package protocol

import (
	"fmt"

	"github.com/danmuck/launchkit/internal/launch"
)

// MaxNodeDepth bounds nesting accepted from the wire.
const MaxNodeDepth = 64

// Node is the exported form of one launch handle. Int carries the payload
// of integer, fd, machport and errno kinds. Kinds this protocol does not
// model travel with their raw bytes in Data.
type Node struct {
	Kind    launch.Kind `cbor:"k"`
	Int     int64       `cbor:"i,omitempty"`
	Real    float64     `cbor:"r,omitempty"`
	Bool    bool        `cbor:"b,omitempty"`
	Str     string      `cbor:"s,omitempty"`
	Data    []byte      `cbor:"d,omitempty"`
	Entries []Entry     `cbor:"e,omitempty"`
	Items   []*Node     `cbor:"a,omitempty"`
}

// Entry is one dictionary binding. Entries keep insertion order on the wire.
type Entry struct {
	Key   string `cbor:"k"`
	Value *Node  `cbor:"v"`
}

func IntegerNode(v int64) *Node   { return &Node{Kind: launch.KindInteger, Int: v} }
func RealNode(v float64) *Node    { return &Node{Kind: launch.KindReal, Real: v} }
func BoolNode(v bool) *Node       { return &Node{Kind: launch.KindBool, Bool: v} }
func StringNode(v string) *Node   { return &Node{Kind: launch.KindString, Str: v} }
func FDNode(fd int) *Node         { return &Node{Kind: launch.KindFileDescriptor, Int: int64(fd)} }
func MachPortNode(p uint32) *Node { return &Node{Kind: launch.KindMachPort, Int: int64(p)} }
func ErrnoNode(code int) *Node    { return &Node{Kind: launch.KindErrorCode, Int: int64(code)} }

// DictionaryNode builds a dictionary node from ordered entries.
func DictionaryNode(entries ...Entry) *Node {
	return &Node{Kind: launch.KindDictionary, Entries: entries}
}

// ArrayNode builds an array node.
func ArrayNode(items ...*Node) *Node {
	return &Node{Kind: launch.KindArray, Items: items}
}

// Lookup returns the value bound to key in a dictionary node.
func (n *Node) Lookup(key string) (*Node, bool) {
	if n == nil || n.Kind != launch.KindDictionary {
		return nil, false
	}
	for _, e := range n.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Count returns the number of nodes in the tree rooted at n.
func (n *Node) Count() int {
	if n == nil {
		return 0
	}
	total := 1
	for _, e := range n.Entries {
		total += e.Value.Count()
	}
	for _, item := range n.Items {
		total += item.Count()
	}
	return total
}

// Validate checks structural invariants of a tree received from the wire.
func (n *Node) Validate() error {
	return n.validate(0)
}

func (n *Node) validate(depth int) error {
	if n == nil {
		return ErrNilNode
	}
	if depth > MaxNodeDepth {
		return ErrTooDeep
	}
	if len(n.Entries) > 0 && n.Kind != launch.KindDictionary {
		return fmt.Errorf("%w: %s carries entries", ErrInvalidPayload, n.Kind)
	}
	if len(n.Items) > 0 && n.Kind != launch.KindArray {
		return fmt.Errorf("%w: %s carries items", ErrInvalidPayload, n.Kind)
	}
	switch n.Kind {
	case launch.KindInvalid:
		return ErrUnknownKind
	case launch.KindDictionary:
		seen := make(map[string]struct{}, len(n.Entries))
		for _, e := range n.Entries {
			if _, dup := seen[e.Key]; dup {
				return fmt.Errorf("%w: %q", ErrDuplicateKey, e.Key)
			}
			seen[e.Key] = struct{}{}
			if err := e.Value.validate(depth + 1); err != nil {
				return fmt.Errorf("key %q: %w", e.Key, err)
			}
		}
	case launch.KindArray:
		for i, item := range n.Items {
			if err := item.validate(depth + 1); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
	case launch.KindFileDescriptor:
		if n.Int < 0 {
			return fmt.Errorf("%w: negative fd %d", ErrInvalidPayload, n.Int)
		}
	case launch.KindMachPort:
		if n.Int < 0 || n.Int > int64(^uint32(0)) {
			return fmt.Errorf("%w: machport %d", ErrInvalidPayload, n.Int)
		}
	}
	return nil
}
