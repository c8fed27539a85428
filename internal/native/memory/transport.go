package memory

import (
	"errors"
	"fmt"

	"github.com/danmuck/launchkit/internal/launch"
	"github.com/danmuck/launchkit/internal/protocol"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoTransport   = errors.New("memory: no transport configured")
	ErrInvalidHandle = errors.New("memory: invalid handle")
	ErrEmptyReply    = errors.New("memory: transport returned no reply")
)

// Transport carries an exported request tree to a service manager and
// returns its reply tree.
type Transport interface {
	RoundTrip(req *protocol.Node) (*protocol.Node, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(req *protocol.Node) (*protocol.Node, error)

func (f TransportFunc) RoundTrip(req *protocol.Node) (*protocol.Node, error) {
	return f(req)
}

// Echo is a Transport that replies with the request.
var Echo = TransportFunc(func(req *protocol.Node) (*protocol.Node, error) {
	return req, nil
})

// Send exports request, hands it to the transport and imports the reply.
// The reply handle is a new root owned by the caller.
func (n *Native) Send(request launch.Handle) (launch.Handle, error) {
	n.mu.Lock()
	if err := n.faults.send; err != nil {
		n.mu.Unlock()
		log.Debug().Str("native", n.name).Err(err).Msg("memory.send injected failure")
		return launch.NilHandle, err
	}
	transport := n.transport
	req, err := n.export(request, 0)
	n.mu.Unlock()
	if transport == nil {
		return launch.NilHandle, ErrNoTransport
	}
	if err != nil {
		return launch.NilHandle, err
	}

	reply, err := transport.RoundTrip(req)
	if err != nil {
		return launch.NilHandle, err
	}
	if reply == nil {
		return launch.NilHandle, ErrEmptyReply
	}
	h, err := n.Import(reply)
	if err != nil {
		return launch.NilHandle, err
	}
	return h, nil
}

// Export copies the tree rooted at h into a protocol node.
func (n *Native) Export(h launch.Handle) (*protocol.Node, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.export(h, 0)
}

// export must be called with mu held.
func (n *Native) export(h launch.Handle, depth int) (*protocol.Node, error) {
	if depth > protocol.MaxNodeDepth {
		return nil, protocol.ErrTooDeep
	}
	nd, ok := n.nodes[h]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}
	switch nd.kind {
	case launch.KindDictionary:
		out := &protocol.Node{Kind: nd.kind, Entries: make([]protocol.Entry, 0, len(nd.keys))}
		for _, key := range nd.keys {
			child, err := n.export(nd.dict[key], depth+1)
			if err != nil {
				return nil, err
			}
			out.Entries = append(out.Entries, protocol.Entry{Key: key, Value: child})
		}
		return out, nil
	case launch.KindArray:
		out := &protocol.Node{Kind: nd.kind, Items: make([]*protocol.Node, 0, len(nd.items))}
		for _, item := range nd.items {
			child, err := n.export(item, depth+1)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, child)
		}
		return out, nil
	}
	return &protocol.Node{
		Kind: nd.kind,
		Int:  nd.i,
		Real: nd.r,
		Bool: nd.b,
		Str:  nd.s,
		Data: append([]byte(nil), nd.data...),
	}, nil
}

// Import allocates a new tree from node. On failure everything allocated
// for the tree is freed.
func (n *Native) Import(node *protocol.Node) (launch.Handle, error) {
	if err := node.Validate(); err != nil {
		return launch.NilHandle, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	h := n.importNode(node)
	if h == launch.NilHandle {
		return launch.NilHandle, launch.ErrAllocation
	}
	return h, nil
}

// importNode must be called with mu held. Children are attached as they
// are built, so freeing the root on failure reclaims the partial tree.
func (n *Native) importNode(src *protocol.Node) launch.Handle {
	nd := &node{kind: src.Kind}
	switch src.Kind {
	case launch.KindDictionary:
		nd.dict = make(map[string]launch.Handle, len(src.Entries))
	case launch.KindArray:
	default:
		nd.i, nd.r, nd.b, nd.s = src.Int, src.Real, src.Bool, src.Str
		if len(src.Data) > 0 {
			nd.data = append([]byte(nil), src.Data...)
		}
	}
	h := n.alloc(nd)
	if h == launch.NilHandle {
		return launch.NilHandle
	}
	switch src.Kind {
	case launch.KindDictionary:
		for _, e := range src.Entries {
			child := n.importNode(e.Value)
			if child == launch.NilHandle {
				n.freeTree(h)
				return launch.NilHandle
			}
			n.nodes[child].parent = h
			nd.keys = append(nd.keys, e.Key)
			nd.dict[e.Key] = child
		}
	case launch.KindArray:
		for _, item := range src.Items {
			child := n.importNode(item)
			if child == launch.NilHandle {
				n.freeTree(h)
				return launch.NilHandle
			}
			n.nodes[child].parent = h
			nd.items = append(nd.items, child)
		}
	}
	return h
}
