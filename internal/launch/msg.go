package launch

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Msg sends msg and returns the decoded reply. msg is a Value or a literal
// accepted by Coerce. Literals are released after the send; a Value passed
// in stays owned by the caller. The reply handle is freed exactly once
// before Msg returns, whether or not decoding succeeds.
//
// A failed send returns a *TransportError and performs no decode.
func (m *Marshaler) Msg(msg any) (any, error) {
	req, ok := msg.(Value)
	if !ok || isNilValue(req) {
		v, err := m.Coerce(msg)
		if err != nil {
			return nil, err
		}
		defer v.Release()
		req = v
	}
	if req.State() == Released {
		return nil, fmt.Errorf("%w: cannot send %s", ErrReleased, req.Kind())
	}

	start := time.Now()
	reply, err := m.native.Send(req.Handle())
	if err != nil || reply == NilHandle {
		te := newTransportError(err)
		log.Debug().Err(te).Str("kind", req.Kind().String()).Dur("elapsed", time.Since(start)).Msg("launch.msg send failed")
		return nil, te
	}
	defer m.native.Free(reply)

	out, err := m.Decode(reply)
	if err != nil {
		return nil, fmt.Errorf("launch: decode reply: %w", err)
	}
	log.Debug().Str("kind", req.Kind().String()).Dur("elapsed", time.Since(start)).Msg("launch.msg ok")
	return out, nil
}
