package protocol

import (
	"io"

	"github.com/danmuck/launchkit/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// WriteRequest frames n as a request. A non-empty auth travels in the
// frame's auth block.
func WriteRequest(w io.Writer, messageID uint64, n *Node, auth []byte, limits frame.Limits) error {
	payload, err := MarshalNode(n)
	if err != nil {
		return err
	}
	return frame.WriteFrame(w, frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: frame.MsgRequest,
		},
		Auth:    auth,
		Payload: payload,
	}, limits)
}

// WriteReply frames n as the reply to messageID.
func WriteReply(w io.Writer, messageID uint64, n *Node, limits frame.Limits) error {
	payload, err := MarshalNode(n)
	if err != nil {
		return err
	}
	return frame.WriteFrame(w, frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: frame.MsgReply,
			Flags:       frame.FlagIsResponse,
		},
		Payload: payload,
	}, limits)
}

// WriteFault frames f as an error reply to messageID.
func WriteFault(w io.Writer, messageID uint64, f *Fault, limits frame.Limits) error {
	payload, err := MarshalFault(f)
	if err != nil {
		return err
	}
	return frame.WriteFrame(w, frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: frame.MsgReply,
			Flags:       frame.FlagIsResponse | frame.FlagIsError,
		},
		Payload: payload,
	}, limits)
}

// DecodeRequest extracts the request tree from a frame.
func DecodeRequest(f frame.Frame) (*Node, error) {
	if f.Header.MessageType != frame.MsgRequest {
		log.Debug().Uint32("message_type", f.Header.MessageType).Msg("protocol.DecodeRequest unexpected type")
		return nil, ErrMessageType
	}
	return UnmarshalNode(f.Payload)
}

// DecodeReply extracts the reply tree for messageID. An error frame is
// returned as a *Fault error.
func DecodeReply(f frame.Frame, messageID uint64) (*Node, error) {
	if f.Header.MessageType != frame.MsgReply || f.Header.Flags&frame.FlagIsResponse == 0 {
		return nil, ErrMessageType
	}
	if f.Header.MessageID != messageID {
		return nil, ErrMessageIDMismatch
	}
	if f.IsError() {
		fault, err := UnmarshalFault(f.Payload)
		if err != nil {
			return nil, err
		}
		return nil, fault
	}
	return UnmarshalNode(f.Payload)
}
