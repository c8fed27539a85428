package protocol

import "errors"

var (
	ErrNilNode           = errors.New("protocol: nil node")
	ErrUnknownKind       = errors.New("protocol: unknown node kind")
	ErrTooDeep           = errors.New("protocol: node tree too deep")
	ErrDuplicateKey      = errors.New("protocol: duplicate dictionary key")
	ErrInvalidPayload    = errors.New("protocol: invalid payload")
	ErrMessageType       = errors.New("protocol: unexpected message type")
	ErrMessageIDMismatch = errors.New("protocol: reply message id mismatch")
)
