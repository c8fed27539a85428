package protocol

import (
	"fmt"
	"syscall"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so the same tree always
// produces the same bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		MaxNestedLevels: 4*MaxNodeDepth + 8,
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

// MarshalNode encodes a validated tree.
func MarshalNode(n *Node) ([]byte, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return encMode.Marshal(n)
}

// UnmarshalNode decodes and validates a tree.
func UnmarshalNode(data []byte) (*Node, error) {
	var n Node
	if err := decMode.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}

// Fault is the payload of an error frame. Code is an errno value when the
// failure maps to one.
type Fault struct {
	Domain  string `cbor:"domain"`
	Code    int    `cbor:"code"`
	Message string `cbor:"message,omitempty"`
}

func (f *Fault) Error() string {
	if f.Code != 0 {
		return fmt.Sprintf("%s: %s (errno %d)", f.Domain, f.Message, f.Code)
	}
	return fmt.Sprintf("%s: %s", f.Domain, f.Message)
}

// FaultDomain names the subsystem that produced the fault.
func (f *Fault) FaultDomain() string { return f.Domain }

func (f *Fault) Unwrap() error {
	if f.Code == 0 {
		return nil
	}
	return syscall.Errno(f.Code)
}

func MarshalFault(f *Fault) ([]byte, error) {
	return encMode.Marshal(f)
}

func UnmarshalFault(data []byte) (*Fault, error) {
	var f Fault
	if err := decMode.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &f, nil
}
