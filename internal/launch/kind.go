package launch

import "fmt"

// Kind identifies the native type of a handle. Values match liblaunch's
// LAUNCH_DATA_* constants.
type Kind uint8

const (
	KindInvalid        Kind = 0
	KindDictionary     Kind = 1
	KindArray          Kind = 2
	KindFileDescriptor Kind = 3
	KindInteger        Kind = 4
	KindReal           Kind = 5
	KindBool           Kind = 6
	KindString         Kind = 7
	KindOpaque         Kind = 8
	KindErrorCode      Kind = 9
	KindMachPort       Kind = 10
)

var kindNames = map[Kind]string{
	KindInvalid:        "invalid",
	KindDictionary:     "dictionary",
	KindArray:          "array",
	KindFileDescriptor: "fd",
	KindInteger:        "integer",
	KindReal:           "real",
	KindBool:           "bool",
	KindString:         "string",
	KindOpaque:         "opaque",
	KindErrorCode:      "errno",
	KindMachPort:       "machport",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Composite reports whether k holds child handles.
func (k Kind) Composite() bool {
	return k == KindDictionary || k == KindArray
}
