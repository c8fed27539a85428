package launch_test

import (
	"testing"

	"github.com/danmuck/launchkit/internal/launch"
	"github.com/danmuck/launchkit/internal/native/memory"
	"github.com/danmuck/launchkit/internal/testutil/testlog"
)

func newMarshaler(t *testing.T, opts ...memory.Option) (*launch.Marshaler, *memory.Native) {
	t.Helper()
	testlog.Start(t)
	n := memory.New(append([]memory.Option{memory.WithName("launch-test")}, opts...)...)
	return launch.NewMarshaler(n), n
}

// requireBalanced fails unless every allocated handle was freed exactly once.
func requireBalanced(t *testing.T, n *memory.Native) {
	t.Helper()
	st := n.Stats()
	if st.Allocs != st.Frees || st.InvalidFrees != 0 {
		t.Fatalf("unbalanced handles: %+v", st)
	}
}
