//go:build darwin && cgo

package liblaunch

import (
	"testing"

	"github.com/danmuck/launchkit/internal/launch"
	"github.com/danmuck/launchkit/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

// Builds and decodes a tree in-process; nothing here talks to launchd.
func TestTreeDecodesThroughLiblaunch(t *testing.T) {
	testlog.Start(t)
	n, err := Open()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	m := launch.NewMarshaler(n)
	root, err := m.Dictionary(map[string]any{
		"Label":            "com.example.job",
		"ProgramArguments": []any{"/bin/echo", "hi"},
		"Nice":             -5,
		"KeepAlive":        true,
	})
	if err != nil {
		t.Fatalf("dictionary: %v", err)
	}
	defer root.Release()

	got, err := m.Decode(root.Handle())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]any{
		"Label":            "com.example.job",
		"ProgramArguments": []any{"/bin/echo", "hi"},
		"Nice":             int64(-5),
		"KeepAlive":        true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("decode mismatch (-want +got):\n%s", diff)
	}

	if !root.Remove("Nice") {
		t.Fatalf("remove Nice")
	}
	if root.Len() != 3 {
		t.Fatalf("len after remove: %d", root.Len())
	}
}
