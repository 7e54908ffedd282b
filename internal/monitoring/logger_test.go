package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...any) {
		got = fmt.Sprintf(format, v...)
	})
	Logf("loaded %d sequences", 3)
	if got != "loaded 3 sequences" {
		t.Fatalf("custom logger got %q", got)
	}

	// nil discards, and the previous logger no longer receives anything
	got = ""
	SetLogger(nil)
	Logf("ignored %s", "message")
	if got != "" {
		t.Fatalf("discarded message reached the old logger: %q", got)
	}
}
