package api

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for the whole package. The
// handler tests drive the middleware chain directly, so anything left
// running afterwards is a handler that spawned work it never waited for.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
