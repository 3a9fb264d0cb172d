package capture

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain catches goroutines leaked by capturer lifecycles across the
// package's tests, per §5's concurrency warnings.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
