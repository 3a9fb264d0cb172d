package segment

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain catches goroutines leaked by Monitor's polling loop across
// the package's tests, per §5's concurrency warnings.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
