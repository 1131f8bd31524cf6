package app

import (
	"os"
	"sync"
)

// TestModeEnv set to "1" makes the binaries return before dialling PostgreSQL or Redis.
const TestModeEnv = "CASHDESK_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(TestModeEnv) == "1"
})

// InTestMode reports whether startup side effects are disabled. The flag is read once.
func InTestMode() bool {
	return testMode()
}
