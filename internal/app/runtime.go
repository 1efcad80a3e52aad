package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

const testModeEnv = "ODYSSEY_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

func loadTestMode() {
	enabled, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	testMode.Store(enabled)
}

// InTestMode reports whether ODYSSEY_TEST_MODE asks the binaries to exit
// before opening storage or listeners.
func InTestMode() bool {
	testModeOnce.Do(loadTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads ODYSSEY_TEST_MODE.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	loadTestMode()
}
