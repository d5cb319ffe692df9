package app

import (
	"os"
	"strconv"
)

// TestModeEnv, when true, makes the binaries return before dialing Postgres or
// Redis. internal/testing/guard sets it for tests of main packages.
const TestModeEnv = "KEYSTONE_TEST_MODE"

// InTestMode reports whether TestModeEnv is set to a true value.
func InTestMode() bool {
	on, _ := strconv.ParseBool(os.Getenv(TestModeEnv))
	return on
}
