// Package guard puts binaries into test mode when blank-imported by a test,
// so main packages can be exercised without Postgres or Redis.
package guard

import "os"

// EnvVar matches app.TestModeEnv.
const EnvVar = "KEYSTONE_TEST_MODE"

func init() {
	if _, set := os.LookupEnv(EnvVar); !set {
		_ = os.Setenv(EnvVar, "1")
	}
}
