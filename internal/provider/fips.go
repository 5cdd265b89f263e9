package provider

import "sync/atomic"

var fipsRequired atomic.Bool

// ForceFIPS tells providers to restrict new contexts to FIPS-approved settings.
// It cannot be undone.
func ForceFIPS() {
	fipsRequired.Store(true)
}

// FIPSRequired reports whether FIPS-approved settings are required.
func FIPSRequired() bool {
	return fipsRequired.Load()
}

func testingOnlyAbandonFIPS() {
	fipsRequired.Store(false)
}
