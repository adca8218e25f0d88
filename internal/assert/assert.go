// Package assert provides debug-mode invariant checks, grounded on the
// original source's magic-number free-list corruption checks: a
// type-safe Go allocation doesn't need the magic numbers, but the
// design notes call for preserving equivalent assertions on pool and
// list invariants.
package assert

import "fmt"

// Enabled controls whether Assertf panics on a failed condition. It
// defaults to true; set false, failed assertions are silently ignored.
// The package is internal, so only code inside this module can set it.
var Enabled = true

// Assertf panics with a formatted message if cond is false and Enabled
// is true.
func Assertf(cond bool, format string, args ...any) {
	if cond || !Enabled {
		return
	}
	panic("cheapthreads: assertion failed: " + fmt.Sprintf(format, args...))
}
