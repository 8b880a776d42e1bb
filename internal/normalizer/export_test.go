package normalizer

import "time"

// SetNow replaces the package clock and returns a function restoring it
func SetNow(f func() time.Time) func() {
	prev := now
	now = f
	return func() { now = prev }
}
