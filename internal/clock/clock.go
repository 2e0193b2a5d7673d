// Package clock abstracts time so session expiry can be tested
// deterministically.
package clock

import "time"

// Clock provides the time-related functions the session core depends on.
type Clock interface {
	Now() time.Time
}

// Real implements Clock using the standard library.
type Real struct{}

// Now returns the current UTC time.
func (Real) Now() time.Time {
	return time.Now().UTC()
}
