// Package clock abstracts time so services can be tested deterministically.
package clock

import "time"

// Clock reports the current time in UTC.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
