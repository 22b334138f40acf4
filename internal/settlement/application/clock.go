package application

import "time"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

// Now returns current time in UTC.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
