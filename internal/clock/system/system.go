// Package system provides clock implementations.
package system

import "time"

// Clock implements feeds.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a clock frozen at T, for deterministic runs and tests.
type Fixed struct {
	T time.Time
}

// Now returns T in UTC.
func (f Fixed) Now() time.Time {
	return f.T.UTC()
}
