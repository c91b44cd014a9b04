// Package system provides clocks for timestamping runs and model artifacts.
package system

import "time"

// Clock reads the wall clock in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always reports the same instant.
type Fixed time.Time

// Now returns the fixed time in UTC.
func (f Fixed) Now() time.Time {
	return time.Time(f).UTC()
}
