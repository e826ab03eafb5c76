// Package system provides the wall-clock implementation of scrape.Clock.
package system

import "time"

// Clock returns the current system time.
type Clock struct{}

// New returns a system clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	return time.Now()
}
