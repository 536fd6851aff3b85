// Package utils holds small helpers shared across packages.
package utils

import "time"

// NowUTC is the clock for every timestamp the router stores or sends.
func NowUTC() time.Time {
	return time.Now().UTC()
}
