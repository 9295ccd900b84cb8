// Package mjd converts between time.Time and Modified Julian Date, the
// timestamp carried by published status payloads and log records.
package mjd

import (
	"math"
	"time"
)

// unixEpoch is the MJD of 1970-01-01T00:00:00Z.
const unixEpoch = 40587.0

const secondsPerDay = 86400.0

// FromTime returns the MJD of t, including the fractional day.
func FromTime(t time.Time) float64 {
	return unixEpoch + float64(t.UnixNano())/1e9/secondsPerDay
}

// ToTime returns the UTC instant for m.
func ToTime(m float64) time.Time {
	sec := (m - unixEpoch) * secondsPerDay
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC()
}

// Now returns the current MJD.
func Now() float64 { return FromTime(time.Now()) }
