// Package clock provides a monotonic wall-clock sample in fractional
// seconds, used to time the dedup run for progress output and the run
// summary without pulling time.Time formatting into hot paths.
package clock

import "time"

// base is the process-wide reference point; durations measured from it use
// Go's monotonic clock reading.
var base = time.Now()

// Now returns the current monotonic time in seconds (measured from process
// start) as a float64, suitable for subtracting two samples to get an
// elapsed duration.
func Now() float64 {
	return time.Since(base).Seconds()
}

// Elapsed returns the number of seconds since start, where start was
// obtained from Now.
func Elapsed(start float64) float64 {
	return Now() - start
}
