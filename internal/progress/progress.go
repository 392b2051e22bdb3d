// Package progress formats and writes human-readable throughput updates to
// stderr. It is purely diagnostic: nothing in the dedup engine's contract
// depends on what it prints, and it is never called from a path that holds
// a lock shared with the hot add path.
package progress

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
)

// Reporter emits periodic throughput lines to an underlying writer.
type Reporter struct {
	w        io.Writer
	interval time.Duration
	last     time.Time
	lastSeen int64
}

// New constructs a Reporter that writes to w no more often than interval.
func New(w io.Writer, interval time.Duration) *Reporter {
	return &Reporter{w: w, interval: interval, last: time.Now()}
}

// Report prints a line summarizing progress if at least interval has
// elapsed since the last report; otherwise it is a no-op. seen is the total
// number of records consumed so far, distinct is the current size of the
// sharded set, and elapsed is the run's wall-clock duration in seconds.
func (r *Reporter) Report(seen, distinct int64, elapsed float64) {
	now := time.Now()
	if now.Sub(r.last) < r.interval {
		return
	}
	rate := float64(seen-r.lastSeen) / now.Sub(r.last).Seconds()
	r.last = now
	r.lastSeen = seen

	fmt.Fprintf(r.w, "pw-dedup: %s records processed (%s distinct, %.0f rec/s, %.1fs elapsed)\n",
		humanize.Comma(seen), humanize.Comma(distinct), rate, elapsed)
}

// Final prints an unconditional summary line at the end of a run.
func (r *Reporter) Final(seen, distinct int64, elapsed float64) {
	fmt.Fprintf(r.w, "pw-dedup: done - %s records, %s distinct, %.1fs elapsed\n",
		humanize.Comma(seen), humanize.Comma(distinct), elapsed)
}
