package deploy

import (
	"fmt"
	"time"
)

const (
	repeatReportEvery = 5 * time.Second
	logRingSize       = 200
	buildLogTail      = 40
	maxBuildLogLine   = 2048
)

// logFolder collapses runs of identical build output into one summary line
// and remembers the most recent lines in a ring.
type logFolder struct {
	emit func(string)
	now  func() time.Time

	// reportEvery bounds how long a run of repeats stays silent; 0 reports only when the run ends.
	reportEvery time.Duration
	prev        string
	dupes       int
	reportedAt  time.Time

	ring  [logRingSize]string
	next  int
	count int
}

func newLogFolder(emit func(string)) *logFolder {
	return &logFolder{emit: emit, now: time.Now, reportEvery: repeatReportEvery}
}

// Push records one line of output.
func (f *logFolder) Push(line string) {
	if line == "" {
		return
	}
	if len(line) > maxBuildLogLine {
		line = line[:maxBuildLogLine] + "..."
	}
	now := f.now()
	if f.prev != "" && line == f.prev {
		f.dupes++
		if f.reportEvery > 0 && now.Sub(f.reportedAt) >= f.reportEvery {
			f.reportDupes(now)
		}
		return
	}
	f.reportDupes(now)
	f.prev = line
	f.record(line, now)
}

// Flush reports a pending run of repeats.
func (f *logFolder) Flush() {
	f.reportDupes(f.now())
}

// Tail returns up to n of the newest lines, oldest first. n <= 0 returns everything kept.
func (f *logFolder) Tail(n int) []string {
	if n <= 0 || n > f.count {
		n = f.count
	}
	out := make([]string, 0, n)
	for i := f.count - n; i < f.count; i++ {
		start := (f.next - f.count + len(f.ring)) % len(f.ring)
		out = append(out, f.ring[(start+i)%len(f.ring)])
	}
	return out
}

func (f *logFolder) reportDupes(now time.Time) {
	if f.dupes == 0 {
		return
	}
	summary := fmt.Sprintf("%s (repeated %d more times)", f.prev, f.dupes)
	f.dupes = 0
	f.record(summary, now)
}

func (f *logFolder) record(line string, now time.Time) {
	if f.emit != nil {
		f.emit(line)
	}
	f.reportedAt = now
	f.ring[f.next] = line
	f.next = (f.next + 1) % len(f.ring)
	if f.count < len(f.ring) {
		f.count++
	}
}
