// Package clock provides the monotonic millisecond clock TaskScheduler and
// IOCore measure deadlines against, per spec.md §3.1 ("Absolute monotonic
// milliseconds"). time.Now().UnixMilli() is wall-clock and can jump on NTP
// step; this instead measures elapsed monotonic time since process start via
// time.Since, which Go guarantees uses the monotonic reading embedded in
// time.Time and is therefore immune to wall-clock adjustments.
package clock

import "time"

var start = time.Now()

// NowMillis returns the current monotonic millisecond timestamp, comparable
// only to other values from this process.
func NowMillis() int64 {
	return time.Since(start).Milliseconds()
}

// DurationUntil returns the non-negative time.Duration remaining until
// deadlineMillis, or 0 if it has already elapsed.
func DurationUntil(deadlineMillis int64) time.Duration {
	remaining := deadlineMillis - NowMillis()
	if remaining <= 0 {
		return 0
	}
	if remaining > int64(1<<63-1)/int64(time.Millisecond) {
		return time.Duration(1<<63 - 1)
	}
	return time.Duration(remaining) * time.Millisecond
}
