package poller

import "time"

// Schedule picks the next instant the loop wakes up at.
type Schedule interface {
	// Next returns the first boundary strictly after now.
	Next(now time.Time) time.Time
}

// DefaultMinuteOffset places the boundary one second before the minute turns.
const DefaultMinuteOffset = 59 * time.Second

// MinuteBoundary fires once per wall-clock minute at Offset into the minute.
// Offsets outside [0, 1m) are reduced modulo one minute.
type MinuteBoundary struct {
	Offset time.Duration
}

// Next implements Schedule.
func (m MinuteBoundary) Next(now time.Time) time.Time {
	offset := m.Offset % time.Minute
	if offset < 0 {
		offset += time.Minute
	}
	next := now.Truncate(time.Minute).Add(offset)
	if !next.After(now) {
		next = next.Add(time.Minute)
	}
	return next
}

// Every fires on wall-clock multiples of Interval (e.g. :00, :30 for 30s).
type Every struct {
	Interval time.Duration
}

// Next implements Schedule.
func (e Every) Next(now time.Time) time.Time {
	interval := e.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	return now.Truncate(interval).Add(interval)
}
