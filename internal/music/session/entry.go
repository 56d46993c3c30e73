package session

import (
	"fmt"
	"time"
)

// QueueEntry is a resolved, playable item. Entries are created by a resolver
// and never mutated afterwards; the queue and the current slot hold the same
// pointer as it moves from one to the other.
type QueueEntry struct {
	SourceURL       string
	Title           string
	DurationSeconds int
	RequestedBy     string
}

// Duration returns the entry length. Zero means live or unknown.
func (e *QueueEntry) Duration() time.Duration {
	return time.Duration(e.DurationSeconds) * time.Second
}

// DisplayDuration formats the length as m:ss or h:mm:ss.
func (e *QueueEntry) DisplayDuration() string {
	if e.DurationSeconds <= 0 {
		return "live"
	}
	h := e.DurationSeconds / 3600
	m := (e.DurationSeconds % 3600) / 60
	s := e.DurationSeconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
