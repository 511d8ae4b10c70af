package ratelimit

import (
	"time"
)

// State tracks consecutive 429 responses for a single logical request.
// The retrieval loop records every backoff it performs; once the retry
// budget is spent the fetch fails rather than looping forever.
type State struct {
	// Attempts is the number of 429-triggered re-issues so far.
	Attempts int

	// LastBackoff is the most recent sleep duration.
	LastBackoff time.Duration

	// TotalSlept accumulates all backoff sleeps for this request.
	TotalSlept time.Duration
}

// Record notes one backoff sleep before a re-issue.
func (s *State) Record(backoff time.Duration) {
	s.Attempts++
	s.LastBackoff = backoff
	s.TotalSlept += backoff
}

// Exhausted reports whether the retry budget has been spent.
func (s *State) Exhausted(p Policy) bool {
	max := p.MaxRetries
	if max <= 0 {
		max = DefaultMaxRetries
	}
	return s.Attempts >= max
}

// Reset clears the state for reuse on a new request.
func (s *State) Reset() {
	s.Attempts = 0
	s.LastBackoff = 0
	s.TotalSlept = 0
}
