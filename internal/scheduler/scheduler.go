// Package scheduler arms one deadline callback per chat round.
//
// Each armed entry moves from armed to either fired or cancelled exactly once.
// Arming a newer generation for a chat cancels the older entry. Callbacks are
// never retried; a callback that races a cancellation is expected to be
// discarded by its receiver's generation check.
package scheduler

import (
	"sync"
	"time"
)

// FireFunc is invoked on its own goroutine when an armed deadline elapses.
type FireFunc func(chatID int64, generation uint64)

type state int

const (
	armed state = iota
	fired
	cancelled
)

type entry struct {
	generation uint64
	timer      *time.Timer
	state      state
}

// Scheduler tracks the pending deadline for each chat.
type Scheduler struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

func New() *Scheduler {
	return &Scheduler{entries: make(map[int64]*entry)}
}

// Arm schedules fire(chatID, generation) after d. A pending entry for an
// older generation of the same chat is cancelled.
func (s *Scheduler) Arm(chatID int64, generation uint64, d time.Duration, fire FireFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev := s.entries[chatID]; prev != nil && prev.state == armed {
		prev.timer.Stop()
		prev.state = cancelled
	}
	e := &entry{generation: generation, state: armed}
	e.timer = time.AfterFunc(d, func() {
		if !s.markFired(chatID, e) {
			return
		}
		fire(chatID, generation)
	})
	s.entries[chatID] = e
}

func (s *Scheduler) markFired(chatID int64, e *entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.state != armed {
		return false
	}
	e.state = fired
	if s.entries[chatID] == e {
		delete(s.entries, chatID)
	}
	return true
}

// Cancel stops the pending callback for (chatID, generation). It reports
// whether a still-armed callback was prevented from firing; cancelling a
// fired, cancelled or unknown entry returns false.
func (s *Scheduler) Cancel(chatID int64, generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[chatID]
	if e == nil || e.generation != generation || e.state != armed {
		return false
	}
	e.timer.Stop()
	e.state = cancelled
	delete(s.entries, chatID)
	return true
}

// Pending returns the number of armed entries.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop cancels every armed entry.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for chatID, e := range s.entries {
		if e.state == armed {
			e.timer.Stop()
			e.state = cancelled
		}
		delete(s.entries, chatID)
	}
}
