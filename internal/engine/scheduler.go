package engine

import (
	"time"

	"github.com/ak085/bacpipes/internal/configstore"
)

// minuteAlignment is the boundary new points are aligned to.
const minuteAlignment = time.Minute

// Scheduler decides which points are due at the current tick and advances
// their next-due times.
//
// State is exclusively owned by the engine's poll loop; the scheduler does
// no I/O and needs no locking.
type Scheduler struct {
	// nextDueAt maps point ids to their next scheduled read.
	nextDueAt map[int64]time.Time
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{nextDueAt: make(map[int64]time.Time)}
}

// Due partitions the points into those due now and counts the skipped.
//
// A point seen for the first time is aligned to the next minute boundary
// and skipped this tick. Subsequent ticks mark it due once now reaches its
// next-due time.
func (s *Scheduler) Due(points []configstore.PointView, now time.Time) (due []configstore.PointView, skipped int) {
	for _, p := range points {
		next, seen := s.nextDueAt[p.ID]
		if !seen {
			s.nextDueAt[p.ID] = nextMinuteBoundary(now)
			skipped++
			continue
		}
		if now.Before(next) {
			skipped++
			continue
		}
		due = append(due, p)
	}
	return due, skipped
}

// Advance moves a point's schedule forward by its interval after a
// successful read.
//
// When the engine has fallen behind by more than one interval, the
// schedule jumps to the next integer multiple past now (catch-up
// suppression) so a stalled engine does not burst-read on recovery. The
// advanced time stays congruent to the original schedule modulo the
// interval.
func (s *Scheduler) Advance(pointID int64, interval time.Duration, now time.Time) {
	if interval <= 0 {
		interval = minuteAlignment
	}

	next, ok := s.nextDueAt[pointID]
	if !ok {
		s.nextDueAt[pointID] = nextMinuteBoundary(now)
		return
	}

	next = next.Add(interval)
	if !next.After(now) {
		behind := now.Sub(next)
		steps := behind/interval + 1
		next = next.Add(steps * interval)
	}
	s.nextDueAt[pointID] = next
}

// NextDue returns a point's scheduled time, for observability.
func (s *Scheduler) NextDue(pointID int64) (time.Time, bool) {
	next, ok := s.nextDueAt[pointID]
	return next, ok
}

// Prune drops schedule entries for points no longer configured, keeping
// the map bounded across configuration changes.
func (s *Scheduler) Prune(points []configstore.PointView) {
	active := make(map[int64]struct{}, len(points))
	for _, p := range points {
		active[p.ID] = struct{}{}
	}
	for id := range s.nextDueAt {
		if _, ok := active[id]; !ok {
			delete(s.nextDueAt, id)
		}
	}
}

// nextMinuteBoundary returns the smallest minute boundary at or after now.
func nextMinuteBoundary(now time.Time) time.Time {
	truncated := now.Truncate(minuteAlignment)
	if truncated.Equal(now) {
		return now
	}
	return truncated.Add(minuteAlignment)
}
