// Package schedule decides whether booking intervals collide. Everything here is pure and
// works on in-memory records only.
package schedule

import (
	"errors"
	"fmt"

	"github.com/diagnosis/goodvibes-bookings/internal/domain"
)

var ErrInvalidInterval = errors.New("invalid interval")

// Interval is a half-open [Start, End) span within one calendar day.
type Interval struct {
	Start domain.Clock
	End   domain.Clock
}

// ParseInterval parses "HH:MM" bounds. End must be strictly after start; spans that wrap past
// midnight are not representable.
func ParseInterval(start, end string) (Interval, error) {
	s, err := domain.ParseClock(start)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: start: %w", ErrInvalidInterval, err)
	}
	e, err := domain.ParseClock(end)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: end: %w", ErrInvalidInterval, err)
	}
	if e <= s {
		return Interval{}, fmt.Errorf("%w: end %s is not after start %s", ErrInvalidInterval, end, start)
	}
	return Interval{Start: s, End: e}, nil
}

// Overlaps reports whether two half-open intervals share any minute. Abutting intervals do not.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// Conflicts returns the active records on date whose interval overlaps candidate. Records with
// unparseable times are skipped rather than treated as blocking.
func Conflicts(date string, candidate Interval, existing []domain.Booking) []domain.Booking {
	var out []domain.Booking
	for _, b := range existing {
		if b.Date != date || !b.IsActive() {
			continue
		}
		iv, err := ParseInterval(b.StartTime, b.EndTime)
		if err != nil {
			continue
		}
		if candidate.Overlaps(iv) {
			out = append(out, b)
		}
	}
	return out
}

// HasConflict is the boolean form of Conflicts.
func HasConflict(date string, candidate Interval, existing []domain.Booking) bool {
	return len(Conflicts(date, candidate, existing)) > 0
}

// Check evaluates b against existing, ignoring b's own id so replays never collide with
// themselves.
func Check(b domain.Booking, existing []domain.Booking) (domain.ConflictReport, error) {
	iv, err := ParseInterval(b.StartTime, b.EndTime)
	if err != nil {
		return domain.ConflictReport{}, err
	}
	others := make([]domain.Booking, 0, len(existing))
	for _, e := range existing {
		if e.ID != b.ID {
			others = append(others, e)
		}
	}
	c := Conflicts(b.Date, iv, others)
	if c == nil {
		c = []domain.Booking{}
	}
	return domain.ConflictReport{Conflict: len(c) > 0, Conflicts: c}, nil
}
