// Package repo defines the booking store contract shared by the file and postgres backends.
package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/diagnosis/goodvibes-bookings/internal/domain"
	"github.com/diagnosis/goodvibes-bookings/internal/schedule"
)

var (
	ErrNotFound            = errors.New("booking not found")
	ErrOverlap             = errors.New("slot overlaps an active booking")
	ErrWriteRetryExhausted = errors.New("storage write retries exhausted")
	// ErrLogUnreadable refuses a mutation on top of a log that could not be read back.
	ErrLogUnreadable = errors.New("booking log unreadable")
)

// BookingStore is an append-oriented log of bookings. Every mutation is serialized by the
// implementation; callers never need their own locking.
type BookingStore interface {
	// Append stores b unless a record with the same id exists. In that case the existing
	// record is returned untouched and created is false.
	Append(ctx context.Context, b domain.Booking) (stored domain.Booking, created bool, err error)
	// GetAll returns every record ever appended, cancelled included, in insertion order.
	GetAll(ctx context.Context) ([]domain.Booking, error)
	// Cancel moves an active record to cancelled. changed is false for repeat cancels.
	Cancel(ctx context.Context, id string) (b domain.Booking, changed bool, err error)
}

type OverlapPolicy string

const (
	PolicyAdvisory OverlapPolicy = "advisory"
	PolicyReject   OverlapPolicy = "reject"
)

func ParseOverlapPolicy(s string) (OverlapPolicy, bool) {
	switch OverlapPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyAdvisory, "":
		return PolicyAdvisory, true
	case PolicyReject:
		return PolicyReject, true
	default:
		return "", false
	}
}

// OverlapError carries the records a rejected candidate collided with.
type OverlapError struct {
	Conflicts []domain.Booking
}

func (e *OverlapError) Error() string {
	ids := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		ids = append(ids, c.ID)
	}
	return fmt.Sprintf("%s: %s", ErrOverlap, strings.Join(ids, ","))
}

func (e *OverlapError) Unwrap() error { return ErrOverlap }

// Admit runs inside a store's critical section. Under the advisory policy it never refuses.
func (p OverlapPolicy) Admit(existing []domain.Booking, candidate domain.Booking) error {
	if p != PolicyReject || !candidate.IsActive() {
		return nil
	}
	rep, err := schedule.Check(candidate, existing)
	if errors.Is(err, schedule.ErrInvalidInterval) {
		// zero-length records, e.g. a loose booking clamped at 23:59, occupy no time
		return nil
	}
	if err != nil {
		return err
	}
	if rep.Conflict {
		return &OverlapError{Conflicts: rep.Conflicts}
	}
	return nil
}

// FindByID scans a snapshot.
func FindByID(all []domain.Booking, id string) (int, bool) {
	for i, b := range all {
		if b.ID == id {
			return i, true
		}
	}
	return -1, false
}
