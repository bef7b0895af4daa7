// Package service ties intake, storage, broadcast and confirmation together.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/diagnosis/goodvibes-bookings/internal/domain"
	"github.com/diagnosis/goodvibes-bookings/internal/hub"
	"github.com/diagnosis/goodvibes-bookings/internal/intake"
	"github.com/diagnosis/goodvibes-bookings/internal/repo"
	"github.com/diagnosis/goodvibes-bookings/internal/schedule"
	"github.com/diagnosis/goodvibes-bookings/pkg/logger"
	"github.com/diagnosis/goodvibes-bookings/pkg/metrics"
)

type BookingService interface {
	Create(ctx context.Context, p intake.Payload) (CreateResult, error)
	List(ctx context.Context) ([]domain.Booking, error)
	Cancel(ctx context.Context, id string) (domain.Booking, error)
	CheckConflict(ctx context.Context, date, startTime, endTime string) (domain.ConflictReport, error)
	Services(sortBy string) []domain.Service
}

// Broadcaster is the hub as seen by the service.
type Broadcaster interface {
	Publish(ctx context.Context, ev hub.Event) int
}

// Confirmer schedules confirmation emails; it must not block.
type Confirmer interface {
	Enqueue(ctx context.Context, b domain.Booking) bool
}

type CreateResult struct {
	Booking domain.Booking
	Created bool
	Kind    intake.Kind
}

type bookingService struct {
	store      repo.BookingStore
	normalizer *intake.Normalizer
	catalog    *domain.Catalog
	hub        Broadcaster
	confirm    Confirmer
	m          *metrics.Metrics
}

func NewBookingService(
	store repo.BookingStore,
	normalizer *intake.Normalizer,
	catalog *domain.Catalog,
	hub Broadcaster,
	confirm Confirmer,
	m *metrics.Metrics,
) BookingService {
	return &bookingService{
		store:      store,
		normalizer: normalizer,
		catalog:    catalog,
		hub:        hub,
		confirm:    confirm,
		m:          m,
	}
}

// Create normalizes, persists, then broadcasts. A replayed id returns the stored record with
// Created false and triggers neither broadcast nor email.
func (s *bookingService) Create(ctx context.Context, p intake.Payload) (CreateResult, error) {
	kind := p.Kind.String()
	b, err := s.normalizer.Normalize(p)
	if err != nil {
		s.m.BookingsReceived.WithLabelValues(kind, "invalid").Inc()
		return CreateResult{}, err
	}

	stored, created, err := s.store.Append(ctx, b)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrOverlap):
			s.m.BookingsReceived.WithLabelValues(kind, "rejected").Inc()
		default:
			s.m.BookingsReceived.WithLabelValues(kind, "error").Inc()
			s.m.StoreErrors.WithLabelValues("append").Inc()
		}
		return CreateResult{}, fmt.Errorf("append booking %s: %w", b.ID, err)
	}
	res := CreateResult{Booking: stored, Created: created, Kind: p.Kind}
	if !created {
		s.m.BookingsReceived.WithLabelValues(kind, "replayed").Inc()
		logger.InfoContext(ctx, "booking replayed", "booking_id", stored.ID)
		return res, nil
	}
	s.m.BookingsReceived.WithLabelValues(kind, "created").Inc()
	logger.InfoContext(ctx, "booking created",
		"booking_id", stored.ID,
		"type", stored.Type,
		"date", stored.Date,
		"start", stored.StartTime,
		"kind", kind,
	)

	n := s.hub.Publish(ctx, hub.Event{Type: hub.EventBookingAdded, Booking: stored})
	logger.DebugContext(ctx, "booking broadcast", "booking_id", stored.ID, "delivered", n)

	if stored.CustomerEmail != "" {
		s.confirm.Enqueue(ctx, stored)
	}
	return res, nil
}

func (s *bookingService) List(ctx context.Context) ([]domain.Booking, error) {
	all, err := s.store.GetAll(ctx)
	if err != nil {
		s.m.StoreErrors.WithLabelValues("get_all").Inc()
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	if all == nil {
		all = []domain.Booking{}
	}
	return all, nil
}

// Cancel is idempotent; only the first cancel of a record is broadcast.
func (s *bookingService) Cancel(ctx context.Context, id string) (domain.Booking, error) {
	b, changed, err := s.store.Cancel(ctx, id)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			s.m.StoreErrors.WithLabelValues("cancel").Inc()
		}
		return domain.Booking{}, err
	}
	if changed {
		s.m.BookingsCancelled.Inc()
		logger.InfoContext(ctx, "booking cancelled", "booking_id", b.ID)
		s.hub.Publish(ctx, hub.Event{Type: hub.EventBookingCancelled, Booking: b})
	}
	return b, nil
}

// CheckConflict is advisory. It never changes stored state.
func (s *bookingService) CheckConflict(ctx context.Context, date, startTime, endTime string) (domain.ConflictReport, error) {
	if !domain.ValidDate(date) {
		return domain.ConflictReport{}, &intake.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	iv, err := schedule.ParseInterval(startTime, endTime)
	if err != nil {
		return domain.ConflictReport{}, &intake.ValidationError{Field: "startTime/endTime", Reason: err.Error()}
	}
	all, err := s.List(ctx)
	if err != nil {
		return domain.ConflictReport{}, err
	}
	c := schedule.Conflicts(date, iv, all)
	if c == nil {
		c = []domain.Booking{}
	}
	return domain.ConflictReport{Conflict: len(c) > 0, Conflicts: c}, nil
}

func (s *bookingService) Services(sortBy string) []domain.Service {
	if sortBy == "price" {
		return s.catalog.ByPrice()
	}
	return s.catalog.All()
}
