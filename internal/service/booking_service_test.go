package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/goodvibes-bookings/internal/domain"
	"github.com/diagnosis/goodvibes-bookings/internal/hub"
	"github.com/diagnosis/goodvibes-bookings/internal/intake"
	"github.com/diagnosis/goodvibes-bookings/internal/repo"
	"github.com/diagnosis/goodvibes-bookings/internal/repo/filestore"
	"github.com/diagnosis/goodvibes-bookings/internal/service"
	"github.com/diagnosis/goodvibes-bookings/pkg/metrics"
)

type recordingHub struct {
	mu     sync.Mutex
	events []hub.Event
}

func (r *recordingHub) Publish(_ context.Context, ev hub.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return 1
}

type recordingConfirmer struct {
	queued []string
}

func (r *recordingConfirmer) Enqueue(_ context.Context, b domain.Booking) bool {
	r.queued = append(r.queued, b.ID)
	return true
}

type failingStore struct{ err error }

func (f failingStore) Append(context.Context, domain.Booking) (domain.Booking, bool, error) {
	return domain.Booking{}, false, f.err
}
func (f failingStore) GetAll(context.Context) ([]domain.Booking, error) { return nil, f.err }
func (f failingStore) Cancel(context.Context, string) (domain.Booking, bool, error) {
	return domain.Booking{}, false, f.err
}

type fixture struct {
	svc     service.BookingService
	hub     *recordingHub
	confirm *recordingConfirmer
	m       *metrics.Metrics
}

func newFixture(t *testing.T, store repo.BookingStore) fixture {
	t.Helper()
	if store == nil {
		store = filestore.New(filepath.Join(t.TempDir(), "bookings.json"))
	}
	cat := domain.DefaultCatalog()
	norm := intake.NewNormalizer(cat, intake.WithClock(func() time.Time {
		return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	}))
	f := fixture{hub: &recordingHub{}, confirm: &recordingConfirmer{}, m: metrics.New(prometheus.NewRegistry())}
	f.svc = service.NewBookingService(store, norm, cat, f.hub, f.confirm, f.m)
	return f
}

func payload(t *testing.T, body string) intake.Payload {
	t.Helper()
	p, err := intake.Decode([]byte(body))
	require.NoError(t, err)
	return p
}

func TestCreatePublishesOnceAndQueuesEmail(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, payload(t, `{"id":"a1","name":"Sam","email":"sam@example.com","service":"Student Haircut","date":"2024-05-01","time":"2:30 PM"}`))
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, intake.KindLoose, res.Kind)
	assert.Equal(t, 25.0, res.Booking.Price)

	replay, err := f.svc.Create(ctx, payload(t, `{"id":"a1","name":"Someone Else","time":"4:00 PM"}`))
	require.NoError(t, err)
	assert.False(t, replay.Created)
	assert.Equal(t, "Sam", replay.Booking.CustomerName)

	require.Len(t, f.hub.events, 1)
	assert.Equal(t, hub.EventBookingAdded, f.hub.events[0].Type)
	assert.Equal(t, []string{"a1"}, f.confirm.queued)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.BookingsReceived.WithLabelValues("loose", "replayed")))

	all, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreateWithoutEmailSkipsConfirmation(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Create(context.Background(), payload(t, `{"customerName":"Ana","serviceId":"1","date":"2024-05-02","startTime":"10:00","endTime":"10:30"}`))
	require.NoError(t, err)
	assert.Empty(t, f.confirm.queued)
	assert.Len(t, f.hub.events, 1)
}

func TestCreateValidationHasNoSideEffects(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Create(context.Background(), payload(t, `{"customerName":"Ana","serviceId":"1","date":"2024-05-02","startTime":"11:00","endTime":"10:00"}`))
	var ve *intake.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Empty(t, f.hub.events)

	all, err := f.svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateStorageFailure(t *testing.T) {
	f := newFixture(t, failingStore{err: repo.ErrWriteRetryExhausted})
	_, err := f.svc.Create(context.Background(), payload(t, `{"name":"Sam"}`))
	assert.ErrorIs(t, err, repo.ErrWriteRetryExhausted)
	assert.Empty(t, f.hub.events)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.StoreErrors.WithLabelValues("append")))
}

func TestCancelBroadcastsOnlyFirstTime(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, payload(t, `{"id":"c1","name":"Sam"}`))
	require.NoError(t, err)

	b, err := f.svc.Cancel(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, b.Status)
	_, err = f.svc.Cancel(ctx, "c1")
	require.NoError(t, err)

	require.Len(t, f.hub.events, 2)
	assert.Equal(t, hub.EventBookingCancelled, f.hub.events[1].Type)

	_, err = f.svc.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestCheckConflict(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, payload(t, `{"customerName":"Ana","serviceId":"1","date":"2024-05-02","startTime":"10:00","endTime":"11:00"}`))
	require.NoError(t, err)

	rep, err := f.svc.CheckConflict(ctx, "2024-05-02", "10:30", "11:30")
	require.NoError(t, err)
	assert.True(t, rep.Conflict)
	assert.Len(t, rep.Conflicts, 1)

	rep, err = f.svc.CheckConflict(ctx, "2024-05-02", "11:00", "12:00")
	require.NoError(t, err)
	assert.False(t, rep.Conflict)
	assert.NotNil(t, rep.Conflicts)

	_, err = f.svc.CheckConflict(ctx, "bad", "11:00", "12:00")
	var ve *intake.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestServicesSorting(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, "1", f.svc.Services("")[0].ID)
	assert.Equal(t, "7", f.svc.Services("price")[0].ID)
}
