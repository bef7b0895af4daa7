package confirm_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/goodvibes-bookings/internal/confirm"
	"github.com/diagnosis/goodvibes-bookings/internal/domain"
	"github.com/diagnosis/goodvibes-bookings/internal/intake"
	"github.com/diagnosis/goodvibes-bookings/internal/platform/mailer"
	"github.com/diagnosis/goodvibes-bookings/pkg/metrics"
)

type fakeMailer struct {
	mu       sync.Mutex
	failures []error
	sent     []string
	subjects []string
}

func (f *fakeMailer) Send(_ context.Context, to, subject, _ string) (mailer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return mailer.Result{}, err
	}
	f.sent = append(f.sent, to)
	f.subjects = append(f.subjects, subject)
	return mailer.Result{MessageID: "m-1", Provider: "fake"}, nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func fastRetry(tries uint) confirm.Option {
	return confirm.WithRetry(tries, func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) })
}

func newDispatcher(f mailer.Service, opts ...confirm.Option) (*confirm.Dispatcher, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	return confirm.New(f, domain.DefaultCatalog(), m, opts...), m
}

func sid(s string) *string { return &s }

func booking() domain.Booking {
	return domain.Booking{
		ID: "b1", CustomerName: "Sam", CustomerEmail: "sam@example.com", ServiceID: sid("2"),
		Date: "2024-05-01", StartTime: "14:30", EndTime: "15:30", Status: domain.BookingActive,
		Type: domain.TypeBooking, Price: 25,
	}
}

func TestRequestFor(t *testing.T) {
	d, _ := newDispatcher(&fakeMailer{})
	req, ok := d.RequestFor(booking())
	require.True(t, ok)
	assert.Equal(t, "Student Haircut", req.ServiceName)
	assert.Equal(t, "2:30 PM", req.Time)
	assert.Equal(t, 25.0, req.Price)

	b := booking()
	b.ServiceID = sid("Hot Towel")
	req, ok = d.RequestFor(b)
	require.True(t, ok)
	assert.Equal(t, "Hot Towel", req.ServiceName)

	b.CustomerEmail = ""
	_, ok = d.RequestFor(b)
	assert.False(t, ok)

	block := booking()
	block.Type = domain.TypeBlock
	_, ok = d.RequestFor(block)
	assert.False(t, ok)
}

func TestRunDeliversQueued(t *testing.T) {
	f := &fakeMailer{}
	d, m := newDispatcher(f, fastRetry(3))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	require.True(t, d.Enqueue(ctx, booking()))
	require.Eventually(t, func() bool { return f.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailDeliveries.WithLabelValues("sent")))

	cancel()
	<-done
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	d, m := newDispatcher(&fakeMailer{}, confirm.WithQueueSize(1))
	assert.True(t, d.Enqueue(context.Background(), booking()))
	assert.False(t, d.Enqueue(context.Background(), booking()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailDeliveries.WithLabelValues("dropped")))
}

func TestSendNowRetriesTransientFailures(t *testing.T) {
	f := &fakeMailer{failures: []error{errors.New("timeout"), errors.New("timeout")}}
	d, _ := newDispatcher(f, fastRetry(3))
	req, _ := d.RequestFor(booking())

	res, err := d.SendNow(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "m-1", res.MessageID)
	assert.Equal(t, 1, f.count())
}

func TestSendNowGivesUpAfterMaxTries(t *testing.T) {
	f := &fakeMailer{failures: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	d, m := newDispatcher(f, fastRetry(2))
	req, _ := d.RequestFor(booking())

	res, err := d.SendNow(context.Background(), req)
	assert.ErrorIs(t, err, confirm.ErrDeliveryFailed)
	assert.False(t, res.Success)
	assert.Equal(t, 0, f.count())
	assert.Len(t, f.failures, 1, "only two attempts should have been made")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailDeliveries.WithLabelValues("failed")))
}

func TestSendNowStopsOnPermanentError(t *testing.T) {
	f := &fakeMailer{failures: []error{mailer.Permanent(errors.New("rejected")), errors.New("never reached")}}
	d, _ := newDispatcher(f, fastRetry(5))
	req, _ := d.RequestFor(booking())

	_, err := d.SendNow(context.Background(), req)
	assert.ErrorIs(t, err, confirm.ErrDeliveryFailed)
	assert.Len(t, f.failures, 1)
}

func TestSendNowSimulated(t *testing.T) {
	d, m := newDispatcher(mailer.DevMailer{})
	req, _ := d.RequestFor(booking())
	res, err := d.SendNow(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Simulated)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailDeliveries.WithLabelValues("simulated")))
}

func TestValidate(t *testing.T) {
	good := domain.ConfirmationReq{Email: "a@b.co", Name: "A", ServiceName: "Cut", Date: "2024-05-01", Time: "9:00 AM", Price: 10}
	require.NoError(t, confirm.Validate(good))

	cases := map[string]func(*domain.ConfirmationReq){
		"email":       func(r *domain.ConfirmationReq) { r.Email = "nope" },
		"name":        func(r *domain.ConfirmationReq) { r.Name = " " },
		"serviceName": func(r *domain.ConfirmationReq) { r.ServiceName = "" },
		"date":        func(r *domain.ConfirmationReq) { r.Date = "tomorrow" },
		"time":        func(r *domain.ConfirmationReq) { r.Time = "" },
		"price":       func(r *domain.ConfirmationReq) { r.Price = -1 },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			r := good
			mutate(&r)
			var ve *intake.ValidationError
			require.ErrorAs(t, confirm.Validate(r), &ve)
			assert.Equal(t, field, ve.Field)
		})
	}
}
