// Package confirm delivers booking confirmation emails off the request path.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/diagnosis/goodvibes-bookings/internal/domain"
	"github.com/diagnosis/goodvibes-bookings/internal/intake"
	"github.com/diagnosis/goodvibes-bookings/internal/platform/mailer"
	"github.com/diagnosis/goodvibes-bookings/internal/utils"
	"github.com/diagnosis/goodvibes-bookings/pkg/logger"
	"github.com/diagnosis/goodvibes-bookings/pkg/metrics"
)

var ErrDeliveryFailed = errors.New("confirmation delivery failed")

const (
	DefaultQueueSize = 128
	DefaultTimeout   = 10 * time.Second
	DefaultMaxTries  = 3
)

type Dispatcher struct {
	mail     mailer.Service
	catalog  *domain.Catalog
	m        *metrics.Metrics
	queue    chan domain.ConfirmationReq
	timeout  time.Duration
	maxTries uint
	backoff  func() backoff.BackOff
}

type Option func(*Dispatcher)

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan domain.ConfirmationReq, n)
		}
	}
}

func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

func WithRetry(tries uint, b func() backoff.BackOff) Option {
	return func(d *Dispatcher) {
		if tries > 0 {
			d.maxTries = tries
		}
		if b != nil {
			d.backoff = b
		}
	}
}

func New(mail mailer.Service, catalog *domain.Catalog, m *metrics.Metrics, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		mail:     mail,
		catalog:  catalog,
		m:        m,
		queue:    make(chan domain.ConfirmationReq, DefaultQueueSize),
		timeout:  DefaultTimeout,
		maxTries: DefaultMaxTries,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RequestFor builds the confirmation for a stored booking. It reports false for blocks and for
// records without a customer email.
func (d *Dispatcher) RequestFor(b domain.Booking) (domain.ConfirmationReq, bool) {
	if b.IsBlock() || b.CustomerEmail == "" {
		return domain.ConfirmationReq{}, false
	}
	sid := b.ServiceIDOr("")
	serviceName := sid
	if svc, ok := d.catalog.Lookup(sid); ok {
		serviceName = svc.Name
	}
	when := b.StartTime
	if c, err := domain.ParseClock(b.StartTime); err == nil {
		when = c.Meridiem()
	}
	return domain.ConfirmationReq{
		Email:       b.CustomerEmail,
		Name:        b.CustomerName,
		ServiceName: serviceName,
		Date:        b.Date,
		Time:        when,
		Price:       b.Price,
	}, true
}

// Enqueue schedules a confirmation for b without blocking. A full queue drops the email; the
// booking itself is already committed.
func (d *Dispatcher) Enqueue(ctx context.Context, b domain.Booking) bool {
	req, ok := d.RequestFor(b)
	if !ok {
		return false
	}
	select {
	case d.queue <- req:
		return true
	default:
		d.m.EmailDeliveries.WithLabelValues("dropped").Inc()
		logger.WarnContext(ctx, "confirmation queue full, dropping email", "booking_id", b.ID)
		return false
	}
}

// Run delivers queued confirmations until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if n := len(d.queue); n > 0 {
				logger.Warn("confirmation dispatcher stopping with pending emails", "pending", n)
			}
			return nil
		case req := <-d.queue:
			if _, err := d.deliver(ctx, req); err != nil {
				logger.Error("confirmation email failed", "to", req.Email, "error", err)
			}
		}
	}
}

// Validate checks a direct confirmation request.
func Validate(req domain.ConfirmationReq) error {
	switch {
	case !utils.IsValidEmail(utils.NormalizeEmail(req.Email)):
		return &intake.ValidationError{Field: "email", Reason: "valid address required"}
	case utils.NormalizeString(req.Name) == "":
		return &intake.ValidationError{Field: "name", Reason: "required"}
	case utils.NormalizeString(req.ServiceName) == "":
		return &intake.ValidationError{Field: "serviceName", Reason: "required"}
	case !domain.ValidDate(req.Date):
		return &intake.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	case utils.NormalizeString(req.Time) == "":
		return &intake.ValidationError{Field: "time", Reason: "required"}
	case req.Price < 0:
		return &intake.ValidationError{Field: "price", Reason: "must not be negative"}
	}
	return nil
}

// SendNow validates and delivers req synchronously.
func (d *Dispatcher) SendNow(ctx context.Context, req domain.ConfirmationReq) (domain.ConfirmationRes, error) {
	if err := Validate(req); err != nil {
		return domain.ConfirmationRes{}, err
	}
	req.Email = utils.NormalizeEmail(req.Email)
	res, err := d.deliver(ctx, req)
	if err != nil {
		return domain.ConfirmationRes{Success: false, Message: "could not send confirmation email"}, err
	}
	msg := "Confirmation email sent"
	if res.Simulated {
		msg = "Email service not configured; confirmation logged only"
	}
	return domain.ConfirmationRes{Success: true, Simulated: res.Simulated, MessageID: res.MessageID, Message: msg}, nil
}

func (d *Dispatcher) deliver(ctx context.Context, req domain.ConfirmationReq) (mailer.Result, error) {
	data := mailer.ConfirmationData{
		Name:        req.Name,
		ServiceName: req.ServiceName,
		Date:        req.Date,
		Time:        req.Time,
		Price:       req.Price,
	}
	html, err := mailer.RenderConfirmation(data)
	if err != nil {
		return mailer.Result{}, fmt.Errorf("render confirmation: %w", err)
	}
	subject := mailer.ConfirmationSubject(data)

	attempt := 0
	res, err := backoff.Retry(ctx, func() (mailer.Result, error) {
		attempt++
		actx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		r, serr := d.mail.Send(actx, req.Email, subject, html)
		if serr != nil {
			logger.WarnContext(ctx, "confirmation attempt failed", "to", req.Email, "attempt", attempt, "error", serr)
			if mailer.IsPermanent(serr) {
				return mailer.Result{}, backoff.Permanent(serr)
			}
			return mailer.Result{}, serr
		}
		return r, nil
	}, backoff.WithBackOff(d.backoff()), backoff.WithMaxTries(d.maxTries))
	if err != nil {
		d.m.EmailDeliveries.WithLabelValues("failed").Inc()
		return mailer.Result{}, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	if res.Simulated {
		d.m.EmailDeliveries.WithLabelValues("simulated").Inc()
	} else {
		d.m.EmailDeliveries.WithLabelValues("sent").Inc()
	}
	logger.InfoContext(ctx, "confirmation email delivered", "to", req.Email, "provider", res.Provider, "message_id", res.MessageID, "attempts", attempt)
	return res, nil
}
