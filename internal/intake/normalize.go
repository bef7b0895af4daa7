package intake

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosis/goodvibes-bookings/internal/domain"
	"github.com/diagnosis/goodvibes-bookings/internal/schedule"
	"github.com/diagnosis/goodvibes-bookings/internal/utils"
)

const (
	// DefaultDuration applies to externally sourced bookings, whose service length is unknown.
	DefaultDuration = 60 * time.Minute

	DefaultCustomerName = "Guest"
	BlockCustomerName   = "Blocked"
	ExternalServiceID   = "external"
)

var defaultStart = domain.NewClock(9, 0)

// ValidationError rejects a canonical payload. Loose payloads never produce one.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type Normalizer struct {
	catalog *domain.Catalog
	rules   []PriceRule
	now     func() time.Time
	newID   func() string
}

type Option func(*Normalizer)

func WithClock(now func() time.Time) Option { return func(n *Normalizer) { n.now = now } }

func WithIDGenerator(f func() string) Option { return func(n *Normalizer) { n.newID = f } }

func WithPriceRules(rules []PriceRule) Option { return func(n *Normalizer) { n.rules = rules } }

func NewNormalizer(catalog *domain.Catalog, opts ...Option) *Normalizer {
	n := &Normalizer{
		catalog: catalog,
		rules:   DefaultPriceRules,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize produces an active canonical record from either payload variant.
func (n *Normalizer) Normalize(p Payload) (domain.Booking, error) {
	switch p.Kind {
	case KindCanonical:
		if p.Canonical == nil {
			return domain.Booking{}, &ValidationError{Field: "body", Reason: "empty canonical payload"}
		}
		return n.canonical(*p.Canonical)
	case KindLoose:
		if p.Loose == nil {
			return n.loose(LoosePayload{}), nil
		}
		return n.loose(*p.Loose), nil
	default:
		return domain.Booking{}, &ValidationError{Field: "body", Reason: "unrecognised payload"}
	}
}

func (n *Normalizer) canonical(c CanonicalPayload) (domain.Booking, error) {
	typ := domain.TypeBooking
	if c.ServiceID == nil {
		typ = domain.TypeBlock
	}
	if c.Type != "" {
		t, ok := domain.ParseBookingType(c.Type)
		if !ok {
			return domain.Booking{}, &ValidationError{Field: "type", Reason: "must be 'booking' or 'block'"}
		}
		typ = t
	}

	name := utils.NormalizeString(c.CustomerName)
	if name == "" && typ == domain.TypeBlock {
		name = BlockCustomerName
	}
	if name == "" {
		return domain.Booking{}, &ValidationError{Field: "customerName", Reason: "required"}
	}
	if !domain.ValidDate(c.Date) {
		return domain.Booking{}, &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	iv, err := schedule.ParseInterval(c.StartTime, c.EndTime)
	if err != nil {
		return domain.Booking{}, &ValidationError{Field: "startTime/endTime", Reason: err.Error()}
	}

	email := utils.NormalizeEmail(c.CustomerEmail)
	if email != "" && !utils.IsValidEmail(email) {
		return domain.Booking{}, &ValidationError{Field: "customerEmail", Reason: "invalid address"}
	}

	b := domain.Booking{
		ID:            utils.FirstNonEmpty(c.ID),
		CustomerName:  name,
		CustomerEmail: email,
		Date:          c.Date,
		StartTime:     iv.Start.String(),
		EndTime:       iv.End.String(),
		Status:        domain.BookingActive,
		Type:          typ,
	}
	if b.ID == "" {
		b.ID = n.newID()
	}

	if typ == domain.TypeBlock {
		if c.ServiceID != nil {
			sid := *c.ServiceID
			b.ServiceID = &sid
		}
		return b, nil
	}

	if c.ServiceID == nil || utils.FirstNonEmpty(*c.ServiceID) == "" {
		return domain.Booking{}, &ValidationError{Field: "serviceId", Reason: "required for bookings"}
	}
	sid := utils.FirstNonEmpty(*c.ServiceID)
	b.ServiceID = &sid

	switch svc, known := n.catalog.Lookup(sid); {
	case c.Price != nil:
		if *c.Price < 0 {
			return domain.Booking{}, &ValidationError{Field: "price", Reason: "must not be negative"}
		}
		b.Price = *c.Price
	case known:
		b.Price = svc.Price
	default:
		return domain.Booking{}, &ValidationError{Field: "price", Reason: "required for unknown service " + sid}
	}
	return b, nil
}

// loose never fails. Every unusable field falls back to a default.
func (n *Normalizer) loose(l LoosePayload) domain.Booking {
	start, ok := ParseMeridiem(l.Time)
	if !ok {
		start = defaultStart
	}
	date := l.Date
	if !domain.ValidDate(date) {
		date = n.now().Format(domain.DateLayout)
	}
	email := utils.NormalizeEmail(l.Email)
	if !utils.IsValidEmail(email) {
		email = ""
	}

	label := utils.NormalizeString(l.Service)
	sid := utils.FirstNonEmpty(label, ExternalServiceID)
	// A catalog match is priced by its canonical name so case folding agrees with the id.
	priceLabel := label
	if svc, found := n.catalog.FindByName(label); found {
		sid = svc.ID
		priceLabel = svc.Name
	}

	id := utils.FirstNonEmpty(l.ID)
	if id == "" {
		id = n.newID()
	}

	return domain.Booking{
		ID:            id,
		CustomerName:  utils.FirstNonEmpty(utils.NormalizeString(l.Name), DefaultCustomerName),
		CustomerEmail: email,
		ServiceID:     &sid,
		Date:          date,
		StartTime:     start.String(),
		EndTime:       start.Add(DefaultDuration).String(),
		Status:        domain.BookingActive,
		Type:          domain.TypeBooking,
		Price:         PriceFor(n.rules, priceLabel),
	}
}
