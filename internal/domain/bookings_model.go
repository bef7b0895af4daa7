package domain

import "time"

type BookingStatus string

const (
	BookingActive    BookingStatus = "active"
	BookingCancelled BookingStatus = "cancelled"
)

type BookingType string

const (
	TypeBooking BookingType = "booking"
	TypeBlock   BookingType = "block"
)

func ParseBookingType(s string) (BookingType, bool) {
	switch BookingType(s) {
	case TypeBooking, TypeBlock:
		return BookingType(s), true
	default:
		return "", false
	}
}

// Booking is the canonical record every component operates on. A nil ServiceID marks a
// manual block that is not tied to any service.
type Booking struct {
	ID            string        `json:"id"`
	CustomerName  string        `json:"customerName"`
	CustomerEmail string        `json:"customerEmail,omitempty"`
	ServiceID     *string       `json:"serviceId"`
	Date          string        `json:"date"`
	StartTime     string        `json:"startTime"`
	EndTime       string        `json:"endTime"`
	Status        BookingStatus `json:"status"`
	Type          BookingType   `json:"type"`
	Price         float64       `json:"price,omitempty"`
	CreatedAt     time.Time     `json:"createdAt,omitzero"`
}

func (b Booking) IsActive() bool { return b.Status == BookingActive }

func (b Booking) IsBlock() bool { return b.Type == TypeBlock }

// Cancel returns the record moved to the terminal cancelled state. The second result is
// false when the record was already cancelled.
func (b Booking) Cancel() (Booking, bool) {
	if b.Status == BookingCancelled {
		return b, false
	}
	b.Status = BookingCancelled
	return b, true
}

// ServiceIDOr returns the service id or fallback for blocks.
func (b Booking) ServiceIDOr(fallback string) string {
	if b.ServiceID == nil {
		return fallback
	}
	return *b.ServiceID
}

// ConflictReport is the advisory answer to "would this slot collide".
type ConflictReport struct {
	Conflict  bool      `json:"conflict"`
	Conflicts []Booking `json:"conflicts"`
}

type ConfirmationReq struct {
	Email       string  `json:"email"`
	Name        string  `json:"name"`
	ServiceName string  `json:"serviceName"`
	Date        string  `json:"date"`
	Time        string  `json:"time"`
	Price       float64 `json:"price"`
}

type ConfirmationRes struct {
	Success   bool   `json:"success"`
	Simulated bool   `json:"simulated,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Message   string `json:"message,omitempty"`
}
