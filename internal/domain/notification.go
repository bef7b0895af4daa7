package domain

import "time"

type NotificationKind string

const (
	NotifyBookingReceived  NotificationKind = "booking_received"
	NotifyBookingCancelled NotificationKind = "booking_cancelled"
)

type NotificationDetails struct {
	CustomerName  string  `json:"customerName"`
	CustomerEmail string  `json:"customerEmail,omitempty"`
	ServiceName   string  `json:"serviceName"`
	Date          string  `json:"date"`
	Time          string  `json:"time"`
	Price         float64 `json:"price"`
}

// Notification is derived on the client side and never persisted.
type Notification struct {
	ID        string              `json:"id"`
	BookingID string              `json:"bookingId"`
	Kind      NotificationKind    `json:"type"`
	Message   string              `json:"message"`
	Details   NotificationDetails `json:"details"`
	Timestamp time.Time           `json:"timestamp"`
	Read      bool                `json:"read"`
}
