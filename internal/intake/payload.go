// Package intake turns request bodies from heterogeneous sources into canonical bookings.
//
// The payload shape is resolved exactly once, in Decode, into a tagged Payload. Nothing past
// this boundary inspects raw JSON.
package intake

import (
	"encoding/json"
	"strconv"
	"strings"
)

type Kind int

const (
	KindCanonical Kind = iota + 1
	KindLoose
)

func (k Kind) String() string {
	switch k {
	case KindCanonical:
		return "canonical"
	case KindLoose:
		return "loose"
	default:
		return "unknown"
	}
}

// CanonicalPayload is what the operator calendar and the booking widget send.
type CanonicalPayload struct {
	ID            string   `json:"id"`
	CustomerName  string   `json:"customerName"`
	CustomerEmail string   `json:"customerEmail"`
	ServiceID     *string  `json:"serviceId"`
	Date          string   `json:"date"`
	StartTime     string   `json:"startTime"`
	EndTime       string   `json:"endTime"`
	Type          string   `json:"type"`
	Price         *float64 `json:"price"`
}

// LoosePayload is what third-party forms send: free-text service, 12-hour time.
type LoosePayload struct {
	ID      string
	Name    string
	Email   string
	Service string
	Date    string
	Time    string
}

// Payload is the discriminated request body.
type Payload struct {
	Kind      Kind
	Canonical *CanonicalPayload
	Loose     *LoosePayload
}

var canonicalKeys = []string{"serviceId", "startTime", "endTime"}

// Decode classifies a JSON object by the fields it carries. Only a body that is not a JSON
// object, or a canonical body with mistyped fields, is an error; anything else that is not
// canonical is accepted as loose.
func Decode(raw []byte) (Payload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Payload{}, &ValidationError{Field: "body", Reason: "must be a JSON object"}
	}
	if fields == nil {
		return Payload{}, &ValidationError{Field: "body", Reason: "must be a JSON object"}
	}

	for _, k := range canonicalKeys {
		if _, ok := fields[k]; ok {
			var c CanonicalPayload
			if err := json.Unmarshal(raw, &c); err != nil {
				return Payload{}, &ValidationError{Field: "body", Reason: "malformed booking: " + err.Error()}
			}
			return Payload{Kind: KindCanonical, Canonical: &c}, nil
		}
	}

	l := &LoosePayload{
		ID:      looseString(fields["id"]),
		Name:    firstField(fields, "name", "customerName"),
		Email:   firstField(fields, "email", "customerEmail"),
		Service: firstField(fields, "service", "serviceName"),
		Date:    looseString(fields["date"]),
		Time:    looseString(fields["time"]),
	}
	return Payload{Kind: KindLoose, Loose: l}, nil
}

func firstField(fields map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		if v := looseString(fields[k]); v != "" {
			return v
		}
	}
	return ""
}

// looseString reads strings and numbers; anything else reads as empty.
func looseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}
