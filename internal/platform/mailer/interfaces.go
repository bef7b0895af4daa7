package mailer

import (
	"context"
	"errors"
)

// Result is what a delivery attempt produced. Simulated is set when no provider is configured
// and the message was only logged.
type Result struct {
	MessageID string
	Simulated bool
	Provider  string
}

// Service is the email delivery collaborator.
type Service interface {
	Send(ctx context.Context, recipient, subject, htmlBody string) (Result, error)
}

// PermanentError marks a failure that retrying cannot fix, such as a rejected recipient.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

var ErrNoRecipient = Permanent(errors.New("empty recipient email"))
