package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mailersend/mailersend-go"
)

type Mailer struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	Enabled bool
}

func NewMailer(apiKey, fromName, fromEmail string) *Mailer {
	m := &Mailer{
		Enabled: apiKey != "" && fromEmail != "",
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
	}
	if m.Enabled {
		m.client = mailersend.NewMailersend(apiKey)
	}
	return m
}

func (m *Mailer) Send(ctx context.Context, toEmail, subject, html string) (Result, error) {
	if !m.Enabled {
		return Result{}, Permanent(errors.New("mailer disabled (missing MAILERSEND_API_KEY or MAIL_FROM)"))
	}
	toEmail = strings.TrimSpace(toEmail)
	if toEmail == "" {
		return Result{}, ErrNoRecipient
	}

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Email: toEmail}})
	msg.SetSubject(subject)
	msg.SetHTML(html)

	res, err := m.client.Email.Send(ctx, msg)
	if err != nil {
		if res != nil && res.Response != nil {
			return Result{}, classify(res.StatusCode, err)
		}
		return Result{}, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return Result{}, classify(res.StatusCode, fmt.Errorf("mailersend error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body))))
	}
	// MailerSend uses X-Message-Id
	return Result{MessageID: res.Header.Get("X-Message-Id"), Provider: "mailersend"}, nil
}

// classify treats client errors other than throttling as permanent.
func classify(status int, err error) error {
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		return Permanent(err)
	}
	return err
}
