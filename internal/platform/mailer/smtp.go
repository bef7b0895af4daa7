package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"
)

type SMTPMailer struct {
	Host   string
	Port   int
	From   string
	User   string
	Pass   string
	UseTLS bool // false for Mailpit on 1025
}

func NewSMTPMailer(host string, port int, from string, user string, pass string, useTLS bool) *SMTPMailer {
	return &SMTPMailer{
		Host:   strings.TrimSpace(host),
		Port:   port,
		From:   strings.TrimSpace(from),
		User:   strings.TrimSpace(user),
		Pass:   strings.TrimSpace(pass),
		UseTLS: useTLS,
	}
}

func (s *SMTPMailer) message(toEmail, subject, html string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", s.From)
	fmt.Fprintf(&buf, "To: %s\r\n", toEmail)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: text/html; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&buf, "%s\r\n", html)
	return buf.Bytes()
}

func (s *SMTPMailer) Send(ctx context.Context, toEmail, subject, html string) (Result, error) {
	toEmail = strings.TrimSpace(toEmail)
	if toEmail == "" {
		return Result{}, ErrNoRecipient
	}
	addr := net.JoinHostPort(s.Host, fmt.Sprint(s.Port))

	var d net.Dialer
	var conn net.Conn
	var err error
	if s.UseTLS {
		// implicit TLS, e.g. port 465
		td := &tls.Dialer{NetDialer: &d, Config: &tls.Config{ServerName: s.Host}}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return Result{}, fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		return Result{}, err
	}
	defer c.Close()

	// STARTTLS when advertised; Mailpit on 1025 does not.
	if !s.UseTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: s.Host}); err != nil {
				return Result{}, err
			}
		}
	}
	if s.User != "" {
		if err := c.Auth(smtp.PlainAuth("", s.User, s.Pass, s.Host)); err != nil {
			return Result{}, Permanent(err)
		}
	}
	if err := c.Mail(s.From); err != nil {
		return Result{}, err
	}
	if err := c.Rcpt(toEmail); err != nil {
		// 5xx replies reject the mailbox; 4xx are worth another try.
		var tpe *textproto.Error
		if errors.As(err, &tpe) && tpe.Code >= 500 {
			return Result{}, Permanent(err)
		}
		return Result{}, err
	}
	w, err := c.Data()
	if err != nil {
		return Result{}, err
	}
	if _, err := w.Write(s.message(toEmail, subject, html)); err != nil {
		return Result{}, err
	}
	if err := w.Close(); err != nil {
		return Result{}, err
	}
	return Result{Provider: "smtp"}, c.Quit()
}
