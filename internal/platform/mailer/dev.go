package mailer

import (
	"context"

	"github.com/google/uuid"

	"github.com/diagnosis/goodvibes-bookings/pkg/logger"
)

// DevMailer logs instead of sending. It is what runs when no provider is configured.
type DevMailer struct{}

func (DevMailer) Send(ctx context.Context, toEmail, subject, html string) (Result, error) {
	logger.InfoContext(ctx, "DEV EMAIL (simulated)", "to", toEmail, "subject", subject, "bytes", len(html))
	return Result{MessageID: "sim-" + uuid.NewString(), Simulated: true, Provider: "dev"}, nil
}
