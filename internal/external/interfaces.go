// Package external contains clients for external services: the mail
// provider behind the notification pipeline, plus the stub implementations
// used in local and test mode.
package external

import (
	"context"

	"pagewatch/internal/types"
)

// MailTransport delivers one rendered message to one or more recipients.
// It returns the provider's opaque message id. Implementations map
// provider errors to AppError codes so callers can distinguish blocked
// addresses, rate limiting, and provider outages.
type MailTransport interface {
	Send(ctx context.Context, input *types.SendInput) (string, error)
}
