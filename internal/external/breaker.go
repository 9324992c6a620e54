package external

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"pagewatch/internal/types"
)

// BreakerTransport wraps a MailTransport with a circuit breaker so a
// failing provider sheds load fast instead of stalling every pipeline run.
// Address-level rejections (blocked recipient) count as success for the
// breaker: the provider is healthy, the address is not.
type BreakerTransport struct {
	inner   MailTransport
	breaker *gobreaker.CircuitBreaker[string]
	logger  types.Logger
}

// BreakerSettings tunes the circuit breaker. Zero values fall back to the
// defaults (5 consecutive failures to trip, 30s open interval).
type BreakerSettings struct {
	MaxFailures  uint32
	OpenInterval time.Duration
}

// NewBreakerTransport wraps inner with a circuit breaker.
func NewBreakerTransport(inner MailTransport, settings BreakerSettings, logger types.Logger) *BreakerTransport {
	maxFailures := settings.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	openInterval := settings.OpenInterval
	if openInterval <= 0 {
		openInterval = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "mail-transport",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     openInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var appErr *types.AppError
			if errors.As(err, &appErr) && appErr.Code == types.ErrCodeMailBlocked {
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("mail transport breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &BreakerTransport{
		inner:   inner,
		breaker: cb,
		logger:  logger,
	}
}

// Send executes the wrapped transport through the breaker. When the breaker
// is open the call fails immediately with ErrCodeUpstreamUnavailable.
func (b *BreakerTransport) Send(ctx context.Context, input *types.SendInput) (string, error) {
	msgID, err := b.breaker.Execute(func() (string, error) {
		return b.inner.Send(ctx, input)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", types.NewAppError(
				types.ErrCodeUpstreamUnavailable,
				fmt.Sprintf("mail transport circuit open: %v", err),
				err,
			)
		}
		return "", err
	}
	return msgID, nil
}

// Compile-time assertion that BreakerTransport satisfies MailTransport.
var _ MailTransport = (*BreakerTransport)(nil)
