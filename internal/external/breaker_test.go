package external

import (
	"context"
	"errors"
	"sync"
	"testing"

	"pagewatch/internal/types"
)

// flakyTransport fails until the error is cleared.
type flakyTransport struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *flakyTransport) Send(ctx context.Context, input *types.SendInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "msg_flaky", nil
}

func (f *flakyTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testBreakerLogger struct{}

func (testBreakerLogger) Info(msg string, args ...any)  {}
func (testBreakerLogger) Error(msg string, args ...any) {}
func (testBreakerLogger) Warn(msg string, args ...any)  {}
func (l testBreakerLogger) With(args ...any) types.Logger { return l }

func breakerInput() *types.SendInput {
	return &types.SendInput{
		To:       []string{"alice@example.test"},
		From:     types.MailAddress{Address: "no-reply@example.test"},
		Subject:  "notice",
		BodyText: "body",
	}
}

func TestBreaker_PassThroughOnSuccess(t *testing.T) {
	inner := &flakyTransport{}
	b := NewBreakerTransport(inner, BreakerSettings{}, testBreakerLogger{})

	msgID, err := b.Send(context.Background(), breakerInput())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if msgID != "msg_flaky" {
		t.Errorf("msgID = %q", msgID)
	}
}

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyTransport{err: errors.New("provider down")}
	b := NewBreakerTransport(inner, BreakerSettings{MaxFailures: 3}, testBreakerLogger{})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := b.Send(ctx, breakerInput()); err == nil {
			t.Fatal("expected failure")
		}
	}

	// Breaker is now open: the next call must fail fast without reaching the
	// inner transport.
	before := inner.callCount()
	_, err := b.Send(ctx, breakerInput())

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamUnavailable {
		t.Fatalf("expected upstream_unavailable while open, got %v", err)
	}
	if inner.callCount() != before {
		t.Error("open breaker must not invoke the inner transport")
	}
}

func TestBreaker_BlockedAddressDoesNotTrip(t *testing.T) {
	inner := &flakyTransport{
		err: types.NewAppError(types.ErrCodeMailBlocked, "address suppressed", nil),
	}
	b := NewBreakerTransport(inner, BreakerSettings{MaxFailures: 2}, testBreakerLogger{})

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := b.Send(ctx, breakerInput())
		var appErr *types.AppError
		if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeMailBlocked {
			t.Fatalf("call %d: expected mail_blocked to pass through, got %v", i, err)
		}
	}

	if inner.callCount() != 10 {
		t.Errorf("expected every call to reach the transport, got %d", inner.callCount())
	}
}

func TestBreaker_InnerErrorPassedThrough(t *testing.T) {
	wantErr := types.NewAppError(types.ErrCodeUpstreamRateLimited, "slow down", nil)
	inner := &flakyTransport{err: wantErr}
	b := NewBreakerTransport(inner, BreakerSettings{}, testBreakerLogger{})

	_, err := b.Send(context.Background(), breakerInput())

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamRateLimited {
		t.Fatalf("expected rate-limit error passed through, got %v", err)
	}
}
