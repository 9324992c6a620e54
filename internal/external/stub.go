package external

import (
	"context"
	"fmt"
	"strings"

	"pagewatch/internal/types"
)

// StubMailTransport implements MailTransport by logging calls and returning
// a fake message id. Used when MAIL_PROVIDER=stub or APP_ENV=local, so the
// application boots without real provider credentials.
type StubMailTransport struct {
	logger types.Logger
}

// NewStubMailTransport creates a new StubMailTransport.
func NewStubMailTransport(logger types.Logger) *StubMailTransport {
	return &StubMailTransport{logger: logger}
}

func (s *StubMailTransport) Send(ctx context.Context, input *types.SendInput) (string, error) {
	s.logger.Info("stub: Send mail called",
		"to", strings.Join(input.To, ","),
		"from", input.From.Address,
		"subject", input.Subject,
		"reference_id", input.ReferenceID,
	)
	return fmt.Sprintf("msg_stub_%s", input.ReferenceID), nil
}

// Compile-time assertion that StubMailTransport satisfies MailTransport.
var _ MailTransport = (*StubMailTransport)(nil)
