package notify

import (
	"context"
	"fmt"

	"pagewatch/internal/external"
	"pagewatch/internal/types"
)

// Gateway is the dispatch boundary between composition and the mail
// transport. It owns the two dispatch shapes: one message to one recipient
// (personalized mode) and one message to many recipients (impersonal mode).
type Gateway struct {
	transport external.MailTransport
	metrics   Metrics
	logger    types.Logger
}

// NewGateway creates a Gateway over the given transport.
func NewGateway(transport external.MailTransport, metrics Metrics, logger types.Logger) *Gateway {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Gateway{
		transport: transport,
		metrics:   metrics,
		logger:    logger,
	}
}

// SendPersonalized dispatches one rendered message to a single recipient.
func (g *Gateway) SendPersonalized(ctx context.Context, to string, msg *types.ComposedMessage) (*DeliveryOutcome, error) {
	if to == "" {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidEvent,
			"personalized dispatch requires a recipient address",
			nil,
		)
	}

	outcome, err := g.send(ctx, []string{to}, msg)
	if err != nil {
		g.metrics.RecordDispatch(ctx, types.DispatchPersonalized, MetricFailed)
		return nil, fmt.Errorf("SendPersonalized: %w", err)
	}
	g.metrics.RecordDispatch(ctx, types.DispatchPersonalized, MetricSuccess)
	return outcome, nil
}

// SendImpersonal dispatches one shared message to every queued recipient in
// a single transport call. An empty recipient list is a no-op: no transport
// call is made and no error is raised.
func (g *Gateway) SendImpersonal(ctx context.Context, to []string, msg *types.ComposedMessage) (*DeliveryOutcome, error) {
	if len(to) == 0 {
		g.metrics.RecordDispatch(ctx, types.DispatchImpersonal, MetricSkipped)
		return nil, nil
	}

	outcome, err := g.send(ctx, to, msg)
	if err != nil {
		g.metrics.RecordDispatch(ctx, types.DispatchImpersonal, MetricFailed)
		return nil, fmt.Errorf("SendImpersonal: %w", err)
	}
	g.metrics.RecordDispatch(ctx, types.DispatchImpersonal, MetricSuccess)

	g.logger.Info("impersonal notification dispatched",
		"recipient_count", len(to),
		"reference", msg.Reference,
	)
	return outcome, nil
}

func (g *Gateway) send(ctx context.Context, to []string, msg *types.ComposedMessage) (*DeliveryOutcome, error) {
	id, err := g.transport.Send(ctx, &types.SendInput{
		To:          to,
		From:        msg.From,
		ReplyTo:     msg.ReplyTo,
		Subject:     msg.Subject,
		BodyText:    msg.TextBody,
		BodyHTML:    msg.HTMLBody,
		Headers:     msg.Headers,
		ReferenceID: msg.Reference,
	})
	if err != nil {
		return nil, err
	}
	return &DeliveryOutcome{ProviderMessageID: id}, nil
}
