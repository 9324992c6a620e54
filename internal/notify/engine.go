package notify

import (
	"context"
	"fmt"

	"pagewatch/internal/types"
)

// Engine runs the notification pipeline for change events. One Engine
// serves the whole process; it creates a fresh Composer per event.
type Engine struct {
	policy   RecipientPolicy
	updater  *WatermarkUpdater
	resolver TalkPageOwnerResolver
	composer ComposerDeps
	hooks    *Hooks
	metrics  Metrics
	clock    types.Clock
	logger   types.Logger
}

// EngineDeps bundles the Engine's collaborators.
type EngineDeps struct {
	Policy   RecipientPolicy
	Updater  *WatermarkUpdater
	Resolver TalkPageOwnerResolver
	Composer ComposerDeps
	Hooks    *Hooks
	Metrics  Metrics
	Clock    types.Clock
	Logger   types.Logger
}

// NewEngine creates an Engine.
func NewEngine(deps EngineDeps) *Engine {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Engine{
		policy:   deps.Policy,
		updater:  deps.Updater,
		resolver: deps.Resolver,
		composer: deps.Composer,
		hooks:    deps.Hooks,
		metrics:  metrics,
		clock:    clock,
		logger:   deps.Logger,
	}
}

// NotifyOnChange runs the full pipeline for one change event: watcher
// resolution and watermark advance, talk-page owner resolution, recipient
// policy per candidate, composition, and dispatch.
//
// A nil watchers slice means "resolve from the watch store"; a non-nil
// slice (possibly empty) is a pre-resolved set, as carried by deferred
// jobs. roster is the deployment's all-changes subscriber list.
//
// Per-recipient failures are logged and skipped; the run continues for the
// remaining candidates. Only event-level failures (unrecognized page
// status, collaborator outage before any candidate work) abort the run.
func (e *Engine) NotifyOnChange(ctx context.Context, event *types.ChangeEvent, watchers []types.UserID, roster []types.UserID) error {
	if event == nil {
		return types.NewAppError(types.ErrCodeValidationInvalidEvent, "nil change event", nil)
	}

	start := e.clock.Now()
	defer func() {
		e.metrics.RecordPipelineLatency(ctx, e.clock.Now().Sub(start))
	}()

	// Event-level validation happens before any watermark or dispatch work
	// so a malformed event has no observable side effects.
	if !e.hooks.StatusAllowed(event.Status) {
		return types.NewAppErrorWithDetails(
			types.ErrCodeConfigInvalidPageStatus,
			fmt.Sprintf("unrecognized page status %q", event.Status),
			nil,
			map[string]any{"status": string(event.Status), "document": event.Document.String()},
		)
	}

	talkOwner, hasTalkOwner, err := e.resolveTalkOwner(ctx, event)
	if err != nil {
		return err
	}

	if watchers == nil {
		watchers, err = e.updater.Advance(ctx, event)
		if err != nil {
			return fmt.Errorf("NotifyOnChange: %w", err)
		}
	} else {
		e.updater.ScheduleFor(event, watchers)
	}

	if !hasTalkOwner && len(watchers) == 0 && len(roster) == 0 {
		e.logger.Info("no notification candidates for change",
			"document", event.Document.String(),
			"revision", event.RevisionID,
		)
		return nil
	}

	composer := NewComposer(event, e.composer)
	notified := make(map[types.UserID]bool)

	if hasTalkOwner {
		e.consider(ctx, composer, event, talkOwner, types.KindTalkPageOwner, notified)
	}
	for _, id := range watchers {
		e.consider(ctx, composer, event, id, types.KindWatcher, notified)
	}
	for _, id := range roster {
		e.consider(ctx, composer, event, id, types.KindAllChangesSubscriber, notified)
	}

	if err := composer.SendMails(ctx); err != nil {
		return fmt.Errorf("NotifyOnChange: %w", err)
	}
	return nil
}

// consider runs policy for one candidate and, when accepted, hands them to
// the composer. Candidates already notified for this event (a talk-page
// owner who also watches the page) are skipped before policy runs.
func (e *Engine) consider(ctx context.Context, composer *Composer, event *types.ChangeEvent, candidate types.UserID, kind types.RecipientKind, notified map[types.UserID]bool) {
	if notified[candidate] {
		return
	}

	decision, err := e.policy.Evaluate(ctx, event, candidate, kind)
	if err != nil {
		e.logger.Error("recipient policy evaluation failed",
			"user", string(candidate),
			"kind", string(kind),
			"document", event.Document.String(),
			"error", err.Error(),
		)
		return
	}

	e.metrics.RecordRecipient(ctx, kind, decision.Accepted)
	if !decision.Accepted {
		e.logger.Info("recipient rejected",
			"user", string(candidate),
			"kind", string(kind),
			"reason", decision.Reason,
		)
		return
	}

	if err := composer.ComposeFor(ctx, candidate); err != nil {
		e.logger.Error("notification composition failed",
			"user", string(candidate),
			"kind", string(kind),
			"document", event.Document.String(),
			"error", err.Error(),
		)
		return
	}
	notified[candidate] = true
}

// resolveTalkOwner determines whether the changed document is a user's talk
// page. A talk page edited by its own owner produces no talk-page case.
func (e *Engine) resolveTalkOwner(ctx context.Context, event *types.ChangeEvent) (types.UserID, bool, error) {
	if e.resolver == nil {
		return "", false, nil
	}
	owner, ok, err := e.resolver.ResolveTalkPageOwner(ctx, event.Document)
	if err != nil {
		return "", false, fmt.Errorf("NotifyOnChange: talk-page owner resolution: %w", err)
	}
	if !ok || owner == event.ActorID {
		return "", false, nil
	}
	return owner, true, nil
}
