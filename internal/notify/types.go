// Package notify implements the change-notification fan-out pipeline:
// recipient policy evaluation, watermark advancement, message composition,
// and dispatch. One Engine instance serves many events; one Composer
// instance is created per event and never reused.
//
// The document store, permission oracle, preference store, mail transport,
// and job scheduling are external collaborators consumed through the narrow
// interfaces defined here.
package notify

import (
	"context"
	"time"

	"pagewatch/internal/types"
)

// WatchStore is the watch-list collaborator: who watches a document, and
// the per-(user, document) "last notified" watermark.
type WatchStore interface {
	// ListWatchers returns the ids of users watching the document,
	// excluding excludeUser, restricted by the eligibility filter.
	ListWatchers(ctx context.Context, doc types.DocumentID, excludeUser types.UserID, filter types.WatcherFilter) ([]types.UserID, error)

	// BulkAdvanceWatermark sets the watermark for every given user on the
	// document to ts. Callers must have excluded the actor already.
	BulkAdvanceWatermark(ctx context.Context, userIDs []types.UserID, doc types.DocumentID, ts time.Time) error
}

// UserStore is the user/preference collaborator.
type UserStore interface {
	// Lookup returns the identity snapshot for a user. A missing user is
	// reported via UserInfo.Anonymous=true, not an error.
	Lookup(ctx context.Context, id types.UserID) (*types.UserInfo, error)

	// Preference returns the raw preference value for the given key, or ""
	// when unset.
	Preference(ctx context.Context, id types.UserID, key string) (string, error)
}

// AccessOracle is the permission-check collaborator. Read access is
// evaluated fresh on every policy decision, never cached: access may have
// changed since the user started watching.
type AccessOracle interface {
	CanRead(ctx context.Context, doc types.DocumentID, user types.UserID) (bool, error)
	HasCapability(ctx context.Context, user types.UserID, capability string) (bool, error)
}

// TalkPageOwnerResolver maps a document to the user whose talk page it is,
// if any. Resolution is environment-specific (naming conventions differ
// between deployments), so it is a collaborator rather than engine logic.
type TalkPageOwnerResolver interface {
	ResolveTalkPageOwner(ctx context.Context, doc types.DocumentID) (types.UserID, bool, error)
}

// DiffRenderer renders the change between two revisions as rich text for
// embedding in the HTML body.
type DiffRenderer interface {
	RenderDiff(ctx context.Context, doc types.DocumentID, fromRev, toRev string) (string, error)
}

// DeferredExecutor schedules work to run after the enclosing transaction
// (if any) has committed. The watermark bulk update goes through it so the
// update never blocks message composition.
type DeferredExecutor interface {
	Defer(fn func(ctx context.Context))
}

// AsyncExecutor is the default DeferredExecutor: it runs the function on a
// fresh goroutine with a bounded deadline, detached from the caller's
// context so an HTTP request finishing does not cancel the update.
type AsyncExecutor struct {
	Timeout time.Duration
}

// Defer implements DeferredExecutor.
func (e *AsyncExecutor) Defer(fn func(ctx context.Context)) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		fn(ctx)
	}()
}

// SyncExecutor runs deferred work inline. Used by the queue worker, where
// the process may be frozen as soon as the handler returns.
type SyncExecutor struct{}

// Defer implements DeferredExecutor.
func (SyncExecutor) Defer(fn func(ctx context.Context)) {
	fn(context.Background())
}

// DeliveryOutcome reports the transport's opaque result for one dispatch.
// A nil outcome with a nil error means nothing was sent (empty impersonal
// address list).
type DeliveryOutcome struct {
	ProviderMessageID string
}

// MetricResult categorizes a dispatch outcome for metrics reporting.
type MetricResult string

const (
	MetricSuccess MetricResult = "success"
	MetricFailed  MetricResult = "failed"
	MetricSkipped MetricResult = "skipped"
)

// Metrics abstracts telemetry for the notification pipeline.
type Metrics interface {
	RecordRecipient(ctx context.Context, kind types.RecipientKind, accepted bool)
	RecordDispatch(ctx context.Context, mode types.DispatchMode, result MetricResult)
	RecordPipelineLatency(ctx context.Context, duration time.Duration)
}

// NoopMetrics discards all measurements. Used in tests and local mode.
type NoopMetrics struct{}

func (NoopMetrics) RecordRecipient(context.Context, types.RecipientKind, bool)       {}
func (NoopMetrics) RecordDispatch(context.Context, types.DispatchMode, MetricResult) {}
func (NoopMetrics) RecordPipelineLatency(context.Context, time.Duration)             {}

var (
	_ DeferredExecutor = (*AsyncExecutor)(nil)
	_ DeferredExecutor = SyncExecutor{}
	_ Metrics          = (*NoopMetrics)(nil)
)
