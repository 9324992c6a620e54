package notify

import (
	"context"
	"fmt"

	"pagewatch/internal/types"
)

// WatermarkUpdater resolves the watcher set for a change and advances every
// watcher's "last notified" marker for the document — excluding the actor,
// whose own edits never touch their watermark.
//
// The bulk update is scheduled through the DeferredExecutor so it runs
// outside any in-flight transaction and never blocks composition. Dispatch
// and watermark advance may be observed in either order by external
// readers, but both operate on the same watcher set, resolved exactly once
// here at the start of the run.
type WatermarkUpdater struct {
	store  WatchStore
	exec   DeferredExecutor
	logger types.Logger
}

// NewWatermarkUpdater creates a WatermarkUpdater.
func NewWatermarkUpdater(store WatchStore, exec DeferredExecutor, logger types.Logger) *WatermarkUpdater {
	return &WatermarkUpdater{
		store:  store,
		exec:   exec,
		logger: logger,
	}
}

// Advance queries the watch-list store for watchers of the event's document
// (excluding the actor, filtered to those eligible for the per-change
// notification style or holding no watermark yet) and schedules the bulk
// watermark update. It returns the resolved watcher set so the composer can
// reuse it without a second query.
//
// When no watchers exist it returns an empty set and issues no update.
func (u *WatermarkUpdater) Advance(ctx context.Context, event *types.ChangeEvent) ([]types.UserID, error) {
	watchers, err := u.store.ListWatchers(ctx, event.Document, event.ActorID, types.FilterDiffNoticeOrUnseen)
	if err != nil {
		return nil, fmt.Errorf("Advance: list watchers: %w", err)
	}

	if len(watchers) == 0 {
		return nil, nil
	}

	u.schedule(event, watchers)
	return watchers, nil
}

// ScheduleFor advances the watermark for a pre-resolved watcher set. Used
// when the caller already carries the set (deferred jobs replaying a run).
// The actor is filtered out defensively even if present in the input.
func (u *WatermarkUpdater) ScheduleFor(event *types.ChangeEvent, watchers []types.UserID) {
	filtered := watchers[:0:0]
	for _, id := range watchers {
		if id == event.ActorID {
			continue
		}
		filtered = append(filtered, id)
	}
	if len(filtered) == 0 {
		return
	}
	u.schedule(event, filtered)
}

func (u *WatermarkUpdater) schedule(event *types.ChangeEvent, watchers []types.UserID) {
	doc := event.Document
	ts := event.EditedAt
	count := len(watchers)

	u.exec.Defer(func(ctx context.Context) {
		if err := u.store.BulkAdvanceWatermark(ctx, watchers, doc, ts); err != nil {
			u.logger.Error("watermark bulk update failed",
				"document", doc.String(),
				"watcher_count", count,
				"error", err.Error(),
			)
			return
		}
		u.logger.Info("watermarks advanced",
			"document", doc.String(),
			"watcher_count", count,
			"timestamp", ts.String(),
		)
	})
}
