package notify

import (
	"context"
	"testing"

	"pagewatch/internal/types"
)

func TestWatermarkUpdater_NoWatchersNoUpdate(t *testing.T) {
	watch := &memWatch{}
	updater := NewWatermarkUpdater(watch, SyncExecutor{}, &mockLogger{})

	got, err := updater.Advance(context.Background(), testEvent())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty watcher set, got %v", got)
	}
	if watch.advances() != 0 {
		t.Error("empty watcher set must produce zero watermark updates")
	}
}

func TestWatermarkUpdater_AdvanceExcludesActor(t *testing.T) {
	watch := &memWatch{watchers: []types.UserID{"editor", "alice", "bob"}}
	updater := NewWatermarkUpdater(watch, SyncExecutor{}, &mockLogger{})

	ev := testEvent()
	got, err := updater.Advance(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 watchers, got %v", got)
	}
	for _, id := range got {
		if id == ev.ActorID {
			t.Error("actor leaked into the watcher set")
		}
	}

	if watch.advances() != 1 {
		t.Fatalf("expected one bulk update, got %d", watch.advances())
	}
	if len(watch.advancedIDs[0]) != 2 {
		t.Errorf("bulk update covered %d watchers, want 2", len(watch.advancedIDs[0]))
	}
	if !watch.advancedAt[0].Equal(ev.EditedAt) {
		t.Errorf("watermark timestamp %v, want edit time %v", watch.advancedAt[0], ev.EditedAt)
	}
}

func TestWatermarkUpdater_ScheduleForFiltersActor(t *testing.T) {
	watch := &memWatch{}
	updater := NewWatermarkUpdater(watch, SyncExecutor{}, &mockLogger{})

	ev := testEvent()
	updater.ScheduleFor(ev, []types.UserID{"editor", "alice"})

	if watch.advances() != 1 {
		t.Fatalf("expected one bulk update, got %d", watch.advances())
	}
	ids := watch.advancedIDs[0]
	if len(ids) != 1 || ids[0] != "alice" {
		t.Errorf("unexpected update set %v", ids)
	}
}

func TestWatermarkUpdater_ScheduleForAllActorNoop(t *testing.T) {
	watch := &memWatch{}
	updater := NewWatermarkUpdater(watch, SyncExecutor{}, &mockLogger{})

	updater.ScheduleFor(testEvent(), []types.UserID{"editor"})

	if watch.advances() != 0 {
		t.Error("a set containing only the actor must not trigger an update")
	}
}
