package notify

import (
	"context"
	"errors"
	"testing"

	"pagewatch/internal/types"
)

func TestEngine_NilEventRejected(t *testing.T) {
	env := newTestEnv(defaultNotifyConfig())

	err := env.engine.NotifyOnChange(context.Background(), nil, nil, nil)

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeValidationInvalidEvent {
		t.Fatalf("expected validation_invalid_event, got %v", err)
	}
}

func TestEngine_NoCandidatesNoSideEffects(t *testing.T) {
	env := newTestEnv(defaultNotifyConfig())
	env.users.add("editor")

	if err := env.engine.NotifyOnChange(context.Background(), testEvent(), nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.transport.calls() != 0 {
		t.Error("no candidates must mean zero transport calls")
	}
	if env.watch.advances() != 0 {
		t.Error("no candidates must mean zero watermark updates")
	}
}

func TestEngine_UnknownStatusAbortsWithoutSideEffects(t *testing.T) {
	env := newTestEnv(defaultNotifyConfig())
	env.users.add("editor")
	env.users.add("alice")
	env.watch.watchers = []types.UserID{"alice"}

	ev := testEvent()
	ev.Status = "vandalized"

	err := env.engine.NotifyOnChange(context.Background(), ev, nil, nil)

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeConfigInvalidPageStatus {
		t.Fatalf("expected config_invalid_page_status, got %v", err)
	}
	if env.transport.calls() != 0 {
		t.Error("malformed event must produce zero transport calls")
	}
	if env.watch.advances() != 0 {
		t.Error("malformed event must produce zero watermark updates")
	}
	if env.watch.listCalls != 0 {
		t.Error("malformed event must not even resolve watchers")
	}
}

func TestEngine_WatchersResolvedFromStoreWhenNotPreResolved(t *testing.T) {
	env := newTestEnv(defaultNotifyConfig())
	env.users.add("editor")
	env.users.add("alice")
	env.watch.watchers = []types.UserID{"alice"}

	if err := env.engine.NotifyOnChange(context.Background(), testEvent(), nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.watch.listCalls != 1 {
		t.Errorf("expected one watch-store resolution, got %d", env.watch.listCalls)
	}
	if env.transport.calls() != 1 {
		t.Errorf("expected one dispatch, got %d", env.transport.calls())
	}
	if env.watch.advances() != 1 {
		t.Errorf("expected one watermark update, got %d", env.watch.advances())
	}
}

func TestEngine_PreResolvedWatchersSkipStore(t *testing.T) {
	env := newTestEnv(defaultNotifyConfig())
	env.users.add("editor")
	env.users.add("alice")

	watchers := []types.UserID{"alice"}
	if err := env.engine.NotifyOnChange(context.Background(), testEvent(), watchers, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.watch.listCalls != 0 {
		t.Error("pre-resolved watchers must not hit the watch store")
	}
	if env.transport.calls() != 1 {
		t.Errorf("expected one dispatch, got %d", env.transport.calls())
	}
	// The watermark still advances for the pre-resolved set.
	if env.watch.advances() != 1 {
		t.Errorf("expected one watermark update, got %d", env.watch.advances())
	}
}

func TestEngine_ActorInPreResolvedSetNeverNotified(t *testing.T) {
	env := newTestEnv(defaultNotifyConfig())
	env.users.add("editor")
	env.users.add("alice")

	watchers := []types.UserID{"editor", "alice"}
	if err := env.engine.NotifyOnChange(context.Background(), testEvent(), watchers, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.transport.calls() != 1 {
		t.Fatalf("expected one dispatch, got %d", env.transport.calls())
	}
	if env.transport.sends[0].To[0] != "alice@example.test" {
		t.Errorf("unexpected recipient %v", env.transport.sends[0].To)
	}
}

func TestEngine_ImpersonalSingleDispatchForAllAccepted(t *testing.T) {
	cfg := defaultNotifyConfig()
	cfg.Impersonal = true
	env := newTestEnv(cfg)
	env.users.add("editor")
	env.users.add("alice")
	env.users.add("bob")
	env.users.add("carol")
	env.watch.watchers = []types.UserID{"alice", "bob", "carol"}

	if err := env.engine.NotifyOnChange(context.Background(), testEvent(), nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.transport.calls() != 1 {
		t.Fatalf("expected one shared dispatch for all accepted recipients, got %d", env.transport.calls())
	}
	if len(env.transport.sends[0].To) != 3 {
		t.Errorf("shared dispatch covered %d addresses, want 3", len(env.transport.sends[0].To))
	}
}

func TestEngine_ImpersonalZeroAcceptedZeroDispatch(t *testing.T) {
	cfg := defaultNotifyConfig()
	cfg.Impersonal = true
	env := newTestEnv(cfg)
	env.users.add("editor")
	env.users.add("alice")
	env.users.setPref("alice", types.PrefWatchedPages, "0")
	env.watch.watchers = []types.UserID{"alice"}

	if err := env.engine.NotifyOnChange(context.Background(), testEvent(), nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.transport.calls() != 0 {
		t.Error("zero accepted recipients must mean zero transport calls")
	}
}

func TestEngine_TalkOwnerAlsoWatchingGetsOneMail(t *testing.T) {
	env := newTestEnv(defaultNotifyConfig())
	env.users.add("editor")
	env.users.add("alice")
	env.users.add("bob")
	env.watch.watchers = []types.UserID{"alice", "bob"}
	env.resolver.owner = "alice"
	env.resolver.ok = true

	if err := env.engine.NotifyOnChange(context.Background(), testEvent(), nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.transport.calls() != 2 {
		t.Fatalf("expected 2 dispatches (alice once, bob once), got %d", env.transport.calls())
	}
	seen := map[string]int{}
	for _, s := range env.transport.sends {
		seen[s.To[0]]++
	}
	if seen["alice@example.test"] != 1 {
		t.Errorf("talk-page owner who also watches must get exactly one mail, got %d", seen["alice@example.test"])
	}
}

func TestEngine_TalkPageEditedByOwnerNoNotice(t *testing.T) {
	env := newTestEnv(defaultNotifyConfig())
	env.users.add("editor")
	env.resolver.owner = "editor"
	env.resolver.ok = true

	if err := env.engine.NotifyOnChange(context.Background(), testEvent(), nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.transport.calls() != 0 {
		t.Error("editing your own talk page must produce no notification")
	}
}

func TestEngine_RosterMembersNotified(t *testing.T) {
	env := newTestEnv(defaultNotifyConfig())
	env.users.add("editor")
	env.users.add("ops")

	if err := env.engine.NotifyOnChange(context.Background(), testEvent(), nil, []types.UserID{"ops"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.transport.calls() != 1 {
		t.Fatalf("expected one dispatch, got %d", env.transport.calls())
	}
	if env.transport.sends[0].To[0] != "ops@example.test" {
		t.Errorf("unexpected recipient %v", env.transport.sends[0].To)
	}
}

func TestEngine_RosterDedupAgainstWatchers(t *testing.T) {
	env := newTestEnv(defaultNotifyConfig())
	env.users.add("editor")
	env.users.add("alice")
	env.watch.watchers = []types.UserID{"alice"}

	if err := env.engine.NotifyOnChange(context.Background(), testEvent(), nil, []types.UserID{"alice"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.transport.calls() != 1 {
		t.Errorf("watcher who is also on the roster must get exactly one mail, got %d", env.transport.calls())
	}
}

func TestEngine_PerRecipientDispatchFailureContinuesRun(t *testing.T) {
	env := newTestEnv(defaultNotifyConfig())
	env.users.add("editor")
	env.users.add("alice")
	env.users.add("bob")
	env.watch.watchers = []types.UserID{"alice", "bob"}

	// Every transport call fails; the run itself must still complete and the
	// watermark still advances.
	env.transport.err = errors.New("provider down")

	if err := env.engine.NotifyOnChange(context.Background(), testEvent(), nil, nil); err != nil {
		t.Fatalf("per-recipient failures must not fail the run: %v", err)
	}
	if env.watch.advances() != 1 {
		t.Errorf("expected one watermark update, got %d", env.watch.advances())
	}
}

func TestEngine_TalkResolverFailureAbortsBeforeWatermark(t *testing.T) {
	env := newTestEnv(defaultNotifyConfig())
	env.users.add("editor")
	env.watch.watchers = []types.UserID{"alice"}
	env.resolver.err = errors.New("store down")

	if err := env.engine.NotifyOnChange(context.Background(), testEvent(), nil, nil); err == nil {
		t.Fatal("expected resolver failure to surface as error")
	}
	if env.watch.advances() != 0 {
		t.Error("aborted run must not advance watermarks")
	}
	if env.transport.calls() != 0 {
		t.Error("aborted run must not dispatch")
	}
}
