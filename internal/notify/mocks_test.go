package notify

import (
	"context"
	"sync"
	"time"

	"pagewatch/internal/config"
	"pagewatch/internal/external"
	"pagewatch/internal/i18n"
	"pagewatch/internal/types"
)

// mockClock implements types.Clock for deterministic testing.
type mockClock struct {
	now time.Time
}

func (c *mockClock) Now() time.Time { return c.now }

// mockLogger implements types.Logger as a no-op for tests.
type mockLogger struct{}

func (l *mockLogger) Info(msg string, args ...any)  {}
func (l *mockLogger) Error(msg string, args ...any) {}
func (l *mockLogger) Warn(msg string, args ...any)  {}
func (l *mockLogger) With(args ...any) types.Logger { return l }

// memUsers is an in-memory UserStore.
type memUsers struct {
	infos     map[types.UserID]*types.UserInfo
	prefs     map[types.UserID]map[string]string
	lookupErr error
}

func newMemUsers() *memUsers {
	return &memUsers{
		infos: map[types.UserID]*types.UserInfo{},
		prefs: map[types.UserID]map[string]string{},
	}
}

// add registers a verified user subscribed to both watched-page and
// talk-page notifications.
func (m *memUsers) add(id types.UserID) *types.UserInfo {
	info := &types.UserInfo{
		ID:            id,
		Name:          string(id),
		Email:         string(id) + "@example.test",
		EmailVerified: true,
	}
	m.infos[id] = info
	m.setPref(id, types.PrefWatchedPages, "1")
	m.setPref(id, types.PrefTalkPage, "1")
	return info
}

func (m *memUsers) setPref(id types.UserID, key, value string) {
	if m.prefs[id] == nil {
		m.prefs[id] = map[string]string{}
	}
	m.prefs[id][key] = value
}

func (m *memUsers) Lookup(ctx context.Context, id types.UserID) (*types.UserInfo, error) {
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	if info, ok := m.infos[id]; ok {
		return info, nil
	}
	return &types.UserInfo{ID: id, Anonymous: true}, nil
}

func (m *memUsers) Preference(ctx context.Context, id types.UserID, key string) (string, error) {
	return m.prefs[id][key], nil
}

// memWatch is an in-memory WatchStore recording watermark updates.
type memWatch struct {
	mu       sync.Mutex
	watchers []types.UserID
	listErr  error

	listCalls    int
	advanceCalls int
	advancedIDs  [][]types.UserID
	advancedAt   []time.Time
}

func (m *memWatch) ListWatchers(ctx context.Context, doc types.DocumentID, excludeUser types.UserID, filter types.WatcherFilter) ([]types.UserID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []types.UserID
	for _, id := range m.watchers {
		if id == excludeUser {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (m *memWatch) BulkAdvanceWatermark(ctx context.Context, userIDs []types.UserID, doc types.DocumentID, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advanceCalls++
	m.advancedIDs = append(m.advancedIDs, append([]types.UserID(nil), userIDs...))
	m.advancedAt = append(m.advancedAt, ts)
	return nil
}

func (m *memWatch) advances() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.advanceCalls
}

// memAccess is an in-memory AccessOracle. Read access defaults to allowed.
type memAccess struct {
	denyRead map[types.UserID]bool
	caps     map[types.UserID]map[string]bool
	readErr  error
}

func newMemAccess() *memAccess {
	return &memAccess{
		denyRead: map[types.UserID]bool{},
		caps:     map[types.UserID]map[string]bool{},
	}
}

func (m *memAccess) grant(id types.UserID, capability string) {
	if m.caps[id] == nil {
		m.caps[id] = map[string]bool{}
	}
	m.caps[id][capability] = true
}

func (m *memAccess) CanRead(ctx context.Context, doc types.DocumentID, user types.UserID) (bool, error) {
	if m.readErr != nil {
		return false, m.readErr
	}
	return !m.denyRead[user], nil
}

func (m *memAccess) HasCapability(ctx context.Context, user types.UserID, capability string) (bool, error) {
	return m.caps[user][capability], nil
}

// recTransport records every transport call.
type recTransport struct {
	mu    sync.Mutex
	sends []*types.SendInput
	err   error
}

func (t *recTransport) Send(ctx context.Context, input *types.SendInput) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return "", t.err
	}
	t.sends = append(t.sends, input)
	return "msg_test", nil
}

func (t *recTransport) calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sends)
}

var _ external.MailTransport = (*recTransport)(nil)

// stubResolver returns a fixed talk-page owner.
type stubResolver struct {
	owner types.UserID
	ok    bool
	err   error
}

func (r *stubResolver) ResolveTalkPageOwner(ctx context.Context, doc types.DocumentID) (types.UserID, bool, error) {
	return r.owner, r.ok, r.err
}

// stubDiff returns a fixed rendered diff.
type stubDiff struct {
	body string
	err  error
}

func (d *stubDiff) RenderDiff(ctx context.Context, doc types.DocumentID, fromRev, toRev string) (string, error) {
	return d.body, d.err
}

// testEnv bundles a fully wired engine over in-memory collaborators.
type testEnv struct {
	engine    *Engine
	users     *memUsers
	watch     *memWatch
	access    *memAccess
	transport *recTransport
	resolver  *stubResolver
	cfg       config.NotifyConfig
}

func defaultNotifyConfig() config.NotifyConfig {
	return config.NotifyConfig{
		SiteName:      "PageWatch",
		BaseURL:       "https://docs.example.test",
		EmbedDiff:     false,
		TalkNamespace: "UserTalk",
	}
}

func newTestEnv(cfg config.NotifyConfig) *testEnv {
	logger := &mockLogger{}
	env := &testEnv{
		users:     newMemUsers(),
		watch:     &memWatch{},
		access:    newMemAccess(),
		transport: &recTransport{},
		resolver:  &stubResolver{},
		cfg:       cfg,
	}

	hooks := &Hooks{}
	gateway := NewGateway(env.transport, NoopMetrics{}, logger)

	env.engine = NewEngine(EngineDeps{
		Policy:   NewPolicy(env.users, env.access, hooks, cfg, logger),
		Updater:  NewWatermarkUpdater(env.watch, SyncExecutor{}, logger),
		Resolver: env.resolver,
		Composer: ComposerDeps{
			Users:     env.users,
			Localizer: i18n.NewEnglish(),
			Gateway:   gateway,
			Hooks:     hooks,
			Notify:    cfg,
			Mail: config.MailConfig{
				NoReplyAddress: "no-reply@example.test",
				FromName:       "PageWatch notifications",
			},
			Logger: logger,
		},
		Hooks:   hooks,
		Metrics: NoopMetrics{},
		Clock:   &mockClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		Logger:  logger,
	})

	return env
}

// testEvent builds a plain main-namespace change event.
func testEvent() *types.ChangeEvent {
	return &types.ChangeEvent{
		ActorID:        "editor",
		Document:       types.DocumentID{Key: "Welcome"},
		EditedAt:       time.Date(2026, 3, 1, 11, 58, 0, 0, time.UTC),
		Summary:        "fixed a typo",
		RevisionID:     "r42",
		PrevRevisionID: "r41",
		Status:         types.PageChanged,
	}
}
