package types

import "fmt"

// PageStatus categorizes what happened to the document. An event carrying a
// status outside this set (plus any hook-registered extras) is a fatal
// configuration error: the run aborts before any dispatch or watermark work.
type PageStatus string

const (
	PageCreated  PageStatus = "created"
	PageChanged  PageStatus = "changed"
	PageDeleted  PageStatus = "deleted"
	PageMoved    PageStatus = "moved"
	PageRestored PageStatus = "restored"
)

// knownPageStatuses is the built-in allow list. Deployments can extend it
// through the page-status extension point on the engine.
var knownPageStatuses = map[PageStatus]struct{}{
	PageCreated:  {},
	PageChanged:  {},
	PageDeleted:  {},
	PageMoved:    {},
	PageRestored: {},
}

// Known reports whether the status is one of the built-in values.
func (s PageStatus) Known() bool {
	_, ok := knownPageStatuses[s]
	return ok
}

// RecipientKind distinguishes the three candidate paths through recipient
// policy. The preference gate and the minor-edit gate both branch on it.
type RecipientKind string

const (
	KindTalkPageOwner        RecipientKind = "talk-page-owner"
	KindWatcher              RecipientKind = "watcher"
	KindAllChangesSubscriber RecipientKind = "all-changes-subscriber"
)

// WatcherFilter selects which watchers the watch-list store returns.
type WatcherFilter int

const (
	// FilterDiffNoticeOrUnseen returns watchers who either opted into the
	// per-change ("diff") notification style or have no watermark yet for
	// the document. This is the filter the notification pipeline uses.
	FilterDiffNoticeOrUnseen WatcherFilter = iota

	// FilterAll returns every watcher regardless of style or watermark.
	FilterAll
)

func (f WatcherFilter) String() string {
	switch f {
	case FilterDiffNoticeOrUnseen:
		return "diff-notice-or-unseen"
	case FilterAll:
		return "all"
	default:
		return fmt.Sprintf("watcher-filter(%d)", int(f))
	}
}

// DispatchMode selects between one rendered message per recipient and a
// single shared render reused for every address.
type DispatchMode string

const (
	DispatchPersonalized DispatchMode = "personalized"
	DispatchImpersonal   DispatchMode = "impersonal"
)
