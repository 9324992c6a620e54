// Package types defines the shared domain model for the pagewatch
// notification engine: change events, recipients, composed messages, the
// application error type, and the small abstractions (Logger, Clock) used
// throughout the codebase.
package types

import (
	"fmt"
	"time"
)

// UserID identifies a user in the surrounding platform. The engine never
// interprets the value; it is only used for store and oracle lookups.
type UserID string

// DocumentID identifies a document by namespace and key. The namespace
// carries semantic weight for talk-page resolution, which is delegated to
// an external collaborator rather than derived from naming conventions.
type DocumentID struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
}

// String renders the document id as "namespace:key", or just the key when
// the namespace is empty (the main namespace).
func (d DocumentID) String() string {
	if d.Namespace == "" {
		return d.Key
	}
	return fmt.Sprintf("%s:%s", d.Namespace, d.Key)
}

// ChangeEvent describes a single document edit. It is immutable once
// constructed; one instance drives one notification run.
type ChangeEvent struct {
	ActorID        UserID     `json:"actor_id"`
	Document       DocumentID `json:"document"`
	EditedAt       time.Time  `json:"edited_at"`
	Summary        string     `json:"summary"`
	Minor          bool       `json:"minor"`
	RevisionID     string     `json:"revision_id"`
	PrevRevisionID string     `json:"prev_revision_id,omitempty"`
	Status         PageStatus `json:"status"`
}

// RecipientDecision is the result of a policy evaluation for one candidate.
// It is never persisted; the composer consumes it immediately. Reason is
// diagnostic only and never surfaced as an error.
type RecipientDecision struct {
	User     UserID
	Kind     RecipientKind
	Accepted bool
	Reason   string
}

// MailAddress pairs a display name with an email address.
type MailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// ComposedMessage is a fully rendered notification ready for transport.
// Immutable once built. In impersonal mode a single ComposedMessage is
// shared across every recipient of the event.
type ComposedMessage struct {
	Subject   string
	TextBody  string
	HTMLBody  string
	From      MailAddress
	ReplyTo   string
	Headers   map[string]string
	Reference string // correlation id passed through to the transport
}

// UserInfo is the identity snapshot returned by the user store. A candidate
// with Anonymous=true or an unverified address is never notified.
type UserInfo struct {
	ID            UserID
	Name          string
	RealName      string
	Email         string
	EmailVerified bool
	Blocked       bool
	Anonymous     bool
}

// DisplayName returns the name shown in notification bodies: the real name
// when useRealName is set and one exists, the handle otherwise.
func (u *UserInfo) DisplayName(useRealName bool) string {
	if useRealName && u.RealName != "" {
		return u.RealName
	}
	return u.Name
}

// Preference keys understood by the engine. The user store maps them onto
// whatever schema the surrounding platform uses.
const (
	PrefWatchedPages = "notify-watched-pages" // mail me when a watched page changes
	PrefTalkPage     = "notify-talk-page"     // mail me when my talk page changes
	PrefDiffNotices  = "notify-every-change"  // keep mailing me per change, not once per visit
	PrefTimeZone     = "timezone"
)

// CapSuppressMinorTalk is the actor capability that suppresses talk-page
// notifications for the actor's minor edits.
const CapSuppressMinorTalk = "suppress-minor-talk-notice"

// SendInput carries pre-rendered email content to the mail transport.
// To holds one address in personalized mode and the full recipient list in
// impersonal mode.
type SendInput struct {
	To          []string
	From        MailAddress
	ReplyTo     string
	Subject     string
	BodyText    string
	BodyHTML    string
	Headers     map[string]string
	ReferenceID string
}
