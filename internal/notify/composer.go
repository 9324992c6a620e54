package notify

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"pagewatch/internal/config"
	"pagewatch/internal/i18n"
	"pagewatch/internal/template"
	"pagewatch/internal/types"
)

// composerState tracks the composer's lifecycle. The shared mailtext is
// built at most once per event, on the first recipient; after dispatch the
// composer is dead and a fresh instance is required for the next event.
type composerState int

const (
	stateIdle composerState = iota
	stateCommonComposed
	stateDispatched
)

// mailDateFormat renders edit timestamps in notification bodies.
const mailDateFormat = "Mon, 2 Jan 2006 15:04 MST"

// ComposerDeps bundles the collaborators a Composer needs.
type ComposerDeps struct {
	Users     UserStore
	Diff      DiffRenderer
	Localizer i18n.Localizer
	Gateway   *Gateway
	Hooks     *Hooks
	Notify    config.NotifyConfig
	Mail      config.MailConfig
	Logger    types.Logger
}

// Composer builds and dispatches the messages for one change event. It is
// event-scoped: the zero watcher of state across events is what makes
// concurrent runs for independent events safe.
//
// In personalized mode every accepted recipient gets their own render and
// an immediate dispatch. In impersonal mode recipients only contribute
// their address; SendMails performs the single shared render and the one
// transport call for all of them.
type Composer struct {
	deps  ComposerDeps
	event *types.ChangeEvent

	state           composerState
	common          *commonMailtext
	impersonalAddrs []string
}

// commonMailtext is the shared message skeleton: subject and body with the
// common tokens already substituted and the per-user tokens left verbatim.
// The post-transform tokens (raw user content) are applied strictly last,
// per recipient.
type commonMailtext struct {
	subject      string
	textSkeleton string
	htmlSkeleton string
	postText     template.Tokens
	postHTML     template.Tokens
	from         types.MailAddress
	replyTo      string
	headers      map[string]string
}

// NewComposer creates a Composer for a single change event.
func NewComposer(event *types.ChangeEvent, deps ComposerDeps) *Composer {
	return &Composer{
		deps:  deps,
		event: event,
		state: stateIdle,
	}
}

// ComposeFor renders and (in personalized mode) immediately dispatches the
// notification for one accepted recipient. The caller is responsible for
// having run recipient policy first.
//
// Transport failures are returned to the caller but leave the composer
// usable for the remaining recipients.
func (c *Composer) ComposeFor(ctx context.Context, recipient types.UserID) error {
	if c.state == stateDispatched {
		return types.NewAppError(
			types.ErrCodeComposerDispatched,
			"composer already dispatched; a fresh instance is required per event",
			nil,
		)
	}

	if err := c.ensureCommon(ctx); err != nil {
		return err
	}

	info, err := c.deps.Users.Lookup(ctx, recipient)
	if err != nil {
		return fmt.Errorf("ComposeFor: user lookup: %w", err)
	}

	if c.deps.Notify.Impersonal {
		// No per-user render: the address joins the shared send.
		c.impersonalAddrs = append(c.impersonalAddrs, info.Email)
		return nil
	}

	msg := c.renderFor(ctx, info)
	if _, err := c.deps.Gateway.SendPersonalized(ctx, info.Email, msg); err != nil {
		return fmt.Errorf("ComposeFor: dispatch to %s: %w", recipient, err)
	}
	return nil
}

// SendMails completes the run. In impersonal mode it performs the single
// shared render and the one transport call covering every queued address;
// in personalized mode each ComposeFor already dispatched, so this only
// seals the composer.
func (c *Composer) SendMails(ctx context.Context) error {
	if c.state == stateDispatched {
		return nil
	}
	defer func() { c.state = stateDispatched }()

	if !c.deps.Notify.Impersonal || c.state == stateIdle {
		// Personalized mode, or no recipient ever accepted.
		return nil
	}

	msg := c.renderImpersonal(ctx)
	if _, err := c.deps.Gateway.SendImpersonal(ctx, c.impersonalAddrs, msg); err != nil {
		return fmt.Errorf("SendMails: impersonal dispatch: %w", err)
	}
	return nil
}

// ensureCommon builds the shared mailtext on the first recipient.
func (c *Composer) ensureCommon(ctx context.Context) error {
	if c.state != stateIdle {
		return nil
	}

	common, err := c.buildCommon(ctx)
	if err != nil {
		return err
	}

	c.common = common
	c.state = stateCommonComposed
	return nil
}

// buildCommon assembles subject, diff links, editor identity, and the
// from/reply-to pair shared by every recipient of the event.
func (c *Composer) buildCommon(ctx context.Context) (*commonMailtext, error) {
	ev := c.event

	if !c.deps.Hooks.StatusAllowed(ev.Status) {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeConfigInvalidPageStatus,
			fmt.Sprintf("unrecognized page status %q", ev.Status),
			nil,
			map[string]any{"status": string(ev.Status)},
		)
	}

	loc := c.deps.Localizer
	cfg := c.deps.Notify

	editor, err := c.deps.Users.Lookup(ctx, ev.ActorID)
	if err != nil {
		return nil, fmt.Errorf("buildCommon: editor lookup: %w", err)
	}
	editorName := editor.DisplayName(cfg.UseRealNames)
	if editorName == "" {
		editorName = string(ev.ActorID)
	}

	action := loc.Text(i18n.KeyAction(string(ev.Status)))
	docTitle := ev.Document.String()
	docURL := c.documentURL()

	minorTag := ""
	if ev.Minor {
		minorTag = loc.Text(i18n.KeyMinorTag)
	}

	// Pre-render the optional lines so their own tokens are resolved
	// before they become token values themselves (substituted values are
	// never re-scanned).
	summaryLine, summaryLineRich := "", ""
	if ev.Summary != "" {
		summaryLine = loc.Text(i18n.KeySummaryLine)
		summaryLineRich = loc.Rich(i18n.KeySummaryLine)
	}

	diffLine, diffLineRich := "", ""
	if ev.PrevRevisionID != "" {
		link := c.recentDiffURL()
		diffLine = template.Render(loc.Text(i18n.KeyDiffLine), template.Tokens{"$DIFFLINK": link})
		diffLineRich = template.Render(loc.Rich(i18n.KeyDiffLine), template.Tokens{"$DIFFLINK": link})
	}

	prefsURL := cfg.BaseURL + "/preferences"
	footer := template.Render(loc.Text(i18n.KeyFooter), template.Tokens{"$PREFSURL": prefsURL})
	footerRich := template.Render(loc.Rich(i18n.KeyFooter), template.Tokens{"$PREFSURL": prefsURL})

	commonText := template.Tokens{
		"$SITENAME":      cfg.SiteName,
		"$DOCTITLE":      docTitle,
		"$DOCURL":        docURL,
		"$CHANGEDACTION": action,
		"$EDITORNAME":    editorName,
		"$MINORTAG":      minorTag,
		"$SUMMARYLINE":   summaryLine,
		"$DIFFLINE":      diffLine,
		"$FOOTER":        footer,
	}
	commonHTML := template.Tokens{
		"$SITENAME":      template.EscapeRich(cfg.SiteName),
		"$DOCTITLE":      template.EscapeRich(docTitle),
		"$DOCURL":        template.EscapeRich(docURL),
		"$CHANGEDACTION": template.EscapeRich(action),
		"$EDITORNAME":    template.EscapeRich(editorName),
		"$MINORTAG":      template.EscapeRich(minorTag),
		"$SUMMARYLINE":   summaryLineRich,
		"$DIFFLINE":      diffLineRich,
		"$FOOTER":        footerRich,
	}

	common := &commonMailtext{
		subject:      template.Render(loc.Text(i18n.KeySubject), commonText),
		textSkeleton: template.Render(loc.Text(i18n.KeyBodyText), commonText),
		htmlSkeleton: template.Render(loc.Rich(i18n.KeyBodyRich), commonHTML),
		postText:     template.Tokens{"$SUMMARY": ev.Summary},
		postHTML: template.Tokens{
			"$SUMMARY":  template.EscapeRich(ev.Summary),
			"$DIFFBODY": c.renderDiffBody(ctx),
		},
		headers: map[string]string{"Auto-Submitted": "auto-generated"},
	}

	common.from, common.replyTo = c.senderIdentity(editor, editorName)
	return common, nil
}

// renderFor substitutes the per-user tokens into the shared skeleton and
// applies the post-transform pass, yielding one PersonalizedMessage.
func (c *Composer) renderFor(ctx context.Context, info *types.UserInfo) *types.ComposedMessage {
	loc := c.deps.Localizer
	tz := c.userLocation(ctx, info.ID)
	wantsEvery := c.wantsEveryChange(ctx, info.ID)

	// The since-last-visit link only makes sense for recipients notified on
	// every change; once-per-visit recipients get the suffix instead.
	lastVisitLine, lastVisitLineRich := "", ""
	if wantsEvery && c.event.PrevRevisionID != "" {
		link := c.sinceLastVisitURL()
		lastVisitLine = template.Render(loc.Text(i18n.KeyLastVisitLine), template.Tokens{"$LASTVISITLINK": link})
		lastVisitLineRich = template.Render(loc.Rich(i18n.KeyLastVisitLine), template.Tokens{"$LASTVISITLINK": link})
	}

	suffix := ""
	if !wantsEvery {
		suffix = loc.Text(i18n.KeyNoFurtherNotice)
	}

	salutation := loc.Text(i18n.KeySalutation, info.DisplayName(c.deps.Notify.UseRealNames))
	editDate := c.event.EditedAt.In(tz).Format(mailDateFormat)

	userText := template.Tokens{
		"$SALUTATION":    salutation,
		"$EDITDATE":      editDate,
		"$LASTVISITLINE": lastVisitLine,
		"$SUFFIXLINE":    suffix,
	}
	userHTML := template.Tokens{
		"$SALUTATION":    template.EscapeRich(salutation),
		"$EDITDATE":      template.EscapeRich(editDate),
		"$LASTVISITLINE": lastVisitLineRich,
		"$SUFFIXLINE":    template.EscapeRich(suffix),
	}

	return c.assemble(userText, userHTML)
}

// renderImpersonal performs the single shared render: a generic salutation,
// the deployment-default (UTC) date, and no per-user lines.
func (c *Composer) renderImpersonal(ctx context.Context) *types.ComposedMessage {
	loc := c.deps.Localizer
	salutation := loc.Text(i18n.KeySalutationImpersonal)
	editDate := c.event.EditedAt.UTC().Format(mailDateFormat)

	userText := template.Tokens{
		"$SALUTATION":    salutation,
		"$EDITDATE":      editDate,
		"$LASTVISITLINE": "",
		"$SUFFIXLINE":    "",
	}
	userHTML := template.Tokens{
		"$SALUTATION":    template.EscapeRich(salutation),
		"$EDITDATE":      template.EscapeRich(editDate),
		"$LASTVISITLINE": "",
		"$SUFFIXLINE":    "",
	}

	msg := c.assemble(userText, userHTML)
	msg.Headers["Precedence"] = "bulk"
	return msg
}

// assemble runs the per-user pass then the post-transform pass over both
// body variants and snapshots the result as an immutable ComposedMessage.
func (c *Composer) assemble(userText, userHTML template.Tokens) *types.ComposedMessage {
	text := template.Fill{Primary: userText, Post: c.common.postText}.Apply(c.common.textSkeleton)
	rich := template.Fill{Primary: userHTML, Post: c.common.postHTML}.Apply(c.common.htmlSkeleton)

	headers := make(map[string]string, len(c.common.headers))
	for k, v := range c.common.headers {
		headers[k] = v
	}

	return &types.ComposedMessage{
		Subject:   c.common.subject,
		TextBody:  text,
		HTMLBody:  rich,
		From:      c.common.from,
		ReplyTo:   c.common.replyTo,
		Headers:   headers,
		Reference: c.event.RevisionID,
	}
}

// senderIdentity resolves the from/reply-to pair. Two independent
// deployment toggles may reveal the editor's own address; otherwise the
// no-reply address is used.
func (c *Composer) senderIdentity(editor *types.UserInfo, editorName string) (types.MailAddress, string) {
	from := types.MailAddress{
		Name:    c.deps.Mail.FromName,
		Address: c.deps.Mail.NoReplyAddress,
	}
	replyTo := ""

	if editor.Email != "" {
		if c.deps.Notify.EditorAddressAsFrom {
			from = types.MailAddress{Name: editorName, Address: editor.Email}
		} else if c.deps.Notify.EditorAddressAsReplyTo {
			replyTo = editor.Email
		}
	}

	return from, replyTo
}

// renderDiffBody asks the diff collaborator for the rich change rendering.
// A renderer failure downgrades the mail to link-only; it never fails the
// run.
func (c *Composer) renderDiffBody(ctx context.Context) string {
	ev := c.event
	if !c.deps.Notify.EmbedDiff || ev.PrevRevisionID == "" || c.deps.Diff == nil {
		return ""
	}

	body, err := c.deps.Diff.RenderDiff(ctx, ev.Document, ev.PrevRevisionID, ev.RevisionID)
	if err != nil {
		c.deps.Logger.Warn("diff rendering failed, sending link-only mail",
			"document", ev.Document.String(),
			"error", err.Error(),
		)
		return ""
	}
	return body
}

// userLocation resolves the recipient's timezone preference, defaulting to
// UTC on a missing or invalid value.
func (c *Composer) userLocation(ctx context.Context, id types.UserID) *time.Location {
	tz, err := c.deps.Users.Preference(ctx, id, types.PrefTimeZone)
	if err != nil || tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// wantsEveryChange reports whether the recipient opted into per-change
// notices. When false, the "no further notice until you visit" suffix is
// appended.
func (c *Composer) wantsEveryChange(ctx context.Context, id types.UserID) bool {
	val, err := c.deps.Users.Preference(ctx, id, types.PrefDiffNotices)
	if err != nil {
		return false
	}
	switch val {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func (c *Composer) documentURL() string {
	return c.deps.Notify.BaseURL + "/" + url.PathEscape(c.event.Document.String())
}

func (c *Composer) recentDiffURL() string {
	return fmt.Sprintf("%s?diff=%s&oldid=%s",
		c.documentURL(),
		url.QueryEscape(c.event.RevisionID),
		url.QueryEscape(c.event.PrevRevisionID),
	)
}

func (c *Composer) sinceLastVisitURL() string {
	return c.documentURL() + "?diff=since-last-visit"
}
