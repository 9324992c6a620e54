package i18n

// Message keys used by the notification composer. A deployment-provided
// Localizer must resolve the same keys.
const (
	KeySubject              = "notify.subject"
	KeyBodyText             = "notify.body.text"
	KeyBodyRich             = "notify.body.rich"
	KeySalutation           = "notify.salutation"
	KeySalutationImpersonal = "notify.salutation.impersonal"
	KeySummaryLine          = "notify.summary-line"
	KeyDiffLine             = "notify.diff-line"
	KeyLastVisitLine        = "notify.lastvisit-line"
	KeyNoFurtherNotice      = "notify.no-further-notice"
	KeyFooter               = "notify.footer"
	KeyMinorTag             = "notify.minor-tag"

	keyActionPrefix = "notify.action."
)

// KeyAction returns the message key for a page-status action word, e.g.
// "notify.action.changed".
func KeyAction(status string) string {
	return keyActionPrefix + status
}

// NewEnglish returns the built-in English catalog.
func NewEnglish() *Catalog {
	text := map[string]string{
		KeySubject: "$SITENAME notice: $DOCTITLE has been $CHANGEDACTION by $EDITORNAME",

		KeyBodyText: `$SALUTATION

The $SITENAME document "$DOCTITLE" has been $CHANGEDACTION on $EDITDATE by $EDITORNAME.$MINORTAG

See $DOCURL for the current version.

$SUMMARYLINE
$DIFFLINE
$LASTVISITLINE
$SUFFIXLINE

--
$FOOTER`,

		KeySalutation:           "Dear $1,",
		KeySalutationImpersonal: "Hello,",
		KeySummaryLine:          "Editor's summary: $SUMMARY",
		KeyDiffLine:             "See $DIFFLINK for this change.",
		KeyLastVisitLine:        "See $LASTVISITLINK for all changes since your last visit.",
		KeyNoFurtherNotice: "There will be no other notifications in case of further " +
			"activity unless you visit this document. You can reset the notification " +
			"flags for all your watched documents at any time.",
		KeyFooter:   "To change your notification settings, visit $PREFSURL",
		KeyMinorTag: " This is a minor edit.",

		keyActionPrefix + "created":  "created",
		keyActionPrefix + "changed":  "changed",
		keyActionPrefix + "deleted":  "deleted",
		keyActionPrefix + "moved":    "moved",
		keyActionPrefix + "restored": "restored",
	}

	rich := map[string]string{
		KeyBodyRich: `<p>$SALUTATION</p>
<p>The $SITENAME document <b>$DOCTITLE</b> has been $CHANGEDACTION on $EDITDATE by $EDITORNAME.$MINORTAG</p>
<p>See <a href="$DOCURL">the current version</a>.</p>
<p>$SUMMARYLINE</p>
<p>$DIFFLINE</p>
<p>$LASTVISITLINE</p>
$DIFFBODY
<p>$SUFFIXLINE</p>
<hr>
<p>$FOOTER</p>`,

		KeySummaryLine:   "Editor's summary: <i>$SUMMARY</i>",
		KeyDiffLine:      `See <a href="$DIFFLINK">this change</a> for the edit.`,
		KeyLastVisitLine: `See <a href="$LASTVISITLINK">all changes</a> since your last visit.`,
	}

	return NewCatalog(text, rich)
}
