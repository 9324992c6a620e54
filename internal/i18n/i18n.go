// Package i18n defines the localization collaborator consumed by the
// notification composer, plus a built-in English catalog so the engine runs
// standalone. Deployments with a real localization service implement
// Localizer and inject it instead.
package i18n

import (
	"html"
	"strconv"
	"strings"
)

// Localizer resolves message keys into localized strings. Text returns the
// plain-text variant; Rich returns the rich-text (HTML) variant, falling
// back to an escaped Text render when no rich variant exists.
//
// Returned strings may contain $TOKEN placeholders; the composer fills them
// via the template package. Positional parameters use $1..$n and are
// substituted here.
type Localizer interface {
	Text(key string, params ...string) string
	Rich(key string, params ...string) string
}

// Catalog is a map-backed Localizer. Unknown keys render as the key itself
// wrapped in angle brackets, which keeps a missing translation visible
// without failing the notification run.
type Catalog struct {
	text map[string]string
	rich map[string]string
}

// NewCatalog builds a Catalog from explicit message maps. rich may be nil.
func NewCatalog(text, rich map[string]string) *Catalog {
	if rich == nil {
		rich = map[string]string{}
	}
	return &Catalog{text: text, rich: rich}
}

// Text implements Localizer.
func (c *Catalog) Text(key string, params ...string) string {
	msg, ok := c.text[key]
	if !ok {
		return "<" + key + ">"
	}
	return substituteParams(msg, params)
}

// Rich implements Localizer.
func (c *Catalog) Rich(key string, params ...string) string {
	if msg, ok := c.rich[key]; ok {
		escaped := make([]string, len(params))
		for i, p := range params {
			escaped[i] = html.EscapeString(p)
		}
		return substituteParams(msg, escaped)
	}
	return html.EscapeString(c.Text(key, params...))
}

// substituteParams replaces $1..$n with the given parameters, highest index
// first so $10 is not clobbered by $1.
func substituteParams(msg string, params []string) string {
	for i := len(params); i >= 1; i-- {
		msg = strings.ReplaceAll(msg, "$"+strconv.Itoa(i), params[i-1])
	}
	return msg
}

var _ Localizer = (*Catalog)(nil)
