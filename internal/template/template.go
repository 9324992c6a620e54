// Package template implements the placeholder substitution used to turn
// localized message skeletons into notification subjects and bodies. Tokens
// are $UPPERCASE markers; rendering is pure string substitution with no I/O
// and no error paths.
package template

import (
	"html"
	"sort"
	"strings"
)

// Tokens maps token keys (e.g. "$DOCTITLE") to replacement values. Distinct
// token maps exist for the plain-text and rich-text variants of a message
// because rich-text values are escaped independently.
type Tokens map[string]string

// Clone returns a shallow copy so per-recipient fills never mutate the
// shared common token set.
func (t Tokens) Clone() Tokens {
	out := make(Tokens, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Render replaces every occurrence of each token key with its value.
// Unmatched $TOKEN-shaped substrings are left verbatim. Substituted values
// are not re-scanned, so a value containing a token key does not trigger a
// second substitution within the same pass.
//
// Determinism: keys are applied longest-first, ties broken lexicographically,
// so the result never depends on map iteration order and "$DIFFLINK2" wins
// over "$DIFFLINK" where both could match.
func Render(tmpl string, tokens Tokens) string {
	if len(tokens) == 0 || tmpl == "" {
		return tmpl
	}

	keys := make([]string, 0, len(tokens))
	for k := range tokens {
		if k == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, k, tokens[k])
	}

	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Fill groups the two substitution passes a message goes through. Primary
// tokens are engine-controlled values substituted into the localized
// skeleton. Post tokens carry raw user-supplied content (edit summaries,
// rendered diffs) and run strictly after every primary pass, so content
// that happens to contain a token delimiter is never itself treated as a
// template key.
type Fill struct {
	Primary Tokens
	Post    Tokens
}

// Apply runs the primary pass followed by the post pass.
func (f Fill) Apply(tmpl string) string {
	return Render(Render(tmpl, f.Primary), f.Post)
}

// EscapeRich escapes a plain string for inclusion in the rich-text (HTML)
// variant of a message.
func EscapeRich(s string) string {
	return html.EscapeString(s)
}
