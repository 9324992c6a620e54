package notify

import (
	"context"

	"pagewatch/internal/types"
)

// RecipientVeto is an external extension predicate invoked after an
// otherwise-accepted policy evaluation. Returning ok=false rejects the
// candidate; reason is diagnostic only.
type RecipientVeto struct {
	Name string
	Fn   func(ctx context.Context, event *types.ChangeEvent, user types.UserID, kind types.RecipientKind) (ok bool, reason string)
}

// Hooks is the closed set of extension points. Hooks are registered once at
// startup and never mutated afterwards; the engine invokes them by position
// at each defined point.
type Hooks struct {
	// RecipientVetoes run, in order, as the final recipient policy rule.
	// The first veto that rejects short-circuits the rest.
	RecipientVetoes []RecipientVeto

	// ExtraPageStatuses extends the set of page-status values accepted by
	// message composition beyond the built-in ones.
	ExtraPageStatuses []types.PageStatus
}

// StatusAllowed reports whether composition accepts the given status.
func (h *Hooks) StatusAllowed(status types.PageStatus) bool {
	if status.Known() {
		return true
	}
	if h == nil {
		return false
	}
	for _, s := range h.ExtraPageStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Veto runs the recipient veto chain. It returns the name and reason of the
// first rejecting hook, or ok=true when every hook passes.
func (h *Hooks) Veto(ctx context.Context, event *types.ChangeEvent, user types.UserID, kind types.RecipientKind) (ok bool, name, reason string) {
	if h == nil {
		return true, "", ""
	}
	for _, v := range h.RecipientVetoes {
		if v.Fn == nil {
			continue
		}
		if passed, why := v.Fn(ctx, event, user, kind); !passed {
			return false, v.Name, why
		}
	}
	return true, "", ""
}
