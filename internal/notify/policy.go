package notify

import (
	"context"
	"fmt"
	"strings"

	"pagewatch/internal/config"
	"pagewatch/internal/types"
)

// Compile-time assertion that Policy implements RecipientPolicy.
var _ RecipientPolicy = (*Policy)(nil)

// RecipientPolicy decides whether a candidate user receives a notification
// for a change event. Rejections are expected outcomes, not errors: the
// decision flows back with Accepted=false and a diagnostic reason. The
// returned error is reserved for collaborator failures (store or oracle
// unreachable).
type RecipientPolicy interface {
	Evaluate(ctx context.Context, event *types.ChangeEvent, candidate types.UserID, kind types.RecipientKind) (types.RecipientDecision, error)
}

// Policy is the production RecipientPolicy. Rules apply in a fixed order
// and the first failing rule short-circuits:
//
//  1. Self-exclusion: the actor never receives their own change.
//  2. Minor-edit gate: minor edits notify only when the deployment allows
//     it, and never for a talk page whose editor holds the suppress
//     capability.
//  3. Preference gate: the candidate must have the subscription preference
//     matching their kind (roster membership is its own consent).
//  4. Identity validity: anonymous or unverified-address candidates are out.
//  5. Access control: the candidate must still be able to read the
//     document, checked fresh against the oracle on every evaluation.
//  6. Login eligibility: when the deployment disables login for restricted
//     accounts, a blocked candidate is out too.
//  7. Veto hooks: external predicates get the final word.
type Policy struct {
	users  UserStore
	access AccessOracle
	hooks  *Hooks
	cfg    config.NotifyConfig
	logger types.Logger
}

// NewPolicy creates a Policy with the given collaborators and deployment
// toggles.
func NewPolicy(users UserStore, access AccessOracle, hooks *Hooks, cfg config.NotifyConfig, logger types.Logger) *Policy {
	return &Policy{
		users:  users,
		access: access,
		hooks:  hooks,
		cfg:    cfg,
		logger: logger,
	}
}

// Evaluate applies the policy rules in order for one candidate.
func (p *Policy) Evaluate(ctx context.Context, event *types.ChangeEvent, candidate types.UserID, kind types.RecipientKind) (types.RecipientDecision, error) {
	reject := func(reason string) types.RecipientDecision {
		return types.RecipientDecision{User: candidate, Kind: kind, Accepted: false, Reason: reason}
	}

	// Rule 1: self-exclusion.
	if candidate == event.ActorID {
		return reject("candidate is the actor"), nil
	}

	// Rule 2: minor-edit gate.
	if event.Minor {
		if !p.cfg.NotifyOnMinor {
			return reject("minor edit and deployment does not notify on minor edits"), nil
		}
		if kind == types.KindTalkPageOwner {
			suppress, err := p.access.HasCapability(ctx, event.ActorID, types.CapSuppressMinorTalk)
			if err != nil {
				return reject(""), fmt.Errorf("Evaluate: capability check: %w", err)
			}
			if suppress {
				return reject("actor suppresses minor talk-page notices"), nil
			}
		}
	}

	// Rule 3: preference gate.
	switch kind {
	case types.KindWatcher:
		on, err := p.boolPref(ctx, candidate, types.PrefWatchedPages)
		if err != nil {
			return reject(""), err
		}
		if !on {
			return reject("watched-pages notifications disabled"), nil
		}
	case types.KindTalkPageOwner:
		on, err := p.boolPref(ctx, candidate, types.PrefTalkPage)
		if err != nil {
			return reject(""), err
		}
		if !on {
			return reject("talk-page notifications disabled"), nil
		}
	case types.KindAllChangesSubscriber:
		// Roster membership is configured per deployment; no per-user
		// preference applies.
	default:
		return reject(fmt.Sprintf("unknown recipient kind %q", kind)), nil
	}

	// Rule 4: identity validity.
	info, err := p.users.Lookup(ctx, candidate)
	if err != nil {
		return reject(""), fmt.Errorf("Evaluate: user lookup: %w", err)
	}
	if info.Anonymous {
		return reject("candidate is anonymous"), nil
	}
	if info.Email == "" || !info.EmailVerified {
		return reject("candidate has no verified contact address"), nil
	}

	// Rule 5: access control, never cached.
	canRead, err := p.access.CanRead(ctx, event.Document, candidate)
	if err != nil {
		return reject(""), fmt.Errorf("Evaluate: access check: %w", err)
	}
	if !canRead {
		return reject("candidate lost read access to the document"), nil
	}

	// Rule 6: login eligibility.
	if p.cfg.RestrictedCannotLogin && info.Blocked {
		return reject("restricted account cannot log in"), nil
	}

	// Rule 7: veto hooks.
	if ok, name, why := p.hooks.Veto(ctx, event, candidate, kind); !ok {
		return reject(fmt.Sprintf("vetoed by hook %q: %s", name, why)), nil
	}

	return types.RecipientDecision{User: candidate, Kind: kind, Accepted: true}, nil
}

// boolPref reads a preference and interprets it as a boolean toggle.
func (p *Policy) boolPref(ctx context.Context, id types.UserID, key string) (bool, error) {
	val, err := p.users.Preference(ctx, id, key)
	if err != nil {
		return false, fmt.Errorf("Evaluate: preference %s: %w", key, err)
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true, nil
	default:
		return false, nil
	}
}
