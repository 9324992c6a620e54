package notify

import (
	"context"
	"fmt"
	"strings"

	"pagewatch/internal/types"
)

// Compile-time assertion that NamespaceTalkResolver implements
// TalkPageOwnerResolver.
var _ TalkPageOwnerResolver = (*NamespaceTalkResolver)(nil)

// NamespaceTalkResolver resolves talk-page ownership by naming convention:
// documents in the configured talk namespace belong to the user named by
// the key's base segment (subpages notify the same owner). Deployments
// with a different convention supply their own resolver.
type NamespaceTalkResolver struct {
	talkNamespace string
	users         UserStore
}

// NewNamespaceTalkResolver creates a resolver for the given talk namespace.
func NewNamespaceTalkResolver(talkNamespace string, users UserStore) *NamespaceTalkResolver {
	return &NamespaceTalkResolver{
		talkNamespace: talkNamespace,
		users:         users,
	}
}

// ResolveTalkPageOwner maps the document to its owning user. Documents
// outside the talk namespace, or whose base segment names no registered
// user, resolve to no owner.
func (r *NamespaceTalkResolver) ResolveTalkPageOwner(ctx context.Context, doc types.DocumentID) (types.UserID, bool, error) {
	if doc.Namespace != r.talkNamespace || doc.Key == "" {
		return "", false, nil
	}

	base := doc.Key
	if idx := strings.IndexByte(base, '/'); idx >= 0 {
		base = base[:idx]
	}

	info, err := r.users.Lookup(ctx, types.UserID(base))
	if err != nil {
		return "", false, fmt.Errorf("ResolveTalkPageOwner: %w", err)
	}
	if info.Anonymous {
		return "", false, nil
	}
	return info.ID, true, nil
}
