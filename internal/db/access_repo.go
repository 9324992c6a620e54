package db

import (
	"context"

	"pagewatch/internal/types"
)

// AccessRepository answers permission questions from the user_capabilities
// and document_restrictions tables. A document with no restriction rows is
// world-readable; a restricted document requires the user to hold every
// capability listed for it.
type AccessRepository struct {
	db DBTX
}

// NewAccessRepository creates a new AccessRepository backed by the given
// database connection (pool or transaction).
func NewAccessRepository(db DBTX) *AccessRepository {
	return &AccessRepository{db: db}
}

// CanRead reports whether the user may read the document. The check always
// hits the database; callers must not cache the answer across events.
func (r *AccessRepository) CanRead(ctx context.Context, doc types.DocumentID, user types.UserID) (bool, error) {
	row := r.db.QueryRow(ctx,
		`SELECT NOT EXISTS (
			SELECT 1 FROM document_restrictions dr
			WHERE dr.doc_namespace = $1 AND dr.doc_key = $2
			  AND NOT EXISTS (
				SELECT 1 FROM user_capabilities uc
				WHERE uc.user_id = $3 AND uc.capability = dr.required_capability
			  )
		 )`,
		doc.Namespace, doc.Key, string(user),
	)

	var canRead bool
	if err := row.Scan(&canRead); err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check read access", err)
	}
	return canRead, nil
}

// HasCapability reports whether the user holds the named capability.
func (r *AccessRepository) HasCapability(ctx context.Context, user types.UserID, capability string) (bool, error) {
	row := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM user_capabilities
			WHERE user_id = $1 AND capability = $2
		 )`,
		string(user), capability,
	)

	var has bool
	if err := row.Scan(&has); err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check capability", err)
	}
	return has, nil
}
