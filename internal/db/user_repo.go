package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"pagewatch/internal/types"
)

// UserRepository provides data access for the users and user_preferences
// tables. It backs both the identity lookups of the recipient policy and
// the raw preference reads of the composer.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository backed by the given
// database connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Lookup returns the identity snapshot for a user. A missing row is not an
// error: it maps to Anonymous=true, which the recipient policy rejects.
func (r *UserRepository) Lookup(ctx context.Context, id types.UserID) (*types.UserInfo, error) {
	row := r.db.QueryRow(ctx,
		`SELECT name, COALESCE(real_name, ''), COALESCE(email, ''),
		        email_verified, blocked
		 FROM users WHERE id = $1`,
		string(id),
	)

	info := &types.UserInfo{ID: id}
	err := row.Scan(&info.Name, &info.RealName, &info.Email, &info.EmailVerified, &info.Blocked)
	if errors.Is(err, pgx.ErrNoRows) {
		return &types.UserInfo{ID: id, Anonymous: true}, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up user", err)
	}
	return info, nil
}

// Preference returns the raw preference value for the given key, or ""
// when unset.
func (r *UserRepository) Preference(ctx context.Context, id types.UserID, key string) (string, error) {
	row := r.db.QueryRow(ctx,
		`SELECT pref_value FROM user_preferences
		 WHERE user_id = $1 AND pref_key = $2`,
		string(id), key,
	)

	var value string
	err := row.Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to read preference", err)
	}
	return value, nil
}
