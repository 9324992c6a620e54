package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pagewatch/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// --- Lookup Tests ---

func TestUserRepository_Lookup_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)
	ctx := context.Background()

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "alice"              // name
			*dest[1].(*string) = "Alice Cooper"       // real_name
			*dest[2].(*string) = "alice@example.test" // email
			*dest[3].(*bool) = true                   // email_verified
			*dest[4].(*bool) = false                  // blocked
			return nil
		},
	}

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"alice"}).Return(row)

	info, err := repo.Lookup(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, types.UserID("alice"), info.ID)
	assert.Equal(t, "alice", info.Name)
	assert.Equal(t, "Alice Cooper", info.RealName)
	assert.Equal(t, "alice@example.test", info.Email)
	assert.True(t, info.EmailVerified)
	assert.False(t, info.Blocked)
	assert.False(t, info.Anonymous)

	db.AssertExpectations(t)
}

func TestUserRepository_Lookup_MissingUserIsAnonymous(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)
	ctx := context.Background()

	row := &mockRow{scanErr: pgx.ErrNoRows}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"ghost"}).Return(row)

	info, err := repo.Lookup(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, types.UserID("ghost"), info.ID)
	assert.True(t, info.Anonymous)

	db.AssertExpectations(t)
}

func TestUserRepository_Lookup_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)
	ctx := context.Background()

	row := &mockRow{scanErr: errors.New("connection refused")}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"alice"}).Return(row)

	_, err := repo.Lookup(ctx, "alice")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

// --- Preference Tests ---

func TestUserRepository_Preference_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)
	ctx := context.Background()

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "Asia/Tokyo"
			return nil
		},
	}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"alice", "timezone"}).Return(row)

	value, err := repo.Preference(ctx, "alice", "timezone")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", value)

	db.AssertExpectations(t)
}

func TestUserRepository_Preference_UnsetIsEmpty(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)
	ctx := context.Background()

	row := &mockRow{scanErr: pgx.ErrNoRows}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"alice", "timezone"}).Return(row)

	value, err := repo.Preference(ctx, "alice", "timezone")
	require.NoError(t, err)
	assert.Equal(t, "", value)
}
