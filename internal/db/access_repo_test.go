package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pagewatch/internal/types"
)

// Note: mockDBTX and mockRow are defined in user_repo_test.go and reused here.

func TestAccessRepository_CanRead_Allowed(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAccessRepository(db)
	ctx := context.Background()

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*bool) = true
			return nil
		},
	}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"", "Secret", "alice"}).Return(row)

	ok, err := repo.CanRead(ctx, types.DocumentID{Key: "Secret"}, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	db.AssertExpectations(t)
}

func TestAccessRepository_CanRead_Denied(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAccessRepository(db)
	ctx := context.Background()

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*bool) = false
			return nil
		},
	}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	ok, err := repo.CanRead(ctx, types.DocumentID{Key: "Secret"}, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccessRepository_CanRead_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAccessRepository(db)
	ctx := context.Background()

	row := &mockRow{scanErr: errors.New("connection refused")}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	_, err := repo.CanRead(ctx, types.DocumentID{Key: "Secret"}, "alice")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestAccessRepository_HasCapability(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAccessRepository(db)
	ctx := context.Background()

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*bool) = true
			return nil
		},
	}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"editor", "suppress-minor-talk-notice"}).Return(row)

	has, err := repo.HasCapability(ctx, "editor", "suppress-minor-talk-notice")
	require.NoError(t, err)
	assert.True(t, has)

	db.AssertExpectations(t)
}
