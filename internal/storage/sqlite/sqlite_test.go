package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvault/internal/storage"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	schema, err := os.ReadFile("../../../migrations/000001_init.up.sql")
	require.NoError(t, err)
	_, err = s.DB().Exec(string(schema))
	require.NoError(t, err)

	return s
}

func saveTestUser(t *testing.T, s *Storage) int64 {
	t.Helper()
	id, err := s.SaveUser(context.Background(), gofakeit.Name(), gofakeit.Email(), []byte("hash"))
	require.NoError(t, err)
	return id
}

func TestSaveUser_DuplicateEmail(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	email := gofakeit.Email()

	_, err := s.SaveUser(ctx, "Alice", email, []byte("hash-1"))
	require.NoError(t, err)

	_, err = s.SaveUser(ctx, "Bob", email, []byte("hash-2"))
	assert.ErrorIs(t, err, storage.ErrUserAlreadyExists)
}

func TestUser_Lookup(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	email := gofakeit.Email()

	id, err := s.SaveUser(ctx, "Alice", email, []byte("hash"))
	require.NoError(t, err)

	user, err := s.User(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "Alice", user.Name)
	assert.Equal(t, []byte("hash"), user.PassHash)
	assert.False(t, user.CreatedAt.IsZero())

	byID, err := s.UserByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, email, byID.Email)

	_, err = s.User(ctx, "missing@example.com")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestRefreshToken_SaveAndLookup(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	userID := saveTestUser(t, s)
	expiresAt := time.Now().Add(time.Hour)

	require.NoError(t, s.SaveRefreshToken(ctx, userID, "token-1", expiresAt))

	rt, err := s.RefreshToken(ctx, "token-1", userID)
	require.NoError(t, err)
	assert.Equal(t, userID, rt.UserID)
	assert.Equal(t, "token-1", rt.Token)
	assert.WithinDuration(t, expiresAt, rt.ExpiresAt, time.Second)

	// Lookup is keyed by (token, user): the right token under the wrong
	// subject is not found.
	_, err = s.RefreshToken(ctx, "token-1", userID+1)
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)
}

func TestDeleteRefreshToken_Idempotent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	userID := saveTestUser(t, s)

	require.NoError(t, s.SaveRefreshToken(ctx, userID, "token-1", time.Now().Add(time.Hour)))
	require.NoError(t, s.DeleteRefreshToken(ctx, "token-1"))
	require.NoError(t, s.DeleteRefreshToken(ctx, "token-1"))
	require.NoError(t, s.DeleteRefreshToken(ctx, "never-stored"))
}

func TestRotateRefreshToken_Atomic(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	userID := saveTestUser(t, s)

	require.NoError(t, s.SaveRefreshToken(ctx, userID, "old", time.Now().Add(time.Hour)))

	err := s.RotateRefreshToken(ctx, "old", "new", userID, time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = s.RefreshToken(ctx, "old", userID)
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)

	rt, err := s.RefreshToken(ctx, "new", userID)
	require.NoError(t, err)
	assert.Equal(t, "new", rt.Token)

	// Spending the same token again loses: nothing is inserted.
	err = s.RotateRefreshToken(ctx, "old", "newer", userID, time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)

	_, err = s.RefreshToken(ctx, "newer", userID)
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)
}

func TestDeleteUserRefreshTokens(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	userID := saveTestUser(t, s)
	otherID := saveTestUser(t, s)

	require.NoError(t, s.SaveRefreshToken(ctx, userID, "t1", time.Now().Add(time.Hour)))
	require.NoError(t, s.SaveRefreshToken(ctx, userID, "t2", time.Now().Add(time.Hour)))
	require.NoError(t, s.SaveRefreshToken(ctx, otherID, "t3", time.Now().Add(time.Hour)))

	require.NoError(t, s.DeleteUserRefreshTokens(ctx, userID))

	_, err := s.RefreshToken(ctx, "t1", userID)
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)
	_, err = s.RefreshToken(ctx, "t2", userID)
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)

	// Other users' sessions survive.
	_, err = s.RefreshToken(ctx, "t3", otherID)
	require.NoError(t, err)
}

func TestPortfolio_UpsertReplaces(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	userID := saveTestUser(t, s)
	scrapedAt := time.Now().Add(-time.Hour)

	_, err := s.Portfolio(ctx, userID)
	assert.ErrorIs(t, err, storage.ErrPortfolioNotFound)

	require.NoError(t, s.SavePortfolio(ctx, userID, "aXY=", "Y3Q=", "dGFn", scrapedAt))

	p, err := s.Portfolio(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "aXY=", p.IV)
	assert.Equal(t, "Y3Q=", p.Ciphertext)
	assert.Equal(t, "dGFn", p.AuthTag)
	assert.WithinDuration(t, scrapedAt, p.ScrapedAt, time.Second)

	// Second submission replaces the row, never adds one.
	require.NoError(t, s.SavePortfolio(ctx, userID, "aXYy", "Y3Qy", "dGFnMg==", scrapedAt.Add(time.Hour)))

	p2, err := s.Portfolio(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, p2.ID)
	assert.Equal(t, "aXYy", p2.IV)
	assert.Equal(t, "Y3Qy", p2.Ciphertext)

	var count int
	require.NoError(t, s.DB().QueryRow(
		"SELECT COUNT(*) FROM encrypted_portfolios WHERE user_id = ?", userID).Scan(&count))
	assert.Equal(t, 1, count)
}
