package auth

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvault/internal/lib/jwt"
	"finvault/internal/storage/sqlite"
)

func newTestAuth(t *testing.T) (*Auth, *sqlite.Storage, *jwt.Codec) {
	t.Helper()

	s, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	schema, err := os.ReadFile("../../../migrations/000001_init.up.sql")
	require.NoError(t, err)
	_, err = s.DB().Exec(string(schema))
	require.NoError(t, err)

	codec := jwt.NewCodec("access-secret", "refresh-secret", 15*time.Minute, 720*time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(logger, s, s, s, codec), s, codec
}

func randomPassword() string {
	return gofakeit.Password(true, true, true, true, false, 12)
}

func TestRegister_IssuesTokenPair(t *testing.T) {
	a, s, codec := newTestAuth(t)
	ctx := context.Background()
	email := gofakeit.Email()

	user, pair, err := a.Register(ctx, "Alice", email, randomPassword())
	require.NoError(t, err)
	require.NotZero(t, user.ID)
	assert.Equal(t, email, user.Email)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := codec.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, email, claims.Email)

	// The refresh row backs the token.
	rt, err := s.RefreshToken(ctx, pair.RefreshToken, user.ID)
	require.NoError(t, err)
	assert.True(t, rt.ExpiresAt.After(time.Now()))
}

func TestRegister_DuplicateEmail(t *testing.T) {
	a, _, _ := newTestAuth(t)
	ctx := context.Background()
	email := gofakeit.Email()

	_, _, err := a.Register(ctx, "Alice", email, randomPassword())
	require.NoError(t, err)

	_, _, err = a.Register(ctx, "Mallory", email, randomPassword())
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestLogin(t *testing.T) {
	a, _, _ := newTestAuth(t)
	ctx := context.Background()
	email := gofakeit.Email()
	password := randomPassword()

	_, _, err := a.Register(ctx, "Alice", email, password)
	require.NoError(t, err)

	user, pair, err := a.Login(ctx, email, password)
	require.NoError(t, err)
	assert.Equal(t, email, user.Email)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	// Wrong password and unknown email collapse into one outcome.
	_, _, err = a.Login(ctx, email, "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = a.Login(ctx, "nobody@example.com", password)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_KeepsOtherSessions(t *testing.T) {
	a, _, _ := newTestAuth(t)
	ctx := context.Background()
	email := gofakeit.Email()
	password := randomPassword()

	_, first, err := a.Register(ctx, "Alice", email, password)
	require.NoError(t, err)

	_, second, err := a.Login(ctx, email, password)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// Both refresh tokens stay spendable.
	_, err = a.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	_, err = a.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
}

func TestRefresh_RotatesAndRejectsReplay(t *testing.T) {
	a, _, _ := newTestAuth(t)
	ctx := context.Background()

	_, pair, err := a.Register(ctx, "Alice", gofakeit.Email(), randomPassword())
	require.NoError(t, err)

	rotated, err := a.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	assert.NotEmpty(t, rotated.AccessToken)

	// The spent token is gone.
	_, err = a.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	// The rotated one works.
	_, err = a.Refresh(ctx, rotated.RefreshToken)
	require.NoError(t, err)
}

func TestRefresh_RejectsGarbageAndAccessTokens(t *testing.T) {
	a, _, _ := newTestAuth(t)
	ctx := context.Background()

	_, pair, err := a.Register(ctx, "Alice", gofakeit.Email(), randomPassword())
	require.NoError(t, err)

	_, err = a.Refresh(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	// An access token signed with the access secret must not pass as a
	// refresh token.
	_, err = a.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefresh_ExpiredRowIsEvicted(t *testing.T) {
	a, s, codec := newTestAuth(t)
	ctx := context.Background()

	user, _, err := a.Register(ctx, "Alice", gofakeit.Email(), randomPassword())
	require.NoError(t, err)

	// A token whose signature is fine but whose row has expired.
	staleToken, err := codec.IssueRefresh(user)
	require.NoError(t, err)
	require.NoError(t, s.SaveRefreshToken(ctx, user.ID, staleToken, time.Now().Add(-time.Minute)))

	_, err = a.Refresh(ctx, staleToken)
	assert.ErrorIs(t, err, ErrRefreshTokenExpired)

	// Lazy eviction removed the row, so the second attempt is plain invalid.
	_, err = a.Refresh(ctx, staleToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestLogout(t *testing.T) {
	a, _, _ := newTestAuth(t)
	ctx := context.Background()

	_, pair, err := a.Register(ctx, "Alice", gofakeit.Email(), randomPassword())
	require.NoError(t, err)

	require.NoError(t, a.Logout(ctx, pair.RefreshToken))

	// Idempotent.
	require.NoError(t, a.Logout(ctx, pair.RefreshToken))

	// The revoked token no longer refreshes even though its signature holds.
	_, err = a.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestCurrentUser(t *testing.T) {
	a, _, _ := newTestAuth(t)
	ctx := context.Background()
	email := gofakeit.Email()

	registered, pair, err := a.Register(ctx, "Alice", email, randomPassword())
	require.NoError(t, err)

	user, err := a.CurrentUser(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	assert.Equal(t, email, user.Email)
	assert.Equal(t, "Alice", user.Name)

	_, err = a.CurrentUser(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidAccessToken)

	// Refresh tokens are not access tokens.
	_, err = a.CurrentUser(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)
}
