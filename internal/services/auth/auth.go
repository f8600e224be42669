package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finvault/internal/domain/models"
	"finvault/internal/lib/hasher"
	"finvault/internal/lib/jwt"
	"finvault/internal/lib/sl"
	"finvault/internal/storage"
)

type Auth struct {
	logger        *slog.Logger
	userSaver     UserSaver
	userProvider  UserProvider
	tokenProvider RefreshTokenProvider
	codec         *jwt.Codec
}

type UserSaver interface {
	SaveUser(
		ctx context.Context,
		name string,
		email string,
		passHash []byte,
	) (uid int64, err error)
}

type UserProvider interface {
	User(
		ctx context.Context,
		email string,
	) (user *models.User, err error)
	UserByID(
		ctx context.Context,
		userID int64,
	) (user *models.User, err error)
}

type RefreshTokenProvider interface {
	SaveRefreshToken(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	RefreshToken(ctx context.Context, token string, userID int64) (*models.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) error
	DeleteRefreshTokenByID(ctx context.Context, id int64) error
	RotateRefreshToken(ctx context.Context, oldToken, newToken string, userID int64, expiresAt time.Time) error
}

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrInvalidAccessToken  = errors.New("invalid access token")
)

// New returns a new instance of the Auth service.
func New(
	logger *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	tokenProvider RefreshTokenProvider,
	codec *jwt.Codec,
) *Auth {
	return &Auth{
		logger:        logger,
		userSaver:     userSaver,
		userProvider:  userProvider,
		tokenProvider: tokenProvider,
		codec:         codec,
	}
}

// Register creates a new user and signs them in, returning a fresh token
// pair and the created user.
func (a *Auth) Register(
	ctx context.Context,
	name string,
	email string,
	password string,
) (*models.User, *models.TokenPair, error) {
	const op = "auth.Register"
	log := a.logger.With(slog.String("op", op), slog.String("email", email))
	log.Info("register request")

	passHash, err := hasher.Hash(password)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	userID, err := a.userSaver.SaveUser(ctx, name, email, []byte(passHash))
	if err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			log.Warn("user already exists")
			return nil, nil, fmt.Errorf("%s: %w", op, ErrUserAlreadyExists)
		}
		log.Error("failed to save user", sl.Err(err))
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &models.User{ID: userID, Name: name, Email: email}

	pair, err := a.issueAndSaveTokens(ctx, user)
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.Int64("userID", userID))

	return user, pair, nil
}

// Login authenticates the user and returns a fresh token pair. Other active
// sessions of the same user are left untouched.
func (a *Auth) Login(
	ctx context.Context,
	email string,
	password string,
) (*models.User, *models.TokenPair, error) {
	const op = "auth.Login"
	log := a.logger.With(slog.String("op", op))
	log.Info("login request", slog.String("email", email))

	user, err := a.userProvider.User(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			// Same outcome as a wrong password so the response cannot be
			// used to enumerate accounts.
			log.Warn("user not found")
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if !hasher.Verify(password, string(user.PassHash)) {
		log.Warn("invalid password", slog.Int64("userID", user.ID))
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pair, err := a.issueAndSaveTokens(ctx, user)
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.Int64("userID", user.ID))

	return user, pair, nil
}

// Refresh exchanges a valid refresh token for a new token pair (rotation).
// The presented token is invalidated on success: every refresh token is
// single-use.
func (a *Auth) Refresh(
	ctx context.Context,
	refreshToken string,
) (*models.TokenPair, error) {
	const op = "auth.Refresh"
	log := a.logger.With(slog.String("op", op))
	log.Info("refresh request")

	claims, err := a.codec.VerifyRefresh(refreshToken)
	if err != nil {
		log.Warn("refresh token failed verification")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
	}

	stored, err := a.tokenProvider.RefreshToken(ctx, refreshToken, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			// Covers forged tokens and replay of an already rotated one.
			log.Warn("refresh token not stored", slog.Int64("userID", claims.UserID))
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
		}
		log.Error("failed to get refresh token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if time.Now().After(stored.ExpiresAt) {
		// Lazy eviction: expired rows are only reaped when presented.
		if err := a.tokenProvider.DeleteRefreshTokenByID(ctx, stored.ID); err != nil {
			log.Error("failed to delete expired refresh token", sl.Err(err))
		}
		log.Warn("refresh token expired", slog.Int64("userID", claims.UserID))
		return nil, fmt.Errorf("%s: %w", op, ErrRefreshTokenExpired)
	}

	user, err := a.userProvider.UserByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user deleted since token issuance", slog.Int64("userID", stored.UserID))
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	accessToken, err := a.codec.IssueAccess(user)
	if err != nil {
		log.Error("failed to issue access token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	newRefreshToken, err := a.codec.IssueRefresh(user)
	if err != nil {
		log.Error("failed to issue refresh token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	expiresAt := time.Now().Add(a.codec.RefreshTTL())
	err = a.tokenProvider.RotateRefreshToken(ctx, refreshToken, newRefreshToken, user.ID, expiresAt)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			// A concurrent refresh spent the token between lookup and
			// rotation; the transaction makes exactly one caller win.
			log.Warn("refresh token spent concurrently", slog.Int64("userID", user.ID))
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
		}
		log.Error("failed to rotate refresh token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("tokens refreshed", slog.Int64("userID", user.ID))

	return &models.TokenPair{AccessToken: accessToken, RefreshToken: newRefreshToken}, nil
}

// Logout revokes the refresh token by deleting its row. Deleting a token that
// was never stored, or was already rotated away, succeeds: logout is
// idempotent.
func (a *Auth) Logout(ctx context.Context, refreshToken string) error {
	const op = "auth.Logout"
	log := a.logger.With(slog.String("op", op))

	if err := a.tokenProvider.DeleteRefreshToken(ctx, refreshToken); err != nil {
		log.Error("failed to delete refresh token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("logged out")

	return nil
}

// CurrentUser resolves an access token to its user.
func (a *Auth) CurrentUser(ctx context.Context, accessToken string) (*models.User, error) {
	const op = "auth.CurrentUser"
	log := a.logger.With(slog.String("op", op))

	claims, err := a.codec.VerifyAccess(accessToken)
	if err != nil {
		log.Warn("access token failed verification")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidAccessToken)
	}

	user, err := a.userProvider.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found", slog.Int64("userID", claims.UserID))
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// issueAndSaveTokens mints an access+refresh pair and persists the refresh
// row with its absolute expiry.
func (a *Auth) issueAndSaveTokens(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	accessToken, err := a.codec.IssueAccess(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := a.codec.IssueRefresh(user)
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(a.codec.RefreshTTL())
	if err := a.tokenProvider.SaveRefreshToken(ctx, user.ID, refreshToken, expiresAt); err != nil {
		return nil, err
	}

	return &models.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
