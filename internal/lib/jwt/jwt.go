package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"finvault/internal/domain/models"
)

// ErrInvalidToken is the uniform verification failure. Empty, malformed,
// expired and wrong-secret tokens all surface as this one error so callers
// cannot be used as an oracle for which check failed.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the closed claim set embedded in every token. Tokens whose
// decoded claims do not match this shape are rejected.
type Claims struct {
	UserID int64  `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Codec mints and verifies access and refresh tokens. The two purposes are
// signed with distinct secrets, so a token issued for one purpose fails
// verification under the other.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewCodec(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Codec {
	return &Codec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// AccessTTL returns the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccess creates a short-lived access JWT for the user.
func (c *Codec) IssueAccess(user *models.User) (string, error) {
	return issue(user, c.accessSecret, c.accessTTL)
}

// IssueRefresh creates a long-lived refresh JWT for the user.
func (c *Codec) IssueRefresh(user *models.User) (string, error) {
	return issue(user, c.refreshSecret, c.refreshTTL)
}

// VerifyAccess validates the token against the access secret and returns its
// claims.
func (c *Codec) VerifyAccess(token string) (*Claims, error) {
	return verify(token, c.accessSecret)
}

// VerifyRefresh validates the token against the refresh secret and returns
// its claims.
func (c *Codec) VerifyRefresh(token string) (*Claims, error) {
	return verify(token, c.refreshSecret)
}

func issue(user *models.User, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(
		jwt.SigningMethodHS256,
		Claims{
			UserID: user.ID,
			Email:  user.Email,
			RegisteredClaims: jwt.RegisteredClaims{
				// iat/exp have second precision; the jti keeps two tokens
				// minted for one user in the same second distinct, which the
				// unique token column in the store relies on.
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			},
		})
	return token.SignedString(secret)
}

func verify(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	// Closed claim shape: a syntactically valid token missing the expected
	// fields is as unusable as a forged one.
	if claims.UserID == 0 || claims.Email == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
