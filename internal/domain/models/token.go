package models

import "time"

// RefreshToken represents a refresh token stored in the database. The row is
// the source of truth for liveness: a refresh token without exactly one
// non-expired row is unusable no matter what its signature says.
type RefreshToken struct {
	ID        int64
	UserID    int64
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// TokenPair is the access+refresh pair minted on register, login and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
