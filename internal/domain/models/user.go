package models

import "time"

// User is the identity record owned by persistence. PassHash is opaque and
// must never appear in responses or logs.
type User struct {
	ID        int64
	Name      string
	Email     string
	PassHash  []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}
