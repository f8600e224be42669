// Package hasher wraps bcrypt for password hashing and verification.
package hasher

import "golang.org/x/crypto/bcrypt"

// Hash produces a salted bcrypt digest of the password. The salt is generated
// fresh on every call, so hashing the same password twice yields different
// digests.
func Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether password matches the digest. A malformed digest or a
// wrong password is a plain false, not an error: callers treat both as a
// normal failed login.
func Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
