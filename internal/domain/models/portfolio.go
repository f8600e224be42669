package models

import "time"

// EncryptedPortfolio is the stored envelope for one user. The server never
// decrypts it: iv/ciphertext/tag are opaque base64 text. ScrapedAt travels
// alongside the envelope and is untrusted metadata unless the key holder
// bound it into the tag as additional data.
type EncryptedPortfolio struct {
	ID         int64
	UserID     int64
	IV         string
	Ciphertext string
	AuthTag    string
	ScrapedAt  time.Time
	UpdatedAt  time.Time
}
