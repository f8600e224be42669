package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	_ "github.com/mattn/go-sqlite3"

	"finvault/internal/domain/models"
	"finvault/internal/storage"
)

type Storage struct {
	db *sql.DB
}

// New returns a new instance of the Storage.
func New(storagePath string) (*Storage, error) {
	const op = "storage.sqlite.New"
	db, err := sql.Open("sqlite3", storagePath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Storage{db: db}, nil
}

// DB exposes the underlying handle for the migrator and tests.
func (s *Storage) DB() *sql.DB {
	return s.db
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) SaveUser(ctx context.Context, name, email string, passHash []byte) (int64, error) {
	const op = "storage.sqlite.SaveUser"
	stmt, err := s.db.Prepare("INSERT INTO users (name, email, pass_hash) VALUES (?, ?, ?)")
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()
	result, err := stmt.ExecContext(ctx, name, email, passHash)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return result.LastInsertId()
}

func (s *Storage) User(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.sqlite.User"
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, pass_hash, created_at, updated_at FROM users WHERE email = ?", email)
	return scanUser(row, op)
}

func (s *Storage) UserByID(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.sqlite.UserByID"
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, pass_hash, created_at, updated_at FROM users WHERE id = ?", userID)
	return scanUser(row, op)
}

func scanUser(row *sql.Row, op string) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PassHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &user, nil
}

func (s *Storage) SaveRefreshToken(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	const op = "storage.sqlite.SaveRefreshToken"
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token, expires_at) VALUES (?, ?, ?)",
		userID, token, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) RefreshToken(ctx context.Context, token string, userID int64) (*models.RefreshToken, error) {
	const op = "storage.sqlite.RefreshToken"
	row := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, token, expires_at, created_at FROM refresh_tokens WHERE token = ? AND user_id = ?",
		token, userID)
	var rt models.RefreshToken
	err := row.Scan(&rt.ID, &rt.UserID, &rt.Token, &rt.ExpiresAt, &rt.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &rt, nil
}

// DeleteRefreshToken removes the row for token. Deleting a token that is not
// stored is not an error; logout is idempotent.
func (s *Storage) DeleteRefreshToken(ctx context.Context, token string) error {
	const op = "storage.sqlite.DeleteRefreshToken"
	_, err := s.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE token = ?", token)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) DeleteRefreshTokenByID(ctx context.Context, id int64) error {
	const op = "storage.sqlite.DeleteRefreshTokenByID"
	_, err := s.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteUserRefreshTokens revokes every session of the user.
func (s *Storage) DeleteUserRefreshTokens(ctx context.Context, userID int64) error {
	const op = "storage.sqlite.DeleteUserRefreshTokens"
	_, err := s.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RotateRefreshToken atomically replaces oldToken with newToken in one
// transaction. If oldToken is no longer stored (already rotated by a
// concurrent refresh, or logged out) the transaction aborts with
// storage.ErrTokenNotFound and nothing is inserted, so one logical refresh
// token can only ever be spent once.
func (s *Storage) RotateRefreshToken(ctx context.Context, oldToken, newToken string, userID int64, expiresAt time.Time) error {
	const op = "storage.sqlite.RotateRefreshToken"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE token = ? AND user_id = ?", oldToken, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token, expires_at) VALUES (?, ?, ?)",
		userID, newToken, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SavePortfolio upserts the single envelope row for the user; each submission
// replaces the previous one.
func (s *Storage) SavePortfolio(ctx context.Context, userID int64, iv, ciphertext, authTag string, scrapedAt time.Time) error {
	const op = "storage.sqlite.SavePortfolio"
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO encrypted_portfolios (user_id, iv, ciphertext, auth_tag, scraped_at, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			iv = excluded.iv,
			ciphertext = excluded.ciphertext,
			auth_tag = excluded.auth_tag,
			scraped_at = excluded.scraped_at,
			updated_at = CURRENT_TIMESTAMP`,
		userID, iv, ciphertext, authTag, scrapedAt.UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) Portfolio(ctx context.Context, userID int64) (*models.EncryptedPortfolio, error) {
	const op = "storage.sqlite.Portfolio"
	row := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, iv, ciphertext, auth_tag, scraped_at, updated_at FROM encrypted_portfolios WHERE user_id = ?",
		userID)
	var p models.EncryptedPortfolio
	err := row.Scan(&p.ID, &p.UserID, &p.IV, &p.Ciphertext, &p.AuthTag, &p.ScrapedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrPortfolioNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &p, nil
}
