package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finvault/internal/domain/models"
	"finvault/internal/lib/sl"
	"finvault/internal/storage"
)

// Relay stores and serves sealed portfolio envelopes without ever holding
// the key. It never decrypts and never checks envelope authenticity; only
// the eventual key holder can.
type Relay struct {
	logger   *slog.Logger
	provider EnvelopeProvider
}

type EnvelopeProvider interface {
	SavePortfolio(ctx context.Context, userID int64, iv, ciphertext, authTag string, scrapedAt time.Time) error
	Portfolio(ctx context.Context, userID int64) (*models.EncryptedPortfolio, error)
}

var ErrNotFound = errors.New("no portfolio stored")

func New(logger *slog.Logger, provider EnvelopeProvider) *Relay {
	return &Relay{
		logger:   logger,
		provider: provider,
	}
}

// Store replaces the user's envelope with the submitted one (last-write-wins,
// no history).
func (r *Relay) Store(ctx context.Context, userID int64, iv, ciphertext, authTag string, scrapedAt time.Time) error {
	const op = "portfolio.Store"
	log := r.logger.With(slog.String("op", op), slog.Int64("userID", userID))

	if err := r.provider.SavePortfolio(ctx, userID, iv, ciphertext, authTag, scrapedAt); err != nil {
		log.Error("failed to save portfolio", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("portfolio stored")

	return nil
}

// Fetch returns the user's stored envelope, or ErrNotFound if nothing has
// been submitted yet.
func (r *Relay) Fetch(ctx context.Context, userID int64) (*models.EncryptedPortfolio, error) {
	const op = "portfolio.Fetch"
	log := r.logger.With(slog.String("op", op), slog.Int64("userID", userID))

	p, err := r.provider.Portfolio(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrPortfolioNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		log.Error("failed to get portfolio", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}
