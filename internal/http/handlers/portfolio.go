package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"finvault/internal/domain/models"
	"finvault/internal/http/middleware"
	"finvault/internal/lib/envelope"
	"finvault/internal/lib/sl"
	"finvault/internal/services/portfolio"
)

// Portfolio is the slice of the relay the handlers need.
type Portfolio interface {
	Store(ctx context.Context, userID int64, iv, ciphertext, authTag string, scrapedAt time.Time) error
	Fetch(ctx context.Context, userID int64) (*models.EncryptedPortfolio, error)
}

type PortfolioHandler struct {
	logger *slog.Logger
	relay  Portfolio
}

func NewPortfolioHandler(logger *slog.Logger, relay Portfolio) *PortfolioHandler {
	return &PortfolioHandler{logger: logger, relay: relay}
}

type submitRequest struct {
	IV        string `json:"iv"`
	Data      string `json:"data"`
	Tag       string `json:"tag"`
	ScrapedAt string `json:"scrapedAt"`
}

type portfolioResponse struct {
	IV        string `json:"iv"`
	Data      string `json:"data"`
	Tag       string `json:"tag"`
	ScrapedAt string `json:"scrapedAt"`
	UpdatedAt string `json:"updatedAt"`
}

// Submit accepts one sealed envelope and replaces whatever was stored for the
// user before. Only the shape is validated here; authenticity can only be
// checked by the key holder, never by this server.
func (h *PortfolioHandler) Submit(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	iv, err := base64.StdEncoding.DecodeString(req.IV)
	if err != nil || len(iv) != envelope.IVSize {
		writeError(w, http.StatusBadRequest, "iv must be base64 of 12 bytes")
		return
	}
	if req.Data == "" {
		writeError(w, http.StatusBadRequest, "data is required")
		return
	}
	if _, err := base64.StdEncoding.DecodeString(req.Data); err != nil {
		writeError(w, http.StatusBadRequest, "data must be base64")
		return
	}
	tag, err := base64.StdEncoding.DecodeString(req.Tag)
	if err != nil || len(tag) != envelope.TagSize {
		writeError(w, http.StatusBadRequest, "tag must be base64 of 16 bytes")
		return
	}
	scrapedAt, err := time.Parse(time.RFC3339, req.ScrapedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "scrapedAt must be an ISO-8601 timestamp")
		return
	}

	if err := h.relay.Store(r.Context(), claims.UserID, req.IV, req.Data, req.Tag, scrapedAt); err != nil {
		h.logger.Error("failed to store portfolio", sl.Err(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, messageResponse{Message: "Portfolio stored"})
}

func (h *PortfolioHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	p, err := h.relay.Fetch(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, portfolio.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No portfolio found")
			return
		}
		h.logger.Error("failed to fetch portfolio", sl.Err(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, portfolioResponse{
		IV:        p.IV,
		Data:      p.Ciphertext,
		Tag:       p.AuthTag,
		ScrapedAt: p.ScrapedAt.UTC().Format(time.RFC3339),
		UpdatedAt: p.UpdatedAt.UTC().Format(time.RFC3339),
	})
}
