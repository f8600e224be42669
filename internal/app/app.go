package app

import (
	"log/slog"

	httpapp "finvault/internal/app/http"
	"finvault/internal/config"
	"finvault/internal/http/handlers"
	"finvault/internal/lib/jwt"
	"finvault/internal/services/auth"
	"finvault/internal/services/portfolio"
	"finvault/internal/storage/sqlite"
)

type App struct {
	HTTPSrv *httpapp.App
	Storage *sqlite.Storage
}

func New(logger *slog.Logger, cfg *config.Config) *App {
	storage, err := sqlite.New(cfg.StoragePath)
	if err != nil {
		panic(err)
	}

	codec := jwt.NewCodec(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	authService := auth.New(logger, storage, storage, storage, codec)
	relay := portfolio.New(logger, storage)

	router := handlers.NewRouter(
		logger,
		codec,
		handlers.NewAuthHandler(logger, authService),
		handlers.NewPortfolioHandler(logger, relay),
	)

	httpApp := httpapp.New(logger, router, cfg.HTTP.Port, cfg.HTTP.Timeout, cfg.HTTP.IdleTimeout)

	return &App{
		HTTPSrv: httpApp,
		Storage: storage,
	}
}
