// seed creates a development user for local testing. It is idempotent: an existing
// dev@example.com is left untouched. Works against either store.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"content-with-coffee/backend/internal/audit"
	"content-with-coffee/backend/internal/config"
	"content-with-coffee/backend/internal/logging"
	"content-with-coffee/backend/internal/security"
	"content-with-coffee/backend/internal/session/service"
	"content-with-coffee/backend/internal/user/repository"
)

const (
	devUserEmail = "dev@example.com"
	devPassword  = "password123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("seed: refusing to run with APP_ENV=production")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := repository.Open(ctx, cfg.StoreDriver(), cfg.DatabaseURL, cfg.MongoDatabase)
	if err != nil {
		log.Fatalf("seed: open store: %v", err)
	}
	defer func() { _ = store.Close(context.Background()) }()

	tokens := security.NewTokenProvider(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.JWTIssuer, cfg.JWTAudience,
		cfg.AccessTTL(), cfg.RefreshTTL())
	svc := service.NewSessionService(store, security.NewHasher(cfg.BcryptCost), tokens, nil, nil,
		audit.SlogRecorder{Logger: logger}, logger, cfg.MaxSessionsPerUser)

	id, err := svc.Register(ctx, service.RegisterInput{
		Email:         devUserEmail,
		Password:      devPassword,
		Name:          "Dev User",
		Bio:           "Seeded for local development.",
		FavoriteDrink: "cortado",
		Location:      "localhost",
	})
	switch {
	case errors.Is(err, service.ErrEmailAlreadyRegistered):
		logger.Info("seed.skip", "email", devUserEmail, "reason", "already exists")
	case err != nil:
		log.Fatalf("seed: register: %v", err)
	default:
		logger.Info("seed.done", "email", devUserEmail, "user_id", id, "password", devPassword)
	}
}
