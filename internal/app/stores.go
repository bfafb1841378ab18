package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"identity-service/internal/config"
	"identity-service/internal/database"
	"identity-service/internal/otpstore"
	"identity-service/internal/repository"
	"identity-service/internal/service"
)

const shutdownTimeout = 10 * time.Second

// OpenAccountStore connects the account backend named by ACCOUNT_STORE. The
// returned cleanup releases its connections.
func OpenAccountStore(ctx context.Context, cfg *config.Config) (service.AccountStore, func(), error) {
	switch cfg.AccountStore {
	case config.StoreMongo:
		slog.Info("connecting to MongoDB", "database", cfg.MongoDatabase, "collection", cfg.AccountCollection)
		mongoDB, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}

		closeMongo := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := mongoDB.Close(closeCtx); err != nil {
				slog.Warn("mongo disconnect failed", "error", err)
			}
		}

		repo := repository.NewMongoAccountRepository(mongoDB.Collection(cfg.AccountCollection))
		if err := repo.EnsureIndexes(ctx); err != nil {
			closeMongo()
			return nil, nil, fmt.Errorf("failed to ensure account indexes: %w", err)
		}
		slog.Info("account store ready", "backend", config.StoreMongo)
		return repo, closeMongo, nil

	case config.StorePostgres:
		slog.Info("connecting to PostgreSQL")
		db, err := database.New(ctx, cfg.PostgresURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to ensure database schema: %w", err)
		}
		slog.Info("account store ready", "backend", config.StorePostgres)
		return repository.NewPostgresAccountRepository(db.Pool), db.Close, nil

	case config.StoreMemory:
		slog.Warn("using in-memory account store, accounts are lost on restart")
		return repository.NewMemoryAccountRepository(), func() {}, nil
	}

	return nil, nil, fmt.Errorf("unknown account store %q", cfg.AccountStore)
}

// OpenOTPStore connects the OTP backend named by OTP_STORE.
func OpenOTPStore(ctx context.Context, cfg *config.Config) (otpstore.Store, func(), error) {
	switch cfg.OTPStore {
	case config.StoreRedis:
		slog.Info("connecting to Redis", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		store, err := otpstore.NewRedisStore(ctx, otpstore.RedisOptions{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		closeRedis := func() {
			if err := store.Close(); err != nil {
				slog.Warn("redis close failed", "error", err)
			}
		}
		return store, closeRedis, nil

	case config.StoreMemory:
		slog.Warn("using in-memory OTP store, codes are lost on restart")
		return otpstore.NewMemoryStore(), func() {}, nil
	}

	return nil, nil, fmt.Errorf("unknown otp store %q", cfg.OTPStore)
}
