package testutil

import (
	"context"
	"time"

	"github.com/relaydesk/backend/config"
	"github.com/relaydesk/backend/internal/entity"
	"github.com/relaydesk/backend/pkg/authenticator"
	"github.com/relaydesk/backend/pkg/logger"
	"github.com/relaydesk/backend/pkg/xcontext"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func MockContext() context.Context {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		panic(err)
	}

	// The in-memory database exists per connection. Pin the pool to one so
	// concurrent tests all see the same data.
	sqlDB, err := db.DB()
	if err != nil {
		panic(err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := config.Configs{
		Auth: config.AuthConfigs{
			TokenSecret: "secret",
			AccessToken: config.TokenConfigs{
				Name:       "access_token",
				Expiration: time.Minute,
			},
		},
		Vault: config.VaultConfigs{
			EncryptionKey:        "0123456789abcdef0123456789abcdef",
			RefreshBuffer:        5 * time.Minute,
			CacheSafetyMargin:    time.Minute,
			DefaultTokenLifetime: 365 * 24 * time.Hour,
			LockTTL:              30 * time.Second,
			LockWaitTimeout:      200 * time.Millisecond,
			LockPollInterval:     10 * time.Millisecond,
		},
		Pagehub: config.PagehubConfigs{
			Issuer:          "https://pagehub.test",
			APIEndpoint:     "https://api.pagehub.test",
			ClientID:        "client-id",
			RedirectURI:     "https://app.relaydesk.test/callback",
			Scopes:          "read_content",
			StateExpiration: 10 * time.Minute,
		},
	}

	ctx := context.Background()
	ctx = xcontext.WithConfigs(ctx, cfg)
	ctx = xcontext.WithLogger(ctx, logger.NewLoggerWithLevel(logger.SILENCE))
	ctx = xcontext.WithTokenEngine(ctx, authenticator.NewTokenEngine(cfg.Auth.TokenSecret))
	ctx = xcontext.WithDB(ctx, db)

	if err := entity.MigrateTable(ctx); err != nil {
		panic(err)
	}

	return ctx
}

func MockContextWithUserID(userID string) context.Context {
	return xcontext.WithRequestUserID(MockContext(), userID)
}
