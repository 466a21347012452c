package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/relaydesk/backend/config"
	"github.com/relaydesk/backend/internal/domain"
	"github.com/relaydesk/backend/internal/entity"
	"github.com/relaydesk/backend/internal/repository"
	"github.com/relaydesk/backend/internal/vault"
	"github.com/relaydesk/backend/pkg/api/pagehub"
	"github.com/relaydesk/backend/pkg/crypto"
	"github.com/relaydesk/backend/pkg/logger"
	"github.com/relaydesk/backend/pkg/oauth"
	"github.com/relaydesk/backend/pkg/router"
	"github.com/relaydesk/backend/pkg/xcontext"
	"github.com/relaydesk/backend/pkg/xredis"
	"github.com/urfave/cli/v2"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

type srv struct {
	app *cli.App

	configs *config.Configs
	logger  logger.Logger

	db          *gorm.DB
	redisClient xredis.Client

	codec       *crypto.SecretCodec
	discoverer  *oauth.Discoverer
	tokenClient *oauth.TokenClient
	endpoint    pagehub.IEndpoint

	userRepo       repository.UserRepository
	connectionRepo repository.ConnectionRepository
	oauthStateRepo repository.OAuthStateRepository

	tokenVault vault.TokenVault

	connectDomain   domain.ConnectDomain
	operationDomain domain.OperationDomain

	router *router.Router
	server *http.Server
}

// newContext carries the loaded dependencies into code paths running
// outside a request, like migrations and the sweep command.
func (s *srv) newContext() context.Context {
	ctx := context.Background()
	ctx = xcontext.WithConfigs(ctx, *s.configs)
	ctx = xcontext.WithLogger(ctx, s.logger)
	if s.db != nil {
		ctx = xcontext.WithDB(ctx, s.db)
	}

	return ctx
}

func (s *srv) loadConfig() {
	s.configs = &config.Configs{
		Env: getEnv("ENV", "local"),
		ApiServer: config.ServerConfigs{
			Host:          getEnv("HOST", "localhost"),
			Port:          getEnv("PORT", "8080"),
			AllowedOrigin: os.Getenv("ALLOWED_ORIGIN"),
		},
		Database: config.DatabaseConfigs{
			Host:     getEnv("MYSQL_HOST", "localhost"),
			Port:     getEnv("MYSQL_PORT", "3306"),
			Database: getEnv("MYSQL_DATABASE", "relaydesk"),
			User:     getEnv("MYSQL_USER", "relaydesk"),
			Password: getEnv("MYSQL_PASSWORD", "secret"),
		},
		Redis: config.RedisConfigs{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Auth: config.AuthConfigs{
			TokenSecret: getEnv("TOKEN_SECRET", "token-secret"),
			AccessToken: config.TokenConfigs{
				Name:       "access_token",
				Expiration: getDuration("ACCESS_TOKEN_EXPIRATION", time.Hour),
			},
		},
		Vault: config.VaultConfigs{
			EncryptionKey:        os.Getenv("VAULT_ENCRYPTION_KEY"),
			RefreshBuffer:        getDuration("VAULT_REFRESH_BUFFER", 5*time.Minute),
			CacheSafetyMargin:    getDuration("VAULT_CACHE_SAFETY_MARGIN", time.Minute),
			DefaultTokenLifetime: getDuration("VAULT_DEFAULT_TOKEN_LIFETIME", 365*24*time.Hour),
			LockTTL:              getDuration("VAULT_LOCK_TTL", 30*time.Second),
			LockWaitTimeout:      getDuration("VAULT_LOCK_WAIT_TIMEOUT", 10*time.Second),
			LockPollInterval:     getDuration("VAULT_LOCK_POLL_INTERVAL", 500*time.Millisecond),
		},
		Pagehub: config.PagehubConfigs{
			Issuer:                getEnv("PAGEHUB_ISSUER", "https://pagehub.com"),
			APIEndpoint:           getEnv("PAGEHUB_API_ENDPOINT", "https://api.pagehub.com"),
			AuthorizationEndpoint: os.Getenv("PAGEHUB_AUTHORIZATION_ENDPOINT"),
			TokenEndpoint:         os.Getenv("PAGEHUB_TOKEN_ENDPOINT"),
			ClientID:              os.Getenv("PAGEHUB_CLIENT_ID"),
			ClientSecret:          os.Getenv("PAGEHUB_CLIENT_SECRET"),
			RedirectURI:           os.Getenv("PAGEHUB_REDIRECT_URI"),
			Scopes:                getEnv("PAGEHUB_SCOPES", "read_content"),
			StateExpiration:       getDuration("PAGEHUB_STATE_EXPIRATION", 10*time.Minute),
			RequestTimeout:        getDuration("PAGEHUB_REQUEST_TIMEOUT", 30*time.Second),
		},
	}
}

func (s *srv) loadLogger() {
	s.logger = logger.NewLogger()
}

func (s *srv) loadDatabase() {
	var err error
	s.db, err = gorm.Open(mysql.Open(s.configs.Database.ConnectionString()), &gorm.Config{})
	if err != nil {
		panic(err)
	}

	if err := entity.MigrateTable(s.newContext()); err != nil {
		panic(err)
	}
}

func (s *srv) loadRedis() {
	var err error
	s.redisClient, err = xredis.NewClient(s.newContext(), s.configs.Redis)
	if err != nil {
		panic(err)
	}
}

func (s *srv) loadEndpoint() {
	s.discoverer = oauth.NewDiscoverer(s.configs.Pagehub)
	s.tokenClient = oauth.NewTokenClient(s.configs.Pagehub, s.discoverer)
	s.endpoint = pagehub.New(s.configs.Pagehub)
}

func (s *srv) loadRepos() {
	s.userRepo = repository.NewUserRepository()
	s.connectionRepo = repository.NewConnectionRepository()
	s.oauthStateRepo = repository.NewOAuthStateRepository()
}

func (s *srv) loadVault() {
	// A wrong key must stop the process here, not at the first secret.
	codec, err := crypto.NewSecretCodec([]byte(s.configs.Vault.EncryptionKey))
	if err != nil {
		panic(err)
	}

	s.codec = codec
	s.tokenVault = vault.NewTokenVault(
		s.configs.Vault, s.codec, s.redisClient, s.connectionRepo, s.tokenClient)
}

func (s *srv) loadDomains() {
	s.connectDomain = domain.NewConnectDomain(
		s.oauthStateRepo, s.connectionRepo, s.codec, s.tokenClient, s.tokenVault)
	s.operationDomain = domain.NewOperationDomain(s.tokenVault, s.endpoint)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		panic(err)
	}

	return parsed
}
