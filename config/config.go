package config

import (
	"fmt"
	"time"
)

type Configs struct {
	Env string

	ApiServer ServerConfigs
	Database  DatabaseConfigs
	Redis     RedisConfigs
	Auth      AuthConfigs
	Vault     VaultConfigs
	Pagehub   PagehubConfigs
}

type ServerConfigs struct {
	Host string
	Port string

	// AllowedOrigin is the application origin every mutating request must
	// declare. Requests from any other origin are rejected.
	AllowedOrigin string
}

func (s *ServerConfigs) Address() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

type DatabaseConfigs struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

func (d *DatabaseConfigs) ConnectionString() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
	)
}

type RedisConfigs struct {
	Addr string
}

type AuthConfigs struct {
	TokenSecret string
	AccessToken TokenConfigs
}

type TokenConfigs struct {
	Name       string
	Expiration time.Duration
}

type VaultConfigs struct {
	// EncryptionKey must decode to exactly 32 bytes. Validated once at
	// startup when the secret codec is built.
	EncryptionKey string

	// RefreshBuffer is how long before true expiry a token is refreshed
	// instead of used as-is.
	RefreshBuffer time.Duration

	// CacheSafetyMargin is subtracted from the remaining token lifetime
	// when the plaintext token is cached.
	CacheSafetyMargin time.Duration

	// DefaultTokenLifetime applies when the provider issues tokens without
	// a declared lifetime.
	DefaultTokenLifetime time.Duration

	LockTTL          time.Duration
	LockWaitTimeout  time.Duration
	LockPollInterval time.Duration
}

type PagehubConfigs struct {
	Issuer      string
	APIEndpoint string

	// Static fallbacks used when metadata discovery is unreachable or
	// incomplete.
	AuthorizationEndpoint string
	TokenEndpoint         string

	ClientID string

	// ClientSecret is empty for public-client configurations; when set, it
	// is included in token exchanges.
	ClientSecret string

	RedirectURI string
	Scopes      string

	StateExpiration time.Duration

	// RequestTimeout bounds every outbound call to the provider, discovery
	// and token endpoints included.
	RequestTimeout time.Duration
}
