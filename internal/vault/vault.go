package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/relaydesk/backend/config"
	"github.com/relaydesk/backend/internal/entity"
	"github.com/relaydesk/backend/internal/repository"
	"github.com/relaydesk/backend/pkg/crypto"
	"github.com/relaydesk/backend/pkg/errorx"
	"github.com/relaydesk/backend/pkg/oauth"
	"github.com/relaydesk/backend/pkg/xcontext"
	"github.com/relaydesk/backend/pkg/xredis"
	"gorm.io/gorm"
)

const (
	accessTokenKey = "access_token:%s"
	refreshLockKey = "token_refresh:%s"

	maxRefreshAttempts = 3
	refreshBaseBackoff = 500 * time.Millisecond

	touchTimeout = 5 * time.Second
)

// TokenRefresher is the slice of the token endpoint the vault needs.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (oauth.TokenResponse, error)
}

type TokenVault interface {
	Store(ctx context.Context, userID string, token oauth.TokenResponse) error
	ValidAccessToken(ctx context.Context, userID string) (string, error)
	ForceRefresh(ctx context.Context, userID string) (string, error)
	Disconnect(ctx context.Context, userID string) error
	TouchLastUsed(ctx context.Context, userID string)
}

type tokenVault struct {
	cfg            config.VaultConfigs
	codec          *crypto.SecretCodec
	redisClient    xredis.Client
	connectionRepo repository.ConnectionRepository
	refresher      TokenRefresher
}

func NewTokenVault(
	cfg config.VaultConfigs,
	codec *crypto.SecretCodec,
	redisClient xredis.Client,
	connectionRepo repository.ConnectionRepository,
	refresher TokenRefresher,
) *tokenVault {
	return &tokenVault{
		cfg:            cfg,
		codec:          codec,
		redisClient:    redisClient,
		connectionRepo: connectionRepo,
		refresher:      refresher,
	}
}

// Store encrypts a freshly issued token pair and upserts the user's
// connection row. Tokens never reach the database in plaintext.
func (v *tokenVault) Store(ctx context.Context, userID string, token oauth.TokenResponse) error {
	lifetime := v.cfg.DefaultTokenLifetime
	if token.ExpiresIn > 0 {
		lifetime = time.Duration(token.ExpiresIn) * time.Second
	}
	expiresAt := time.Now().Add(lifetime)

	encryptedAccess, accessIV, err := v.codec.Encrypt(token.AccessToken)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot encrypt access token: %v", err)
		return errorx.Unknown
	}

	connection := &entity.Connection{
		Base:                 entity.Base{ID: uuid.NewString()},
		UserID:               userID,
		EncryptedAccessToken: sql.NullString{Valid: true, String: encryptedAccess},
		AccessTokenIV:        sql.NullString{Valid: true, String: accessIV},
		ExpiresAt:            expiresAt,
		Scope:                token.Scope,
		WorkspaceID:          token.WorkspaceID,
		WorkspaceName:        token.WorkspaceName,
		Status:               entity.ConnectionActive,
	}

	if token.RefreshToken != "" {
		encryptedRefresh, refreshIV, err := v.codec.Encrypt(token.RefreshToken)
		if err != nil {
			xcontext.Logger(ctx).Errorf("Cannot encrypt refresh token: %v", err)
			return errorx.Unknown
		}

		connection.EncryptedRefreshToken = sql.NullString{Valid: true, String: encryptedRefresh}
		connection.RefreshTokenIV = sql.NullString{Valid: true, String: refreshIV}
	}

	if err := v.connectionRepo.Upsert(ctx, connection); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot upsert connection: %v", err)
		return errorx.Unknown
	}

	v.cacheAccessToken(ctx, userID, token.AccessToken, expiresAt)
	return nil
}

// ValidAccessToken returns a plaintext access token guaranteed to outlive
// the refresh buffer, refreshing through the distributed lock when needed.
func (v *tokenVault) ValidAccessToken(ctx context.Context, userID string) (string, error) {
	cached, err := v.redisClient.Get(ctx, fmt.Sprintf(accessTokenKey, userID))
	if err == nil && cached != "" {
		return cached, nil
	}
	if err != nil && err != xredis.Nil {
		xcontext.Logger(ctx).Warnf("Cannot read access token cache: %v", err)
	}

	connection, err := v.activeConnection(ctx, userID)
	if err != nil {
		return "", err
	}

	if time.Until(connection.ExpiresAt) > v.cfg.RefreshBuffer {
		accessToken, err := v.decryptAccessToken(ctx, connection)
		if err != nil {
			return "", err
		}

		v.cacheAccessToken(ctx, userID, accessToken, connection.ExpiresAt)
		return accessToken, nil
	}

	return v.refresh(ctx, userID, connection, false)
}

// ForceRefresh drops the cached token and rotates the pair regardless of
// the recorded expiry. Used after the provider rejects a token we still
// believed valid.
func (v *tokenVault) ForceRefresh(ctx context.Context, userID string) (string, error) {
	if err := v.redisClient.Del(ctx, fmt.Sprintf(accessTokenKey, userID)); err != nil {
		xcontext.Logger(ctx).Warnf("Cannot invalidate access token cache: %v", err)
	}

	connection, err := v.activeConnection(ctx, userID)
	if err != nil {
		return "", err
	}

	return v.refresh(ctx, userID, connection, true)
}

// Disconnect wipes the stored credentials and the cache. Calling it for an
// already disconnected user is a no-op.
func (v *tokenVault) Disconnect(ctx context.Context, userID string) error {
	if err := v.connectionRepo.Disconnect(ctx, userID); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot disconnect user %s: %v", userID, err)
		return errorx.Unknown
	}

	if err := v.redisClient.Del(ctx, fmt.Sprintf(accessTokenKey, userID)); err != nil {
		xcontext.Logger(ctx).Warnf("Cannot drop cached access token: %v", err)
	}

	return nil
}

// TouchLastUsed records usage off the request path. It neither blocks nor
// fails the caller; the write outlives request cancellation but not the
// bounded deadline.
func (v *tokenVault) TouchLastUsed(ctx context.Context, userID string) {
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), touchTimeout)
	go func() {
		defer cancel()
		if err := v.connectionRepo.TouchLastUsed(detached, userID); err != nil {
			xcontext.Logger(detached).Warnf("Cannot touch last_used_at of %s: %v", userID, err)
		}
	}()
}

func (v *tokenVault) activeConnection(
	ctx context.Context, userID string,
) (*entity.Connection, error) {
	connection, err := v.connectionRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.ReconnectionRequired, "No connection for this user")
		}

		xcontext.Logger(ctx).Errorf("Cannot load connection of %s: %v", userID, err)
		return nil, errorx.Unknown
	}

	if connection.Status != entity.ConnectionActive || !connection.HasTokens() {
		return nil, errorx.New(errorx.ReconnectionRequired, "Connection was disconnected")
	}

	return connection, nil
}

func (v *tokenVault) decryptAccessToken(
	ctx context.Context, connection *entity.Connection,
) (string, error) {
	accessToken, err := v.codec.Decrypt(
		connection.EncryptedAccessToken.String, connection.AccessTokenIV.String)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot decrypt access token of %s: %v", connection.UserID, err)
		return "", errorx.New(errorx.ReconnectionRequired, "Stored credentials are unreadable")
	}

	return accessToken, nil
}

func (v *tokenVault) cacheAccessToken(
	ctx context.Context, userID, accessToken string, expiresAt time.Time,
) {
	// The cache must expire before the token itself becomes stale, so a
	// cache hit never needs an expiry check.
	ttl := time.Until(expiresAt) - v.cfg.CacheSafetyMargin
	if ttl <= 0 {
		return
	}

	key := fmt.Sprintf(accessTokenKey, userID)
	if err := v.redisClient.Set(ctx, key, accessToken, ttl); err != nil {
		xcontext.Logger(ctx).Warnf("Cannot cache access token: %v", err)
	}
}

// refresh rotates the token pair under a per-user distributed lock. Losers
// of the lock race wait for the winner's result instead of issuing their
// own refresh.
func (v *tokenVault) refresh(
	ctx context.Context, userID string, connection *entity.Connection, force bool,
) (string, error) {
	if !connection.HasRefreshToken() {
		// Nothing to rotate with. The current token stays usable until
		// its real expiry; past that the connection is dead.
		if time.Now().Before(connection.ExpiresAt) {
			return v.decryptAccessToken(ctx, connection)
		}

		if err := v.Disconnect(ctx, userID); err != nil {
			return "", err
		}

		return "", errorx.New(errorx.ReconnectionRequired, "Access token expired without a refresh token")
	}

	lockKey := fmt.Sprintf(refreshLockKey, userID)
	owner := uuid.NewString()

	acquired, err := v.redisClient.AcquireLock(ctx, lockKey, owner, v.cfg.LockTTL)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot acquire refresh lock: %v", err)
		return "", errorx.New(errorx.ProviderUnavailable, "Token refresh is unavailable")
	}

	if !acquired {
		return v.awaitRefresh(ctx, userID, connection, force)
	}

	defer func() {
		if _, err := v.redisClient.ReleaseLock(ctx, lockKey, owner); err != nil {
			xcontext.Logger(ctx).Warnf("Cannot release refresh lock: %v", err)
		}
	}()

	// Someone may have finished a refresh between our expiry check and
	// the lock acquisition. A forced refresh only stands down when a
	// rotation actually happened since we loaded the row.
	current, err := v.activeConnection(ctx, userID)
	if err != nil {
		return "", err
	}

	fresh := time.Until(current.ExpiresAt) > v.cfg.RefreshBuffer

	if (force && rotatedSince(current, connection)) || (!force && fresh) {
		accessToken, err := v.decryptAccessToken(ctx, current)
		if err != nil {
			return "", err
		}

		v.cacheAccessToken(ctx, userID, accessToken, current.ExpiresAt)
		return accessToken, nil
	}

	refreshToken, err := v.codec.Decrypt(
		current.EncryptedRefreshToken.String, current.RefreshTokenIV.String)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot decrypt refresh token of %s: %v", userID, err)
		return "", errorx.New(errorx.ReconnectionRequired, "Stored credentials are unreadable")
	}

	token, err := v.refreshWithRetry(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidGrant) {
			// The provider revoked the grant. Keeping dead credentials
			// around would make every later call fail the same way.
			if err := v.Disconnect(ctx, userID); err != nil {
				return "", err
			}

			return "", errorx.New(errorx.ReconnectionRequired, "Authorization was revoked by the provider")
		}

		var rateLimited oauth.RateLimitedError
		if errors.As(err, &rateLimited) {
			return "", errorx.New(errorx.RateLimited, "Provider is rate limiting token refreshes")
		}

		xcontext.Logger(ctx).Errorf("Cannot refresh token of %s: %v", userID, err)
		return "", errorx.New(errorx.ProviderUnavailable, "Cannot refresh the access token")
	}

	return v.storeRefreshed(ctx, userID, token)
}

// refreshWithRetry retries transient refresh failures with exponential
// backoff, honoring the provider's Retry-After when it gives one.
func (v *tokenVault) refreshWithRetry(
	ctx context.Context, refreshToken string,
) (oauth.TokenResponse, error) {
	var lastErr error
	for attempt := 0; attempt < maxRefreshAttempts; attempt++ {
		token, err := v.refresher.Refresh(ctx, refreshToken)
		if err == nil {
			return token, nil
		}

		lastErr = err
		if errors.Is(err, oauth.ErrInvalidGrant) {
			return oauth.TokenResponse{}, err
		}

		delay := refreshBaseBackoff << attempt
		var rateLimited oauth.RateLimitedError
		switch {
		case errors.As(err, &rateLimited):
			if rateLimited.RetryAfter > 0 {
				delay = rateLimited.RetryAfter
			}
		case errors.Is(err, oauth.ErrProviderUnavailable):
			// Keep the exponential delay.
		default:
			return oauth.TokenResponse{}, err
		}

		if attempt == maxRefreshAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return oauth.TokenResponse{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	return oauth.TokenResponse{}, lastErr
}

func (v *tokenVault) storeRefreshed(
	ctx context.Context, userID string, token oauth.TokenResponse,
) (string, error) {
	lifetime := v.cfg.DefaultTokenLifetime
	if token.ExpiresIn > 0 {
		lifetime = time.Duration(token.ExpiresIn) * time.Second
	}
	expiresAt := time.Now().Add(lifetime)

	encryptedAccess, accessIV, err := v.codec.Encrypt(token.AccessToken)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot encrypt refreshed access token: %v", err)
		return "", errorx.Unknown
	}

	update := repository.TokenUpdate{
		EncryptedAccessToken: encryptedAccess,
		AccessTokenIV:        accessIV,
		ExpiresAt:            expiresAt,
		Scope:                token.Scope,
	}

	// Providers that rotate refresh tokens return a new one; the old one
	// stays in place otherwise.
	if token.RefreshToken != "" {
		encryptedRefresh, refreshIV, err := v.codec.Encrypt(token.RefreshToken)
		if err != nil {
			xcontext.Logger(ctx).Errorf("Cannot encrypt refreshed refresh token: %v", err)
			return "", errorx.Unknown
		}

		update.EncryptedRefreshToken = sql.NullString{Valid: true, String: encryptedRefresh}
		update.RefreshTokenIV = sql.NullString{Valid: true, String: refreshIV}
	}

	if err := v.connectionRepo.SaveRefreshedTokens(ctx, userID, update); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot persist refreshed tokens: %v", err)
		return "", errorx.Unknown
	}

	v.cacheAccessToken(ctx, userID, token.AccessToken, expiresAt)
	return token.AccessToken, nil
}

// rotatedSince reports whether current shows a rotation the baseline row
// did not have yet.
func rotatedSince(current, baseline *entity.Connection) bool {
	if current.RefreshedAt.Valid &&
		(!baseline.RefreshedAt.Valid || current.RefreshedAt.Time.After(baseline.RefreshedAt.Time)) {
		return true
	}

	return current.ExpiresAt.After(baseline.ExpiresAt)
}

// awaitRefresh polls for the token the lock holder is producing. A forced
// caller started from a row the provider already rejected, so it must not
// trust the cache (a concurrent reader can re-cache the stale token) and
// only accepts a row whose rotation moved past its baseline.
func (v *tokenVault) awaitRefresh(
	ctx context.Context, userID string, baseline *entity.Connection, force bool,
) (string, error) {
	key := fmt.Sprintf(accessTokenKey, userID)
	deadline := time.Now().Add(v.cfg.LockWaitTimeout)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(v.cfg.LockPollInterval):
		}

		if !force {
			cached, err := v.redisClient.Get(ctx, key)
			if err == nil && cached != "" {
				return cached, nil
			}
			if err != nil && err != xredis.Nil {
				xcontext.Logger(ctx).Warnf("Cannot poll access token cache: %v", err)
			}
		}

		connection, err := v.connectionRepo.GetByUserID(ctx, userID)
		if err != nil {
			continue
		}

		// The holder may have hit a revoked grant and disconnected.
		if connection.Status != entity.ConnectionActive || !connection.HasTokens() {
			return "", errorx.New(errorx.ReconnectionRequired, "Connection was disconnected")
		}

		rotated := rotatedSince(connection, baseline)
		fresh := time.Until(connection.ExpiresAt) > v.cfg.RefreshBuffer

		if (force && rotated) || (!force && fresh) {
			return v.decryptAccessToken(ctx, connection)
		}
	}

	return "", errorx.New(errorx.ProviderUnavailable, "Another refresh is still in progress")
}
