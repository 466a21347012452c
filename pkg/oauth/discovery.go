package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/puzpuzpuz/xsync"
	"github.com/relaydesk/backend/config"
	"github.com/relaydesk/backend/pkg/api"
	"github.com/relaydesk/backend/pkg/xcontext"
	"golang.org/x/sync/singleflight"
)

const metadataCacheTTL = time.Hour

type cachedMetadata struct {
	metadata  Metadata
	fetchedAt time.Time
}

// Discoverer resolves the provider's authorization and token endpoints,
// preferring standards-based discovery and falling back to the statically
// configured endpoints. Results are cached in memory with a fixed TTL.
type Discoverer struct {
	cfg config.PagehubConfigs

	cache *xsync.MapOf[string, cachedMetadata]
	group singleflight.Group
}

func NewDiscoverer(cfg config.PagehubConfigs) *Discoverer {
	return &Discoverer{
		cfg:   cfg,
		cache: xsync.NewMapOf[cachedMetadata](),
	}
}

// Discover returns the provider metadata, from cache when fresh. Concurrent
// callers share one fetch.
func (d *Discoverer) Discover(ctx context.Context) (Metadata, error) {
	issuer := strings.TrimSuffix(d.cfg.Issuer, "/")

	if entry, ok := d.cache.Load(issuer); ok {
		if time.Since(entry.fetchedAt) < metadataCacheTTL {
			return entry.metadata, nil
		}
	}

	result, err, _ := d.group.Do(issuer, func() (any, error) {
		if entry, ok := d.cache.Load(issuer); ok {
			if time.Since(entry.fetchedAt) < metadataCacheTTL {
				return entry.metadata, nil
			}
		}

		metadata, err := d.resolve(ctx, issuer)
		if err != nil {
			return Metadata{}, err
		}

		d.cache.Store(issuer, cachedMetadata{metadata: metadata, fetchedAt: time.Now()})
		return metadata, nil
	})
	if err != nil {
		return Metadata{}, err
	}

	return result.(Metadata), nil
}

// Clear drops every cached entry. Exposed for tests and operational
// overrides.
func (d *Discoverer) Clear() {
	d.cache.Range(func(key string, _ cachedMetadata) bool {
		d.cache.Delete(key)
		return true
	})
}

func (d *Discoverer) resolve(ctx context.Context, issuer string) (Metadata, error) {
	authServer := issuer
	if resolved, err := d.resolveAuthorizationServer(ctx, issuer); err == nil && resolved != "" {
		authServer = strings.TrimSuffix(resolved, "/")
	}

	metadata, err := d.fetchServerMetadata(ctx, authServer)
	if err != nil {
		xcontext.Logger(ctx).Warnf("Cannot discover provider metadata, using static endpoints: %v", err)
		metadata, err = d.staticMetadata(issuer, err)
		if err != nil {
			return Metadata{}, err
		}
	}

	if metadata.AuthorizationEndpoint == "" || metadata.TokenEndpoint == "" {
		// Incomplete metadata also falls back to the static endpoints; it
		// only becomes a configuration error when there is nothing to fall
		// back to.
		metadata, err = d.staticMetadata(issuer, fmt.Errorf("%w: missing endpoints", ErrProviderMisconfigured))
		if err != nil {
			return Metadata{}, err
		}
	}

	if !metadata.SupportsS256() {
		return Metadata{}, fmt.Errorf("%w: S256 challenge method not supported", ErrProviderMisconfigured)
	}

	return metadata, nil
}

// resolveAuthorizationServer asks the protected-resource metadata which
// authorization server protects the API. A failure here only skips a hop,
// discovery continues against the issuer itself.
func (d *Discoverer) resolveAuthorizationServer(ctx context.Context, issuer string) (string, error) {
	resp, err := api.NewGenerator(issuer).
		New("/.well-known/oauth-protected-resource").
		Header("Accept", "application/json").
		GET(ctx)
	if err != nil {
		return "", err
	}

	if resp.Code != 200 {
		return "", fmt.Errorf("protected resource metadata answered %d", resp.Code)
	}

	body, ok := resp.Body.(api.JSON)
	if !ok {
		return "", errors.New("invalid protected resource metadata format")
	}

	servers, err := body.GetArray("authorization_servers")
	if err != nil || len(servers) == 0 {
		return "", errors.New("no authorization servers declared")
	}

	server, ok := servers[0].(string)
	if !ok {
		return "", errors.New("invalid authorization server entry")
	}

	return server, nil
}

func (d *Discoverer) fetchServerMetadata(ctx context.Context, authServer string) (Metadata, error) {
	var lastErr error
	for _, path := range []string{
		"/.well-known/oauth-authorization-server",
		"/.well-known/openid-configuration",
	} {
		metadata, err := d.fetchMetadata(ctx, authServer, path)
		if err == nil {
			return metadata, nil
		}
		lastErr = err
	}

	return Metadata{}, lastErr
}

func (d *Discoverer) fetchMetadata(ctx context.Context, authServer, path string) (Metadata, error) {
	resp, err := api.NewGenerator(authServer).
		New(path).
		Header("Accept", "application/json").
		GET(ctx)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if resp.Code != 200 {
		return Metadata{}, fmt.Errorf("%w: metadata request answered %d", ErrProviderUnavailable, resp.Code)
	}

	body, ok := resp.Body.(api.JSON)
	if !ok {
		return Metadata{}, fmt.Errorf("%w: invalid metadata format", ErrProviderMisconfigured)
	}

	var metadata Metadata
	if err := mapstructure.Decode(map[string]any(body), &metadata); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrProviderMisconfigured, err)
	}

	return metadata, nil
}

// staticMetadata is the last resort when discovery is unreachable or
// incomplete. With no static endpoints configured, the discovery error
// itself is surfaced.
func (d *Discoverer) staticMetadata(issuer string, cause error) (Metadata, error) {
	if d.cfg.AuthorizationEndpoint == "" || d.cfg.TokenEndpoint == "" {
		return Metadata{}, cause
	}

	return Metadata{
		Issuer:                issuer,
		AuthorizationEndpoint: d.cfg.AuthorizationEndpoint,
		TokenEndpoint:         d.cfg.TokenEndpoint,
	}, nil
}
