package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/relaydesk/backend/config"
	"github.com/relaydesk/backend/pkg/logger"
	"github.com/relaydesk/backend/pkg/xcontext"
	"github.com/stretchr/testify/require"
)

func testContext() context.Context {
	ctx := context.Background()
	ctx = xcontext.WithLogger(ctx, logger.NewLoggerWithLevel(logger.SILENCE))
	return ctx
}

func TestDiscoverFromServerMetadata(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.well-known/oauth-authorization-server":
			atomic.AddInt32(&hits, 1)
			json.NewEncoder(w).Encode(map[string]any{
				"issuer":                           "https://auth.example.com",
				"authorization_endpoint":           "https://auth.example.com/authorize",
				"token_endpoint":                   "https://auth.example.com/token",
				"code_challenge_methods_supported": []string{"S256"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	discoverer := NewDiscoverer(config.PagehubConfigs{Issuer: server.URL})

	metadata, err := discoverer.Discover(testContext())
	require.NoError(t, err)
	require.Equal(t, "https://auth.example.com/authorize", metadata.AuthorizationEndpoint)
	require.Equal(t, "https://auth.example.com/token", metadata.TokenEndpoint)

	// Second call is a cache hit.
	_, err = discoverer.Discover(testContext())
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))

	// Clearing the cache forces a refetch.
	discoverer.Clear()
	_, err = discoverer.Discover(testContext())
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestDiscoverFollowsProtectedResourceMetadata(t *testing.T) {
	authServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/oauth-authorization-server" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"authorization_endpoint": "https://auth.example.com/authorize",
			"token_endpoint":         "https://auth.example.com/token",
		})
	}))
	defer authServer.Close()

	resource := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/oauth-protected-resource" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"authorization_servers": []string{authServer.URL},
		})
	}))
	defer resource.Close()

	discoverer := NewDiscoverer(config.PagehubConfigs{Issuer: resource.URL})

	metadata, err := discoverer.Discover(testContext())
	require.NoError(t, err)
	require.Equal(t, "https://auth.example.com/token", metadata.TokenEndpoint)
}

func TestDiscoverFallsBackToOpenIDConfiguration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"authorization_endpoint": "https://auth.example.com/authorize",
			"token_endpoint":         "https://auth.example.com/token",
		})
	}))
	defer server.Close()

	discoverer := NewDiscoverer(config.PagehubConfigs{Issuer: server.URL})

	metadata, err := discoverer.Discover(testContext())
	require.NoError(t, err)
	require.Equal(t, "https://auth.example.com/authorize", metadata.AuthorizationEndpoint)
}

func TestDiscoverStaticFallback(t *testing.T) {
	discoverer := NewDiscoverer(config.PagehubConfigs{
		Issuer:                "http://127.0.0.1:1",
		AuthorizationEndpoint: "https://static.example.com/authorize",
		TokenEndpoint:         "https://static.example.com/token",
	})

	metadata, err := discoverer.Discover(testContext())
	require.NoError(t, err)
	require.Equal(t, "https://static.example.com/authorize", metadata.AuthorizationEndpoint)
}

func TestDiscoverUnreachableWithoutFallback(t *testing.T) {
	discoverer := NewDiscoverer(config.PagehubConfigs{Issuer: "http://127.0.0.1:1"})

	_, err := discoverer.Discover(testContext())
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestDiscoverRejectsWithoutS256(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"authorization_endpoint":           "https://auth.example.com/authorize",
			"token_endpoint":                   "https://auth.example.com/token",
			"code_challenge_methods_supported": []string{"plain"},
		})
	}))
	defer server.Close()

	discoverer := NewDiscoverer(config.PagehubConfigs{Issuer: server.URL})

	_, err := discoverer.Discover(testContext())
	require.ErrorIs(t, err, ErrProviderMisconfigured)
}

func TestDiscoverRejectsMissingEndpoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"authorization_endpoint": "https://auth.example.com/authorize",
		})
	}))
	defer server.Close()

	discoverer := NewDiscoverer(config.PagehubConfigs{Issuer: server.URL})

	_, err := discoverer.Discover(testContext())
	require.ErrorIs(t, err, ErrProviderMisconfigured)
}
