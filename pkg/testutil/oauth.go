package testutil

import (
	"context"

	"github.com/relaydesk/backend/pkg/oauth"
)

type MockAuthorizationFlow struct {
	AuthorizationURLFunc func(ctx context.Context, state, challenge string) (string, error)
	ExchangeFunc         func(ctx context.Context, code, verifier string) (oauth.TokenResponse, error)
}

func (m *MockAuthorizationFlow) AuthorizationURL(
	ctx context.Context, state, challenge string,
) (string, error) {
	if m.AuthorizationURLFunc != nil {
		return m.AuthorizationURLFunc(ctx, state, challenge)
	}

	return "https://pagehub.test/authorize?state=" + state, nil
}

func (m *MockAuthorizationFlow) Exchange(
	ctx context.Context, code, verifier string,
) (oauth.TokenResponse, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, code, verifier)
	}

	return oauth.TokenResponse{AccessToken: "exchanged-access-token"}, nil
}

type MockTokenRefresher struct {
	RefreshFunc func(ctx context.Context, refreshToken string) (oauth.TokenResponse, error)
}

func (m *MockTokenRefresher) Refresh(
	ctx context.Context, refreshToken string,
) (oauth.TokenResponse, error) {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}

	return oauth.TokenResponse{AccessToken: "refreshed-access-token"}, nil
}
