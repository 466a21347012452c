package oauth

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/relaydesk/backend/config"
	"github.com/relaydesk/backend/pkg/api"
	"github.com/relaydesk/backend/pkg/crypto"
)

// TokenClient talks to the discovered token endpoint. It performs single
// attempts with tagged errors; retry policy belongs to the caller.
type TokenClient struct {
	cfg        config.PagehubConfigs
	discoverer *Discoverer
}

func NewTokenClient(cfg config.PagehubConfigs, discoverer *Discoverer) *TokenClient {
	return &TokenClient{cfg: cfg, discoverer: discoverer}
}

// AuthorizationURL composes the redirect URL for the authorization endpoint.
// The verifier never appears here, only its challenge.
func (c *TokenClient) AuthorizationURL(ctx context.Context, state, challenge string) (string, error) {
	metadata, err := c.discoverer.Discover(ctx)
	if err != nil {
		return "", err
	}

	authURL, err := url.Parse(metadata.AuthorizationEndpoint)
	if err != nil {
		return "", fmt.Errorf("%w: invalid authorization endpoint", ErrProviderMisconfigured)
	}

	query := authURL.Query()
	query.Set("response_type", "code")
	query.Set("client_id", c.cfg.ClientID)
	query.Set("redirect_uri", c.cfg.RedirectURI)
	query.Set("state", state)
	query.Set("code_challenge", challenge)
	query.Set("code_challenge_method", crypto.PKCEChallengeMethod)
	if c.cfg.Scopes != "" {
		query.Set("scope", c.cfg.Scopes)
	}

	authURL.RawQuery = query.Encode()
	return authURL.String(), nil
}

// Exchange trades an authorization code for tokens, proving possession with
// the PKCE verifier.
func (c *TokenClient) Exchange(ctx context.Context, code, verifier string) (TokenResponse, error) {
	form := api.Parameter{
		"grant_type":    "authorization_code",
		"code":          code,
		"redirect_uri":  c.cfg.RedirectURI,
		"client_id":     c.cfg.ClientID,
		"code_verifier": verifier,
	}

	return c.doTokenRequest(ctx, form)
}

// Refresh rotates the tokens with a refresh token grant.
func (c *TokenClient) Refresh(ctx context.Context, refreshToken string) (TokenResponse, error) {
	form := api.Parameter{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"client_id":     c.cfg.ClientID,
	}

	return c.doTokenRequest(ctx, form)
}

func (c *TokenClient) doTokenRequest(ctx context.Context, form api.Parameter) (TokenResponse, error) {
	// Confidential clients also present their secret.
	if c.cfg.ClientSecret != "" {
		form["client_secret"] = c.cfg.ClientSecret
	}

	metadata, err := c.discoverer.Discover(ctx)
	if err != nil {
		return TokenResponse{}, err
	}

	resp, err := api.NewGenerator(metadata.TokenEndpoint).
		New("").
		Header("Accept", "application/json").
		Body(form).
		POST(ctx)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	body, _ := resp.Body.(api.JSON)

	switch {
	case resp.Code >= 200 && resp.Code < 300:
		var token TokenResponse
		if err := decodeWeakly(map[string]any(body), &token); err != nil {
			return TokenResponse{}, fmt.Errorf("%w: invalid token response: %v", ErrProviderMisconfigured, err)
		}
		if token.AccessToken == "" {
			return TokenResponse{}, fmt.Errorf("%w: token response without access token", ErrProviderMisconfigured)
		}
		return token, nil

	case resp.Code == 429:
		return TokenResponse{}, RateLimitedError{
			RetryAfter: time.Duration(resp.RetryAfter()) * time.Second,
		}

	case resp.Code >= 500:
		return TokenResponse{}, fmt.Errorf("%w: token endpoint answered %d", ErrProviderUnavailable, resp.Code)

	default:
		errCode, _ := body.GetString("error")
		if errCode == "invalid_grant" {
			return TokenResponse{}, ErrInvalidGrant
		}

		description, _ := body.GetString("error_description")
		return TokenResponse{}, EndpointError{
			StatusCode:  resp.Code,
			Code:        errCode,
			Description: description,
		}
	}
}

func decodeWeakly(in map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}

	return decoder.Decode(in)
}
