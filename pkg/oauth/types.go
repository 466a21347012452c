package oauth

import (
	"errors"
	"fmt"
	"time"
)

// ErrProviderUnavailable tags discovery or token-endpoint failures caused by
// the network or a 5xx answer. Safe to retry.
var ErrProviderUnavailable = errors.New("provider unavailable")

// ErrProviderMisconfigured tags schema defects in discovered metadata, such
// as missing endpoints or no S256 support. Retrying cannot help.
var ErrProviderMisconfigured = errors.New("provider metadata misconfigured")

// ErrInvalidGrant tags an authoritative invalid_grant answer from the token
// endpoint: the grant was revoked or expired and the user must re-authorize.
var ErrInvalidGrant = errors.New("grant is no longer valid")

// RateLimitedError is returned for a 429 token-endpoint answer, carrying the
// provider-declared delay when present.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e RateLimitedError) Error() string {
	return fmt.Sprintf("token endpoint rate limited, retry after %s", e.RetryAfter)
}

// EndpointError is a non-2xx token-endpoint answer that is neither
// invalid_grant nor rate limiting. It is not retried.
type EndpointError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e EndpointError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("token endpoint answered %d: %s (%s)", e.StatusCode, e.Description, e.Code)
	}
	return fmt.Sprintf("token endpoint answered %d: %s", e.StatusCode, e.Code)
}

// Metadata is the subset of authorization-server metadata this backend needs.
type Metadata struct {
	Issuer                        string   `mapstructure:"issuer"`
	AuthorizationEndpoint         string   `mapstructure:"authorization_endpoint"`
	TokenEndpoint                 string   `mapstructure:"token_endpoint"`
	CodeChallengeMethodsSupported []string `mapstructure:"code_challenge_methods_supported"`
}

// SupportsS256 reports whether the server accepts the S256 challenge method.
// An absent list means the server did not declare its methods, which the
// spec treats as acceptance.
func (m Metadata) SupportsS256() bool {
	if len(m.CodeChallengeMethodsSupported) == 0 {
		return true
	}

	for _, method := range m.CodeChallengeMethodsSupported {
		if method == "S256" {
			return true
		}
	}

	return false
}

// TokenResponse is a successful token-endpoint answer. Workspace fields are
// provider extensions identifying the workspace the user granted access to.
type TokenResponse struct {
	AccessToken   string `mapstructure:"access_token" json:"access_token"`
	RefreshToken  string `mapstructure:"refresh_token" json:"refresh_token"`
	TokenType     string `mapstructure:"token_type" json:"token_type"`
	ExpiresIn     int    `mapstructure:"expires_in" json:"expires_in"`
	Scope         string `mapstructure:"scope" json:"scope"`
	WorkspaceID   string `mapstructure:"workspace_id" json:"workspace_id"`
	WorkspaceName string `mapstructure:"workspace_name" json:"workspace_name"`
}
