package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/relaydesk/backend/internal/entity"
	"github.com/relaydesk/backend/internal/model"
	"github.com/relaydesk/backend/internal/repository"
	"github.com/relaydesk/backend/internal/vault"
	"github.com/relaydesk/backend/pkg/crypto"
	"github.com/relaydesk/backend/pkg/errorx"
	"github.com/relaydesk/backend/pkg/oauth"
	"github.com/relaydesk/backend/pkg/xcontext"
	"gorm.io/gorm"
)

// AuthorizationFlow is the slice of the token client the connect domain
// uses.
type AuthorizationFlow interface {
	AuthorizationURL(ctx context.Context, state, challenge string) (string, error)
	Exchange(ctx context.Context, code, verifier string) (oauth.TokenResponse, error)
}

type ConnectDomain interface {
	BeginAuthorization(ctx context.Context, req *model.BeginAuthorizationRequest) (*model.BeginAuthorizationResponse, error)
	CompleteAuthorization(ctx context.Context, req *model.CompleteAuthorizationRequest) (*model.CompleteAuthorizationResponse, error)
	GetStatus(ctx context.Context, req *model.GetStatusRequest) (*model.GetStatusResponse, error)
	Disconnect(ctx context.Context, req *model.DisconnectRequest) (*model.DisconnectResponse, error)
}

type connectDomain struct {
	oauthStateRepo repository.OAuthStateRepository
	connectionRepo repository.ConnectionRepository
	codec          *crypto.SecretCodec
	flow           AuthorizationFlow
	tokenVault     vault.TokenVault
}

func NewConnectDomain(
	oauthStateRepo repository.OAuthStateRepository,
	connectionRepo repository.ConnectionRepository,
	codec *crypto.SecretCodec,
	flow AuthorizationFlow,
	tokenVault vault.TokenVault,
) *connectDomain {
	return &connectDomain{
		oauthStateRepo: oauthStateRepo,
		connectionRepo: connectionRepo,
		codec:          codec,
		flow:           flow,
		tokenVault:     tokenVault,
	}
}

// BeginAuthorization opens a new authorization attempt: a fresh state, a
// fresh PKCE pair, and the provider URL the client must redirect to. The
// verifier is stored encrypted and never leaves the backend.
func (d *connectDomain) BeginAuthorization(
	ctx context.Context, req *model.BeginAuthorizationRequest,
) (*model.BeginAuthorizationResponse, error) {
	userID := xcontext.RequestUserID(ctx)
	if userID == "" {
		return nil, errorx.New(errorx.Unauthenticated, "User is not authenticated")
	}

	pkce, err := crypto.GeneratePKCE()
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot generate pkce pair: %v", err)
		return nil, errorx.Unknown
	}

	state, err := crypto.GenerateRandomString()
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot generate state: %v", err)
		return nil, errorx.Unknown
	}

	encryptedVerifier, verifierIV, err := d.codec.Encrypt(pkce.Verifier)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot encrypt pkce verifier: %v", err)
		return nil, errorx.Unknown
	}

	authorizationURL, err := d.flow.AuthorizationURL(ctx, state, pkce.Challenge)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot build authorization url: %v", err)
		return nil, mapOAuthError(err)
	}

	stateExpiration := xcontext.Configs(ctx).Pagehub.StateExpiration
	err = d.oauthStateRepo.Create(ctx, &entity.OAuthState{
		Base:                  entity.Base{ID: uuid.NewString()},
		StateValue:            state,
		UserID:                userID,
		EncryptedPKCEVerifier: encryptedVerifier,
		PKCEVerifierIV:        verifierIV,
		ExpiresAt:             time.Now().Add(stateExpiration),
	})
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot create oauth state: %v", err)
		return nil, errorx.Unknown
	}

	return &model.BeginAuthorizationResponse{
		AuthorizationURL: authorizationURL,
		State:            state,
	}, nil
}

// CompleteAuthorization validates the provider callback, proves code
// possession with the stored verifier, and persists the issued tokens.
func (d *connectDomain) CompleteAuthorization(
	ctx context.Context, req *model.CompleteAuthorizationRequest,
) (*model.CompleteAuthorizationResponse, error) {
	userID := xcontext.RequestUserID(ctx)
	if userID == "" {
		return nil, errorx.New(errorx.Unauthenticated, "User is not authenticated")
	}

	if req.Error != "" {
		// The user declined or the provider failed. The state is dead
		// either way.
		if req.State != "" {
			if err := d.oauthStateRepo.Delete(ctx, req.State); err != nil {
				xcontext.Logger(ctx).Warnf("Cannot delete declined state: %v", err)
			}
		}

		return nil, errorx.New(errorx.BadRequest,
			"Authorization was not granted: %s", req.Error)
	}

	if req.State == "" || req.Code == "" {
		return nil, errorx.New(errorx.BadRequest, "Callback misses state or code")
	}

	state, err := d.oauthStateRepo.GetByStateValue(ctx, req.State)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.BadRequest, "Unknown authorization state")
		}

		xcontext.Logger(ctx).Errorf("Cannot load oauth state: %v", err)
		return nil, errorx.Unknown
	}

	if state.UserID != userID {
		// Do not reveal that the state exists for someone else.
		return nil, errorx.New(errorx.BadRequest, "Unknown authorization state")
	}

	if time.Now().After(state.ExpiresAt) {
		if err := d.oauthStateRepo.Delete(ctx, req.State); err != nil {
			xcontext.Logger(ctx).Warnf("Cannot delete expired state: %v", err)
		}

		return nil, errorx.New(errorx.BadRequest, "Authorization attempt expired, restart the flow")
	}

	if state.Consumed {
		return nil, errorx.New(errorx.BadRequest, "Authorization state was already used")
	}

	// The guarded update closes the race between two callbacks carrying
	// the same state.
	if err := d.oauthStateRepo.Consume(ctx, req.State); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.BadRequest, "Authorization state was already used")
		}

		xcontext.Logger(ctx).Errorf("Cannot consume oauth state: %v", err)
		return nil, errorx.Unknown
	}

	verifier, err := d.codec.Decrypt(state.EncryptedPKCEVerifier, state.PKCEVerifierIV)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot decrypt pkce verifier: %v", err)
		return nil, errorx.Unknown
	}

	token, err := d.flow.Exchange(ctx, req.Code, verifier)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot exchange authorization code: %v", err)
		return nil, mapOAuthError(err)
	}

	if err := d.tokenVault.Store(ctx, userID, token); err != nil {
		return nil, err
	}

	if err := d.oauthStateRepo.DeleteConsumedByUserID(ctx, userID); err != nil {
		xcontext.Logger(ctx).Warnf("Cannot clean up consumed states: %v", err)
	}

	return &model.CompleteAuthorizationResponse{
		WorkspaceID:   token.WorkspaceID,
		WorkspaceName: token.WorkspaceName,
	}, nil
}

func (d *connectDomain) GetStatus(
	ctx context.Context, req *model.GetStatusRequest,
) (*model.GetStatusResponse, error) {
	userID := xcontext.RequestUserID(ctx)
	if userID == "" {
		return nil, errorx.New(errorx.Unauthenticated, "User is not authenticated")
	}

	connection, err := d.connectionRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.GetStatusResponse{Connected: false}, nil
		}

		xcontext.Logger(ctx).Errorf("Cannot load connection: %v", err)
		return nil, errorx.Unknown
	}

	resp := &model.GetStatusResponse{
		Connected:     connection.Status == entity.ConnectionActive && connection.HasTokens(),
		Status:        string(connection.Status),
		WorkspaceID:   connection.WorkspaceID,
		WorkspaceName: connection.WorkspaceName,
		Scope:         connection.Scope,
		RefreshCount:  connection.RefreshCount,
	}

	if resp.Connected {
		resp.ConnectedAt = connection.CreatedAt.Format(time.RFC3339)
		resp.ExpiresAt = connection.ExpiresAt.Format(time.RFC3339)
	}

	if connection.LastUsedAt.Valid {
		resp.LastUsedAt = connection.LastUsedAt.Time.Format(time.RFC3339)
	}

	return resp, nil
}

func (d *connectDomain) Disconnect(
	ctx context.Context, req *model.DisconnectRequest,
) (*model.DisconnectResponse, error) {
	userID := xcontext.RequestUserID(ctx)
	if userID == "" {
		return nil, errorx.New(errorx.Unauthenticated, "User is not authenticated")
	}

	if err := d.tokenVault.Disconnect(ctx, userID); err != nil {
		return nil, err
	}

	return &model.DisconnectResponse{}, nil
}

// mapOAuthError translates tagged token endpoint errors into response
// codes.
func mapOAuthError(err error) error {
	var rateLimited oauth.RateLimitedError
	var endpointErr oauth.EndpointError

	switch {
	case errors.Is(err, oauth.ErrInvalidGrant):
		return errorx.New(errorx.BadRequest, "Authorization code was rejected, restart the flow")
	case errors.As(err, &rateLimited):
		return errorx.New(errorx.RateLimited, "Provider is rate limiting requests")
	case errors.Is(err, oauth.ErrProviderUnavailable):
		return errorx.New(errorx.ProviderUnavailable, "Provider is unavailable")
	case errors.As(err, &endpointErr):
		return errorx.New(errorx.BadRequest, "Provider rejected the request: %s", endpointErr.Code)
	case errors.Is(err, oauth.ErrProviderMisconfigured):
		return errorx.Unknown
	default:
		return errorx.Unknown
	}
}
