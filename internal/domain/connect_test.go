package domain

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/relaydesk/backend/internal/entity"
	"github.com/relaydesk/backend/internal/model"
	"github.com/relaydesk/backend/internal/repository"
	"github.com/relaydesk/backend/internal/vault"
	"github.com/relaydesk/backend/pkg/crypto"
	"github.com/relaydesk/backend/pkg/errorx"
	"github.com/relaydesk/backend/pkg/oauth"
	"github.com/relaydesk/backend/pkg/testutil"
	"github.com/relaydesk/backend/pkg/xcontext"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestConnectDomain(
	ctx context.Context, flow *testutil.MockAuthorizationFlow,
) ConnectDomain {
	connectionRepo := repository.NewConnectionRepository()
	tokenVault := vault.NewTokenVault(
		xcontext.Configs(ctx).Vault,
		testutil.Codec(ctx),
		testutil.NewInMemoryRedis(),
		connectionRepo,
		&testutil.MockTokenRefresher{},
	)

	return NewConnectDomain(
		repository.NewOAuthStateRepository(),
		connectionRepo,
		testutil.Codec(ctx),
		flow,
		tokenVault,
	)
}

func requireErrorCode(t *testing.T, err error, code errorx.Code) {
	t.Helper()

	var errx errorx.Error
	require.ErrorAs(t, err, &errx)
	require.Equal(t, code, errx.Code)
}

func TestConnectDomain_BeginAuthorization(t *testing.T) {
	ctx := testutil.MockContext()

	var gotState, gotChallenge string
	flow := &testutil.MockAuthorizationFlow{
		AuthorizationURLFunc: func(ctx context.Context, state, challenge string) (string, error) {
			gotState, gotChallenge = state, challenge
			return "https://pagehub.test/authorize?state=" + state, nil
		},
	}
	connectDomain := newTestConnectDomain(ctx, flow)

	user, err := testutil.SampleUser(ctx, nil)
	require.NoError(t, err)
	userCtx := xcontext.WithRequestUserID(ctx, user.ID)

	resp, err := connectDomain.BeginAuthorization(userCtx, &model.BeginAuthorizationRequest{})
	require.NoError(t, err)
	require.Equal(t, gotState, resp.State)
	require.Contains(t, resp.AuthorizationURL, resp.State)

	// The persisted verifier must hash to the challenge sent upstream and
	// must not be stored in plaintext.
	state, err := repository.NewOAuthStateRepository().GetByStateValue(ctx, resp.State)
	require.NoError(t, err)
	require.Equal(t, user.ID, state.UserID)
	require.False(t, state.Consumed)
	require.True(t, state.ExpiresAt.After(time.Now()))

	verifier, err := testutil.Codec(ctx).Decrypt(state.EncryptedPKCEVerifier, state.PKCEVerifierIV)
	require.NoError(t, err)
	require.Equal(t, crypto.SHA256([]byte(verifier)), gotChallenge)
	require.NotEqual(t, verifier, state.EncryptedPKCEVerifier)
}

func TestConnectDomain_BeginAuthorizationUnauthenticated(t *testing.T) {
	ctx := testutil.MockContext()
	connectDomain := newTestConnectDomain(ctx, &testutil.MockAuthorizationFlow{})

	_, err := connectDomain.BeginAuthorization(ctx, &model.BeginAuthorizationRequest{})
	requireErrorCode(t, err, errorx.Unauthenticated)
}

func TestConnectDomain_CompleteAuthorization(t *testing.T) {
	ctx := testutil.MockContext()

	var exchangedCode, exchangedVerifier string
	flow := &testutil.MockAuthorizationFlow{
		ExchangeFunc: func(ctx context.Context, code, verifier string) (oauth.TokenResponse, error) {
			exchangedCode, exchangedVerifier = code, verifier
			return oauth.TokenResponse{
				AccessToken:   "access-token",
				RefreshToken:  "refresh-token",
				ExpiresIn:     3600,
				WorkspaceID:   "ws-1",
				WorkspaceName: "Docs",
			}, nil
		},
	}
	connectDomain := newTestConnectDomain(ctx, flow)

	user, err := testutil.SampleUser(ctx, nil)
	require.NoError(t, err)
	userCtx := xcontext.WithRequestUserID(ctx, user.ID)

	begin, err := connectDomain.BeginAuthorization(userCtx, &model.BeginAuthorizationRequest{})
	require.NoError(t, err)

	resp, err := connectDomain.CompleteAuthorization(userCtx, &model.CompleteAuthorizationRequest{
		State: begin.State,
		Code:  "auth-code",
	})
	require.NoError(t, err)
	require.Equal(t, "ws-1", resp.WorkspaceID)
	require.Equal(t, "Docs", resp.WorkspaceName)
	require.Equal(t, "auth-code", exchangedCode)
	require.Equal(t, 43, len(exchangedVerifier))

	connection, err := repository.NewConnectionRepository().GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, entity.ConnectionActive, connection.Status)
	require.True(t, connection.HasTokens())

	// Consumed states are cleaned up after a successful exchange.
	_, err = repository.NewOAuthStateRepository().GetByStateValue(ctx, begin.State)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestConnectDomain_CompleteAuthorizationReplay(t *testing.T) {
	ctx := testutil.MockContext()
	connectDomain := newTestConnectDomain(ctx, &testutil.MockAuthorizationFlow{})

	user, err := testutil.SampleUser(ctx, nil)
	require.NoError(t, err)
	userCtx := xcontext.WithRequestUserID(ctx, user.ID)

	begin, err := connectDomain.BeginAuthorization(userCtx, &model.BeginAuthorizationRequest{})
	require.NoError(t, err)

	_, err = connectDomain.CompleteAuthorization(userCtx, &model.CompleteAuthorizationRequest{
		State: begin.State,
		Code:  "auth-code",
	})
	require.NoError(t, err)

	_, err = connectDomain.CompleteAuthorization(userCtx, &model.CompleteAuthorizationRequest{
		State: begin.State,
		Code:  "auth-code",
	})
	requireErrorCode(t, err, errorx.BadRequest)
}

func TestConnectDomain_CompleteAuthorizationExpiredState(t *testing.T) {
	ctx := testutil.MockContext()
	connectDomain := newTestConnectDomain(ctx, &testutil.MockAuthorizationFlow{})

	user, err := testutil.SampleUser(ctx, nil)
	require.NoError(t, err)
	userCtx := xcontext.WithRequestUserID(ctx, user.ID)

	encryptedVerifier, verifierIV, err := testutil.Codec(ctx).Encrypt("verifier")
	require.NoError(t, err)

	stateRepo := repository.NewOAuthStateRepository()
	err = stateRepo.Create(ctx, &entity.OAuthState{
		Base:                  entity.Base{ID: uuid.NewString()},
		StateValue:            "expired-state",
		UserID:                user.ID,
		EncryptedPKCEVerifier: encryptedVerifier,
		PKCEVerifierIV:        verifierIV,
		ExpiresAt:             time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	_, err = connectDomain.CompleteAuthorization(userCtx, &model.CompleteAuthorizationRequest{
		State: "expired-state",
		Code:  "auth-code",
	})
	requireErrorCode(t, err, errorx.BadRequest)

	// The dead state is removed so it cannot be probed again.
	_, err = stateRepo.GetByStateValue(ctx, "expired-state")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestConnectDomain_CompleteAuthorizationWrongUser(t *testing.T) {
	ctx := testutil.MockContext()
	connectDomain := newTestConnectDomain(ctx, &testutil.MockAuthorizationFlow{})

	owner, err := testutil.SampleUser(ctx, nil)
	require.NoError(t, err)
	intruder, err := testutil.SampleUser(ctx, nil)
	require.NoError(t, err)

	begin, err := connectDomain.BeginAuthorization(
		xcontext.WithRequestUserID(ctx, owner.ID), &model.BeginAuthorizationRequest{})
	require.NoError(t, err)

	_, err = connectDomain.CompleteAuthorization(
		xcontext.WithRequestUserID(ctx, intruder.ID),
		&model.CompleteAuthorizationRequest{State: begin.State, Code: "auth-code"})
	requireErrorCode(t, err, errorx.BadRequest)
}

func TestConnectDomain_CompleteAuthorizationProviderDenied(t *testing.T) {
	ctx := testutil.MockContext()
	connectDomain := newTestConnectDomain(ctx, &testutil.MockAuthorizationFlow{})

	user, err := testutil.SampleUser(ctx, nil)
	require.NoError(t, err)
	userCtx := xcontext.WithRequestUserID(ctx, user.ID)

	begin, err := connectDomain.BeginAuthorization(userCtx, &model.BeginAuthorizationRequest{})
	require.NoError(t, err)

	_, err = connectDomain.CompleteAuthorization(userCtx, &model.CompleteAuthorizationRequest{
		State: begin.State,
		Error: "access_denied",
	})
	requireErrorCode(t, err, errorx.BadRequest)

	// A declined state cannot be replayed with a forged code later.
	_, err = repository.NewOAuthStateRepository().GetByStateValue(ctx, begin.State)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestConnectDomain_CompleteAuthorizationRejectedCode(t *testing.T) {
	ctx := testutil.MockContext()

	flow := &testutil.MockAuthorizationFlow{
		ExchangeFunc: func(ctx context.Context, code, verifier string) (oauth.TokenResponse, error) {
			return oauth.TokenResponse{}, oauth.ErrInvalidGrant
		},
	}
	connectDomain := newTestConnectDomain(ctx, flow)

	user, err := testutil.SampleUser(ctx, nil)
	require.NoError(t, err)
	userCtx := xcontext.WithRequestUserID(ctx, user.ID)

	begin, err := connectDomain.BeginAuthorization(userCtx, &model.BeginAuthorizationRequest{})
	require.NoError(t, err)

	_, err = connectDomain.CompleteAuthorization(userCtx, &model.CompleteAuthorizationRequest{
		State: begin.State,
		Code:  "stolen-code",
	})
	requireErrorCode(t, err, errorx.BadRequest)
}

func TestConnectDomain_GetStatus(t *testing.T) {
	ctx := testutil.MockContext()
	connectDomain := newTestConnectDomain(ctx, &testutil.MockAuthorizationFlow{})

	user, err := testutil.SampleUser(ctx, nil)
	require.NoError(t, err)
	userCtx := xcontext.WithRequestUserID(ctx, user.ID)

	resp, err := connectDomain.GetStatus(userCtx, &model.GetStatusRequest{})
	require.NoError(t, err)
	require.False(t, resp.Connected)

	begin, err := connectDomain.BeginAuthorization(userCtx, &model.BeginAuthorizationRequest{})
	require.NoError(t, err)
	_, err = connectDomain.CompleteAuthorization(userCtx, &model.CompleteAuthorizationRequest{
		State: begin.State,
		Code:  "auth-code",
	})
	require.NoError(t, err)

	resp, err = connectDomain.GetStatus(userCtx, &model.GetStatusRequest{})
	require.NoError(t, err)
	require.True(t, resp.Connected)
	require.Equal(t, string(entity.ConnectionActive), resp.Status)
	require.NotEmpty(t, resp.ExpiresAt)
	require.NotEmpty(t, resp.ConnectedAt)

	connectedAt, err := time.Parse(time.RFC3339, resp.ConnectedAt)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), connectedAt, time.Minute)
}

func TestConnectDomain_Disconnect(t *testing.T) {
	ctx := testutil.MockContext()
	connectDomain := newTestConnectDomain(ctx, &testutil.MockAuthorizationFlow{})

	user, err := testutil.SampleUser(ctx, nil)
	require.NoError(t, err)
	userCtx := xcontext.WithRequestUserID(ctx, user.ID)

	begin, err := connectDomain.BeginAuthorization(userCtx, &model.BeginAuthorizationRequest{})
	require.NoError(t, err)
	_, err = connectDomain.CompleteAuthorization(userCtx, &model.CompleteAuthorizationRequest{
		State: begin.State,
		Code:  "auth-code",
	})
	require.NoError(t, err)

	_, err = connectDomain.Disconnect(userCtx, &model.DisconnectRequest{})
	require.NoError(t, err)

	resp, err := connectDomain.GetStatus(userCtx, &model.GetStatusRequest{})
	require.NoError(t, err)
	require.False(t, resp.Connected)
	require.Equal(t, string(entity.ConnectionDisconnected), resp.Status)

	// Disconnecting again is a no-op.
	_, err = connectDomain.Disconnect(userCtx, &model.DisconnectRequest{})
	require.NoError(t, err)
}
