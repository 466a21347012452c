package domain

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relaydesk/backend/internal/entity"
	"github.com/relaydesk/backend/internal/model"
	"github.com/relaydesk/backend/internal/repository"
	"github.com/relaydesk/backend/internal/vault"
	"github.com/relaydesk/backend/pkg/api/pagehub"
	"github.com/relaydesk/backend/pkg/errorx"
	"github.com/relaydesk/backend/pkg/oauth"
	"github.com/relaydesk/backend/pkg/testutil"
	"github.com/relaydesk/backend/pkg/xcontext"
	"github.com/stretchr/testify/require"
)

func newTestOperationDomain(
	ctx context.Context,
	endpoint *testutil.MockPagehubEndpoint,
	refresher *testutil.MockTokenRefresher,
) OperationDomain {
	tokenVault := vault.NewTokenVault(
		xcontext.Configs(ctx).Vault,
		testutil.Codec(ctx),
		testutil.NewInMemoryRedis(),
		repository.NewConnectionRepository(),
		refresher,
	)

	return NewOperationDomain(tokenVault, endpoint)
}

func TestOperationDomain_Run(t *testing.T) {
	ctx := testutil.MockContext()

	endpoint := &testutil.MockPagehubEndpoint{
		SearchPagesFunc: func(ctx context.Context, token, query string) ([]pagehub.Page, error) {
			require.Equal(t, "access", token)
			require.Equal(t, "roadmap", query)
			return []pagehub.Page{{ID: "p1", Title: "Roadmap"}}, nil
		},
	}
	operationDomain := newTestOperationDomain(ctx, endpoint, &testutil.MockTokenRefresher{})

	connection, err := testutil.SampleConnection(ctx, testutil.Codec(ctx), "access", "refresh", nil)
	require.NoError(t, err)
	userCtx := xcontext.WithRequestUserID(ctx, connection.UserID)

	resp, err := operationDomain.Run(userCtx, &model.RunOperationRequest{
		Operation: "search_pages",
		Arguments: map[string]any{"query": "roadmap"},
	})
	require.NoError(t, err)
	require.Equal(t, "search_pages", resp.Operation)

	pages, ok := resp.Result.([]pagehub.Page)
	require.True(t, ok)
	require.Len(t, pages, 1)
	require.Equal(t, "Roadmap", pages[0].Title)

	// Usage is recorded off the request path, so shortly after.
	require.Eventually(t, func() bool {
		updated, err := repository.NewConnectionRepository().GetByUserID(ctx, connection.UserID)
		return err == nil && updated.LastUsedAt.Valid
	}, time.Second, 10*time.Millisecond)
}

func TestOperationDomain_Aliases(t *testing.T) {
	ctx := testutil.MockContext()

	var searchCalls, memberCalls int64
	endpoint := &testutil.MockPagehubEndpoint{
		SearchPagesFunc: func(ctx context.Context, token, query string) ([]pagehub.Page, error) {
			atomic.AddInt64(&searchCalls, 1)
			return nil, nil
		},
		ListMembersFunc: func(ctx context.Context, token string) ([]pagehub.Member, error) {
			atomic.AddInt64(&memberCalls, 1)
			return nil, nil
		},
	}
	operationDomain := newTestOperationDomain(ctx, endpoint, &testutil.MockTokenRefresher{})

	connection, err := testutil.SampleConnection(ctx, testutil.Codec(ctx), "access", "refresh", nil)
	require.NoError(t, err)
	userCtx := xcontext.WithRequestUserID(ctx, connection.UserID)

	for _, alias := range []string{"search", "list_pages"} {
		resp, err := operationDomain.Run(userCtx, &model.RunOperationRequest{Operation: alias})
		require.NoError(t, err)
		require.Equal(t, "search_pages", resp.Operation)
	}

	resp, err := operationDomain.Run(userCtx, &model.RunOperationRequest{Operation: "list_users"})
	require.NoError(t, err)
	require.Equal(t, "list_members", resp.Operation)

	require.EqualValues(t, 2, searchCalls)
	require.EqualValues(t, 1, memberCalls)
}

func TestOperationDomain_RetriesRejectedTokenOnce(t *testing.T) {
	ctx := testutil.MockContext()

	var endpointCalls, refreshCalls int64
	endpoint := &testutil.MockPagehubEndpoint{
		GetPageFunc: func(ctx context.Context, token, pageID string) (pagehub.Page, error) {
			if atomic.AddInt64(&endpointCalls, 1) == 1 {
				require.Equal(t, "stale-access", token)
				return pagehub.Page{}, pagehub.ErrUnauthenticated
			}

			require.Equal(t, "fresh-access", token)
			return pagehub.Page{ID: pageID}, nil
		},
	}
	refresher := &testutil.MockTokenRefresher{
		RefreshFunc: func(ctx context.Context, refreshToken string) (oauth.TokenResponse, error) {
			atomic.AddInt64(&refreshCalls, 1)
			return oauth.TokenResponse{AccessToken: "fresh-access", ExpiresIn: 3600}, nil
		},
	}
	operationDomain := newTestOperationDomain(ctx, endpoint, refresher)

	connection, err := testutil.SampleConnection(ctx, testutil.Codec(ctx),
		"stale-access", "refresh", nil)
	require.NoError(t, err)
	userCtx := xcontext.WithRequestUserID(ctx, connection.UserID)

	resp, err := operationDomain.Run(userCtx, &model.RunOperationRequest{
		Operation: "get_page",
		Arguments: map[string]any{"page_id": "p1"},
	})
	require.NoError(t, err)

	page, ok := resp.Result.(pagehub.Page)
	require.True(t, ok)
	require.Equal(t, "p1", page.ID)
	require.EqualValues(t, 2, atomic.LoadInt64(&endpointCalls))
	require.EqualValues(t, 1, atomic.LoadInt64(&refreshCalls))
}

func TestOperationDomain_RetryIsBounded(t *testing.T) {
	ctx := testutil.MockContext()

	var endpointCalls int64
	endpoint := &testutil.MockPagehubEndpoint{
		ListMembersFunc: func(ctx context.Context, token string) ([]pagehub.Member, error) {
			atomic.AddInt64(&endpointCalls, 1)
			return nil, pagehub.ErrUnauthenticated
		},
	}
	refresher := &testutil.MockTokenRefresher{
		RefreshFunc: func(ctx context.Context, refreshToken string) (oauth.TokenResponse, error) {
			return oauth.TokenResponse{AccessToken: "fresh-access", ExpiresIn: 3600}, nil
		},
	}
	operationDomain := newTestOperationDomain(ctx, endpoint, refresher)

	connection, err := testutil.SampleConnection(ctx, testutil.Codec(ctx),
		"stale-access", "refresh", nil)
	require.NoError(t, err)
	userCtx := xcontext.WithRequestUserID(ctx, connection.UserID)

	_, err = operationDomain.Run(userCtx, &model.RunOperationRequest{Operation: "list_members"})
	requireErrorCode(t, err, errorx.ReconnectionRequired)
	require.EqualValues(t, 2, atomic.LoadInt64(&endpointCalls))
}

func TestOperationDomain_ErrorMapping(t *testing.T) {
	ctx := testutil.MockContext()

	testcases := []struct {
		name         string
		endpointErr  error
		expectedCode errorx.Code
		retryable    bool
	}{
		{
			name:         "not found",
			endpointErr:  pagehub.ErrNotFound,
			expectedCode: errorx.NotFound,
		},
		{
			name:         "rate limited",
			endpointErr:  pagehub.RateLimitedError{RetryAfter: time.Second},
			expectedCode: errorx.RateLimited,
			retryable:    true,
		},
		{
			name:         "unavailable",
			endpointErr:  pagehub.ErrUnavailable,
			expectedCode: errorx.ProviderUnavailable,
			retryable:    true,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			endpoint := &testutil.MockPagehubEndpoint{
				GetMemberFunc: func(ctx context.Context, token, memberID string) (pagehub.Member, error) {
					return pagehub.Member{}, tc.endpointErr
				},
			}
			operationDomain := newTestOperationDomain(ctx, endpoint, &testutil.MockTokenRefresher{})

			connection, err := testutil.SampleConnection(ctx, testutil.Codec(ctx),
				"access", "refresh", nil)
			require.NoError(t, err)
			userCtx := xcontext.WithRequestUserID(ctx, connection.UserID)

			_, err = operationDomain.Run(userCtx, &model.RunOperationRequest{
				Operation: "get_member",
				Arguments: map[string]any{"member_id": "m1"},
			})
			requireErrorCode(t, err, tc.expectedCode)

			var errx errorx.Error
			require.ErrorAs(t, err, &errx)
			require.Equal(t, tc.retryable, errx.Retryable())
		})
	}
}

func TestOperationDomain_BadRequests(t *testing.T) {
	ctx := testutil.MockContext()
	operationDomain := newTestOperationDomain(
		ctx, &testutil.MockPagehubEndpoint{}, &testutil.MockTokenRefresher{})

	connection, err := testutil.SampleConnection(ctx, testutil.Codec(ctx), "access", "refresh", nil)
	require.NoError(t, err)
	userCtx := xcontext.WithRequestUserID(ctx, connection.UserID)

	_, err = operationDomain.Run(userCtx, &model.RunOperationRequest{Operation: "get_page"})
	requireErrorCode(t, err, errorx.BadRequest)

	_, err = operationDomain.Run(userCtx, &model.RunOperationRequest{Operation: "drop_tables"})
	requireErrorCode(t, err, errorx.BadRequest)
}

func TestOperationDomain_RequiresAuthentication(t *testing.T) {
	ctx := testutil.MockContext()
	operationDomain := newTestOperationDomain(
		ctx, &testutil.MockPagehubEndpoint{}, &testutil.MockTokenRefresher{})

	_, err := operationDomain.Run(ctx, &model.RunOperationRequest{Operation: "search_pages"})
	requireErrorCode(t, err, errorx.Unauthenticated)
}

func TestOperationDomain_NoConnection(t *testing.T) {
	ctx := testutil.MockContext()
	operationDomain := newTestOperationDomain(
		ctx, &testutil.MockPagehubEndpoint{}, &testutil.MockTokenRefresher{})

	user, err := testutil.SampleUser(ctx, &entity.User{})
	require.NoError(t, err)

	_, err = operationDomain.Run(
		xcontext.WithRequestUserID(ctx, user.ID),
		&model.RunOperationRequest{Operation: "search_pages"})
	requireErrorCode(t, err, errorx.ReconnectionRequired)
}
