package middleware

import (
	"context"
	"strings"

	"github.com/relaydesk/backend/internal/model"
	"github.com/relaydesk/backend/pkg/errorx"
	"github.com/relaydesk/backend/pkg/router"
	"github.com/relaydesk/backend/pkg/xcontext"
)

// Authenticate resolves the session token into a request user. Requests
// without a valid token are rejected before reaching any handler.
func Authenticate() router.MiddlewareFunc {
	return func(ctx context.Context) (context.Context, error) {
		token := extractToken(ctx)
		if token == "" {
			return nil, errorx.New(errorx.Unauthenticated, "You need to authenticate before")
		}

		var accessToken model.AccessToken
		if err := xcontext.TokenEngine(ctx).Verify(token, &accessToken); err != nil {
			xcontext.Logger(ctx).Debugf("Cannot verify access token: %v", err)
			return nil, errorx.New(errorx.Unauthenticated, "Invalid access token")
		}

		return xcontext.WithRequestUserID(ctx, accessToken.ID), nil
	}
}

func extractToken(ctx context.Context) string {
	req := xcontext.HTTPRequest(ctx)
	if req == nil {
		return ""
	}

	if authorization := req.Header.Get("Authorization"); authorization != "" {
		token, ok := strings.CutPrefix(authorization, "Bearer ")
		if !ok {
			return ""
		}

		return token
	}

	cookieName := xcontext.Configs(ctx).Auth.AccessToken.Name
	cookie, err := req.Cookie(cookieName)
	if err != nil {
		return ""
	}

	return cookie.Value
}
