package middleware

import (
	"context"
	"net/http"

	"github.com/relaydesk/backend/pkg/errorx"
	"github.com/relaydesk/backend/pkg/router"
	"github.com/relaydesk/backend/pkg/xcontext"
)

// CheckOrigin rejects mutating cross-origin requests. Browsers always set
// Origin on such requests; requests without the header (curl, server to
// server) pass through.
func CheckOrigin() router.MiddlewareFunc {
	return func(ctx context.Context) (context.Context, error) {
		req := xcontext.HTTPRequest(ctx)
		if req == nil || req.Method == http.MethodGet {
			return ctx, nil
		}

		origin := req.Header.Get("Origin")
		if origin == "" {
			return ctx, nil
		}

		allowed := xcontext.Configs(ctx).ApiServer.AllowedOrigin
		if allowed != "" && origin != allowed {
			return nil, errorx.New(errorx.BadRequest, "Origin is not allowed")
		}

		return ctx, nil
	}
}
