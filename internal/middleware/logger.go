package middleware

import (
	"context"
	"errors"

	"github.com/relaydesk/backend/pkg/errorx"
	"github.com/relaydesk/backend/pkg/router"
	"github.com/relaydesk/backend/pkg/xcontext"
)

// Logger writes one line per finished request with its outcome code.
func Logger() router.CloserFunc {
	return func(ctx context.Context, err error) {
		req := xcontext.HTTPRequest(ctx)
		if req == nil {
			return
		}

		info := req.Method + " | " + req.URL.Path
		if err == nil {
			xcontext.Logger(ctx).Infof(info)
			return
		}

		var errx errorx.Error
		if errors.As(err, &errx) {
			xcontext.Logger(ctx).Warnf("%s | %s", info, errx.Code)
		} else {
			xcontext.Logger(ctx).Errorf("%s | %v", info, err)
		}
	}
}
