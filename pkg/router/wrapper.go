package router

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mitchellh/mapstructure"
	"github.com/relaydesk/backend/pkg/errorx"
	"github.com/relaydesk/backend/pkg/xcontext"
)

func wrapHandler[Request, Response any](
	router *Router,
	method string,
	handler HandlerFunc[Request, Response],
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := router.newRequestContext(r)

		if r.Method != method {
			writeError(ctx, w, errorx.New(errorx.BadRequest, "Method not allowed"))
			return
		}

		var err error
		for _, middleware := range router.before {
			ctx, err = middleware(ctx)
			if err != nil {
				writeError(ctx, w, err)
				router.close(ctx, err)
				return
			}
		}

		var req Request
		if err := bindRequest(r, method, &req); err != nil {
			err = errorx.New(errorx.BadRequest, "Cannot parse the request")
			writeError(ctx, w, err)
			router.close(ctx, err)
			return
		}

		resp, err := handler(ctx, &req)
		if err != nil {
			writeError(ctx, w, err)
		} else {
			writeResponse(ctx, w, resp)
		}

		router.close(ctx, err)
	}
}

func (r *Router) newRequestContext(req *http.Request) context.Context {
	ctx := req.Context()
	ctx = xcontext.WithConfigs(ctx, r.cfg)
	ctx = xcontext.WithLogger(ctx, r.log)
	ctx = xcontext.WithDB(ctx, r.db)
	ctx = xcontext.WithTokenEngine(ctx, r.engine)
	ctx = xcontext.WithHTTPClient(ctx, r.httpClient)
	ctx = xcontext.WithHTTPRequest(ctx, req)
	return ctx
}

func (r *Router) close(ctx context.Context, err error) {
	for _, closer := range r.closers {
		closer(ctx, err)
	}
}

func bindRequest(r *http.Request, method string, req any) error {
	if method == http.MethodGet {
		query := map[string]string{}
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				query[key] = values[0]
			}
		}

		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			TagName:          "json",
			Result:           req,
		})
		if err != nil {
			return err
		}

		return decoder.Decode(query)
	}

	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}

	return json.NewDecoder(r.Body).Decode(req)
}
