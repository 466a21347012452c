package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/relaydesk/backend/pkg/errorx"
	"github.com/relaydesk/backend/pkg/xcontext"
)

type response struct {
	Code      errorx.Code `json:"code,omitempty"`
	Error     string      `json:"error,omitempty"`
	Retryable bool        `json:"retryable"`
	Data      any         `json:"data,omitempty"`
}

func writeResponse(ctx context.Context, w http.ResponseWriter, data any) {
	writeJSON(ctx, w, http.StatusOK, response{Data: data})
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var errx errorx.Error
	if !errors.As(err, &errx) {
		errx = errorx.Unknown
	}

	writeJSON(ctx, w, statusOf(errx.Code), response{
		Code:      errx.Code,
		Error:     errx.Message,
		Retryable: errx.Retryable(),
	})
}

func statusOf(code errorx.Code) int {
	switch code {
	case errorx.BadRequest:
		return http.StatusBadRequest
	case errorx.NotFound:
		return http.StatusNotFound
	case errorx.Unauthenticated, errorx.ReconnectionRequired:
		return http.StatusUnauthorized
	case errorx.RateLimited:
		return http.StatusTooManyRequests
	case errorx.ProviderUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot write the response: %v", err)
	}
}
