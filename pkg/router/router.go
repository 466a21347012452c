package router

import (
	"context"
	"net/http"
	"time"

	"github.com/relaydesk/backend/config"
	"github.com/relaydesk/backend/pkg/authenticator"
	"github.com/relaydesk/backend/pkg/logger"
	"gorm.io/gorm"
)

type HandlerFunc[Request, Response any] func(ctx context.Context, req *Request) (*Response, error)

// MiddlewareFunc runs before the handler. It may derive a new context (for
// example to attach the request user) or fail the request.
type MiddlewareFunc func(ctx context.Context) (context.Context, error)

// CloserFunc runs after the handler with the error it returned, nil on
// success.
type CloserFunc func(ctx context.Context, err error)

type Router struct {
	mux *http.ServeMux

	cfg        config.Configs
	log        logger.Logger
	db         *gorm.DB
	engine     authenticator.TokenEngine
	httpClient *http.Client

	before  []MiddlewareFunc
	closers []CloserFunc
}

func New(db *gorm.DB, cfg config.Configs, log logger.Logger) *Router {
	// Outbound provider calls made while serving a request are bounded;
	// a stalled provider must not pin connections forever.
	timeout := cfg.Pagehub.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Router{
		mux:        http.NewServeMux(),
		cfg:        cfg,
		log:        log,
		db:         db,
		engine:     authenticator.NewTokenEngine(cfg.Auth.TokenSecret),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Branch returns a router sharing the mux but with its own copy of the
// middleware chain, so sibling branches stay unaffected.
func (r *Router) Branch() *Router {
	branch := *r
	branch.before = append([]MiddlewareFunc{}, r.before...)
	branch.closers = append([]CloserFunc{}, r.closers...)
	return &branch
}

func (r *Router) Before(middleware MiddlewareFunc) {
	r.before = append(r.before, middleware)
}

func (r *Router) AddCloser(closer CloserFunc) {
	r.closers = append(r.closers, closer)
}

func GET[Request, Response any](r *Router, pattern string, handler HandlerFunc[Request, Response]) {
	r.mux.HandleFunc(pattern, wrapHandler(r, http.MethodGet, handler))
}

func POST[Request, Response any](r *Router, pattern string, handler HandlerFunc[Request, Response]) {
	r.mux.HandleFunc(pattern, wrapHandler(r, http.MethodPost, handler))
}

func (r *Router) Handler() http.Handler {
	return r.mux
}
