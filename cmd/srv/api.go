package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/relaydesk/backend/internal/middleware"
	"github.com/relaydesk/backend/pkg/router"

	"github.com/urfave/cli/v2"
)

func (s *srv) startApi(*cli.Context) error {
	s.loadConfig()
	s.loadLogger()
	s.loadDatabase()
	s.loadRedis()
	s.loadEndpoint()
	s.loadRepos()
	s.loadVault()
	s.loadDomains()
	s.loadRouter()

	s.server = &http.Server{
		Addr:    s.configs.ApiServer.Address(),
		Handler: s.router.Handler(),
	}

	s.logger.Infof("Starting server on port: %s", s.configs.ApiServer.Port)
	if err := s.server.ListenAndServe(); err != nil {
		panic(err)
	}

	return nil
}

func (s *srv) loadRouter() {
	s.router = router.New(s.db, *s.configs, s.logger)
	s.router.AddCloser(middleware.Logger())

	router.GET(s.router, "/", homeHandle)

	authRouter := s.router.Branch()
	authRouter.Before(middleware.CheckOrigin())
	authRouter.Before(middleware.Authenticate())
	{
		router.POST(authRouter, "/connect", s.connectDomain.BeginAuthorization)
		router.POST(authRouter, "/connect/callback", s.connectDomain.CompleteAuthorization)
		router.GET(authRouter, "/connect/status", s.connectDomain.GetStatus)
		router.POST(authRouter, "/connect/disconnect", s.connectDomain.Disconnect)
		router.POST(authRouter, "/operations/run", s.operationDomain.Run)
	}
}

type homeRequest struct{}

type homeResponse struct {
	Status string `json:"status"`
}

func homeHandle(ctx context.Context, req *homeRequest) (*homeResponse, error) {
	return &homeResponse{Status: "ok"}, nil
}

func (s *srv) startSweep(ct *cli.Context) error {
	s.loadConfig()
	s.loadLogger()
	s.loadDatabase()
	s.loadRepos()

	ctx := s.newContext()
	deleted, err := s.oauthStateRepo.DeleteExpired(ctx, ct.Duration("grace"))
	if err != nil {
		return fmt.Errorf("cannot sweep authorization states: %w", err)
	}

	s.logger.Infof("Swept %d expired authorization states", deleted)
	return nil
}
