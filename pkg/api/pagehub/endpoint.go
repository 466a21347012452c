package pagehub

import (
	"context"
	"fmt"
	"time"

	"github.com/relaydesk/backend/config"
	"github.com/relaydesk/backend/pkg/api"
	"github.com/relaydesk/backend/pkg/xcontext"
)

// apiVersion pins the provider API revision this client understands.
const apiVersion = "2024-05"

type Endpoint struct {
	apiGenerator api.Generator
}

func New(cfg config.PagehubConfigs) *Endpoint {
	return &Endpoint{
		apiGenerator: api.NewGenerator(cfg.APIEndpoint),
	}
}

func (e *Endpoint) SearchPages(ctx context.Context, token, query string) ([]Page, error) {
	body, err := e.search(ctx, token, query, "page")
	if err != nil {
		return nil, err
	}

	pages, _, err := partitionResults(body)
	return pages, err
}

func (e *Endpoint) SearchCollections(ctx context.Context, token, query string) ([]Collection, error) {
	body, err := e.search(ctx, token, query, "collection")
	if err != nil {
		return nil, err
	}

	_, collections, err := partitionResults(body)
	return collections, err
}

func (e *Endpoint) search(ctx context.Context, token, query, kind string) (api.JSON, error) {
	payload := api.JSON{"query": query}
	if kind != "" {
		payload["filter"] = map[string]any{"property": "object", "value": kind}
	}

	resp, err := e.apiGenerator.New("/v1/search").
		Header("Authorization", "Bearer "+token).
		Header("Pagehub-Version", apiVersion).
		Body(payload).
		POST(ctx)

	return e.checkResponse(ctx, resp, err)
}

func (e *Endpoint) GetPage(ctx context.Context, token, pageID string) (Page, error) {
	resp, err := e.apiGenerator.New("/v1/pages/%s", pageID).
		Header("Authorization", "Bearer "+token).
		Header("Pagehub-Version", apiVersion).
		GET(ctx)

	body, err := e.checkResponse(ctx, resp, err)
	if err != nil {
		return Page{}, err
	}

	return parsePage(body), nil
}

func (e *Endpoint) GetCollection(ctx context.Context, token, collectionID string) (Collection, error) {
	resp, err := e.apiGenerator.New("/v1/collections/%s", collectionID).
		Header("Authorization", "Bearer "+token).
		Header("Pagehub-Version", apiVersion).
		GET(ctx)

	body, err := e.checkResponse(ctx, resp, err)
	if err != nil {
		return Collection{}, err
	}

	return parseCollection(body), nil
}

func (e *Endpoint) QueryCollection(
	ctx context.Context, token, collectionID string, filter map[string]any,
) ([]Page, error) {
	payload := api.JSON{}
	if filter != nil {
		payload["filter"] = filter
	}

	resp, err := e.apiGenerator.New("/v1/collections/%s/query", collectionID).
		Header("Authorization", "Bearer "+token).
		Header("Pagehub-Version", apiVersion).
		Body(payload).
		POST(ctx)

	body, err := e.checkResponse(ctx, resp, err)
	if err != nil {
		return nil, err
	}

	pages, _, err := partitionResults(body)
	return pages, err
}

func (e *Endpoint) ListMembers(ctx context.Context, token string) ([]Member, error) {
	resp, err := e.apiGenerator.New("/v1/members").
		Header("Authorization", "Bearer "+token).
		Header("Pagehub-Version", apiVersion).
		GET(ctx)

	body, err := e.checkResponse(ctx, resp, err)
	if err != nil {
		return nil, err
	}

	results, err := body.GetArray("results")
	if err != nil {
		return nil, fmt.Errorf("invalid members response: %w", err)
	}

	members := []Member{}
	for _, result := range results {
		if m, ok := result.(map[string]any); ok {
			members = append(members, parseMember(api.JSON(m)))
		}
	}

	return members, nil
}

func (e *Endpoint) GetMember(ctx context.Context, token, memberID string) (Member, error) {
	resp, err := e.apiGenerator.New("/v1/members/%s", memberID).
		Header("Authorization", "Bearer "+token).
		Header("Pagehub-Version", apiVersion).
		GET(ctx)

	body, err := e.checkResponse(ctx, resp, err)
	if err != nil {
		return Member{}, err
	}

	return parseMember(body), nil
}

// checkResponse turns transport failures and upstream status codes into the
// package's tagged errors.
func (e *Endpoint) checkResponse(ctx context.Context, resp *api.Response, err error) (api.JSON, error) {
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch {
	case resp.Code == 401:
		return nil, ErrUnauthenticated
	case resp.Code == 404:
		return nil, ErrNotFound
	case resp.Code == 429:
		return nil, RateLimitedError{RetryAfter: time.Duration(resp.RetryAfter()) * time.Second}
	case resp.Code >= 500:
		return nil, fmt.Errorf("%w: answered %d", ErrUnavailable, resp.Code)
	case resp.Code != 200:
		xcontext.Logger(ctx).Errorf("Unexpected pagehub status %d: %s", resp.Code, string(resp.RawBody))
		return nil, fmt.Errorf("unexpected pagehub status %d", resp.Code)
	}

	body, ok := resp.Body.(api.JSON)
	if !ok {
		return nil, fmt.Errorf("invalid pagehub body format")
	}

	return body, nil
}

// partitionResults splits a heterogeneous result list by object kind.
// Entries of unknown kind are dropped rather than failing the whole answer.
func partitionResults(body api.JSON) ([]Page, []Collection, error) {
	results, err := body.GetArray("results")
	if err != nil {
		return nil, nil, fmt.Errorf("invalid results response: %w", err)
	}

	pages := []Page{}
	collections := []Collection{}
	for _, result := range results {
		m, ok := result.(map[string]any)
		if !ok {
			continue
		}

		obj := api.JSON(m)
		kind, _ := obj.GetString("object")
		switch kind {
		case "page":
			pages = append(pages, parsePage(obj))
		case "collection":
			collections = append(collections, parseCollection(obj))
		}
	}

	return pages, collections, nil
}
