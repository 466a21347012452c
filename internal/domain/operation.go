package domain

import (
	"context"
	"errors"

	"github.com/relaydesk/backend/internal/model"
	"github.com/relaydesk/backend/internal/vault"
	"github.com/relaydesk/backend/pkg/api/pagehub"
	"github.com/relaydesk/backend/pkg/errorx"
	"github.com/relaydesk/backend/pkg/xcontext"
)

// operationAliases maps the operation names older clients still send to
// their canonical names.
var operationAliases = map[string]string{
	"search":           "search_pages",
	"list_pages":       "search_pages",
	"list_collections": "search_collections",
	"query":            "query_collection",
	"list_users":       "list_members",
	"get_user":         "get_member",
}

type OperationDomain interface {
	Run(ctx context.Context, req *model.RunOperationRequest) (*model.RunOperationResponse, error)
}

type operationDomain struct {
	tokenVault vault.TokenVault
	endpoint   pagehub.IEndpoint
}

func NewOperationDomain(
	tokenVault vault.TokenVault, endpoint pagehub.IEndpoint,
) *operationDomain {
	return &operationDomain{tokenVault: tokenVault, endpoint: endpoint}
}

// Run executes one named operation against the provider with the caller's
// connection. A rejected token is refreshed and retried exactly once.
func (d *operationDomain) Run(
	ctx context.Context, req *model.RunOperationRequest,
) (*model.RunOperationResponse, error) {
	userID := xcontext.RequestUserID(ctx)
	if userID == "" {
		return nil, errorx.New(errorx.Unauthenticated, "User is not authenticated")
	}

	operation := req.Operation
	if canonical, ok := operationAliases[operation]; ok {
		operation = canonical
	}

	accessToken, err := d.tokenVault.ValidAccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	result, err := d.invoke(ctx, accessToken, operation, req.Arguments)
	if errors.Is(err, pagehub.ErrUnauthenticated) {
		// The provider rejected a token we considered valid. Rotate it
		// and retry once; a second rejection means the grant is gone.
		accessToken, err = d.tokenVault.ForceRefresh(ctx, userID)
		if err != nil {
			return nil, err
		}

		result, err = d.invoke(ctx, accessToken, operation, req.Arguments)
		if errors.Is(err, pagehub.ErrUnauthenticated) {
			return nil, errorx.New(errorx.ReconnectionRequired,
				"Provider no longer accepts this connection")
		}
	}

	if err != nil {
		return nil, mapProviderError(ctx, err)
	}

	d.tokenVault.TouchLastUsed(ctx, userID)

	return &model.RunOperationResponse{
		Operation: operation,
		Result:    result,
	}, nil
}

func (d *operationDomain) invoke(
	ctx context.Context, token, operation string, args map[string]any,
) (any, error) {
	switch operation {
	case "search_pages":
		return d.endpoint.SearchPages(ctx, token, stringArg(args, "query"))

	case "search_collections":
		return d.endpoint.SearchCollections(ctx, token, stringArg(args, "query"))

	case "get_page":
		pageID := stringArg(args, "page_id")
		if pageID == "" {
			return nil, errorx.New(errorx.BadRequest, "Operation get_page requires page_id")
		}
		return d.endpoint.GetPage(ctx, token, pageID)

	case "get_collection":
		collectionID := stringArg(args, "collection_id")
		if collectionID == "" {
			return nil, errorx.New(errorx.BadRequest, "Operation get_collection requires collection_id")
		}
		return d.endpoint.GetCollection(ctx, token, collectionID)

	case "query_collection":
		collectionID := stringArg(args, "collection_id")
		if collectionID == "" {
			return nil, errorx.New(errorx.BadRequest, "Operation query_collection requires collection_id")
		}

		filter, _ := args["filter"].(map[string]any)
		return d.endpoint.QueryCollection(ctx, token, collectionID, filter)

	case "list_members":
		return d.endpoint.ListMembers(ctx, token)

	case "get_member":
		memberID := stringArg(args, "member_id")
		if memberID == "" {
			return nil, errorx.New(errorx.BadRequest, "Operation get_member requires member_id")
		}
		return d.endpoint.GetMember(ctx, token, memberID)

	default:
		return nil, errorx.New(errorx.BadRequest, "Unsupported operation %s", operation)
	}
}

func stringArg(args map[string]any, key string) string {
	value, _ := args[key].(string)
	return value
}

func mapProviderError(ctx context.Context, err error) error {
	var errx errorx.Error
	if errors.As(err, &errx) {
		return errx
	}

	var rateLimited pagehub.RateLimitedError

	switch {
	case errors.Is(err, pagehub.ErrNotFound):
		return errorx.New(errorx.NotFound, "Resource was not found")
	case errors.As(err, &rateLimited):
		return errorx.New(errorx.RateLimited, "Provider is rate limiting requests")
	case errors.Is(err, pagehub.ErrUnavailable):
		return errorx.New(errorx.ProviderUnavailable, "Provider is unavailable")
	default:
		xcontext.Logger(ctx).Errorf("Provider call failed: %v", err)
		return errorx.Unknown
	}
}
