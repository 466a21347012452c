package pagehub

import "context"

// IEndpoint is the Pagehub REST surface the orchestrator calls. Every method
// requires the user's access token.
type IEndpoint interface {
	SearchPages(ctx context.Context, token, query string) ([]Page, error)
	SearchCollections(ctx context.Context, token, query string) ([]Collection, error)
	GetPage(ctx context.Context, token, pageID string) (Page, error)
	GetCollection(ctx context.Context, token, collectionID string) (Collection, error)
	QueryCollection(ctx context.Context, token, collectionID string, filter map[string]any) ([]Page, error)
	ListMembers(ctx context.Context, token string) ([]Member, error)
	GetMember(ctx context.Context, token, memberID string) (Member, error)
}
