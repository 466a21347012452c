package testutil

import (
	"context"

	"github.com/relaydesk/backend/pkg/api/pagehub"
)

type MockPagehubEndpoint struct {
	SearchPagesFunc       func(ctx context.Context, token, query string) ([]pagehub.Page, error)
	SearchCollectionsFunc func(ctx context.Context, token, query string) ([]pagehub.Collection, error)
	GetPageFunc           func(ctx context.Context, token, pageID string) (pagehub.Page, error)
	GetCollectionFunc     func(ctx context.Context, token, collectionID string) (pagehub.Collection, error)
	QueryCollectionFunc   func(ctx context.Context, token, collectionID string, filter map[string]any) ([]pagehub.Page, error)
	ListMembersFunc       func(ctx context.Context, token string) ([]pagehub.Member, error)
	GetMemberFunc         func(ctx context.Context, token, memberID string) (pagehub.Member, error)
}

func (m *MockPagehubEndpoint) SearchPages(
	ctx context.Context, token, query string,
) ([]pagehub.Page, error) {
	if m.SearchPagesFunc != nil {
		return m.SearchPagesFunc(ctx, token, query)
	}

	return nil, nil
}

func (m *MockPagehubEndpoint) SearchCollections(
	ctx context.Context, token, query string,
) ([]pagehub.Collection, error) {
	if m.SearchCollectionsFunc != nil {
		return m.SearchCollectionsFunc(ctx, token, query)
	}

	return nil, nil
}

func (m *MockPagehubEndpoint) GetPage(
	ctx context.Context, token, pageID string,
) (pagehub.Page, error) {
	if m.GetPageFunc != nil {
		return m.GetPageFunc(ctx, token, pageID)
	}

	return pagehub.Page{}, nil
}

func (m *MockPagehubEndpoint) GetCollection(
	ctx context.Context, token, collectionID string,
) (pagehub.Collection, error) {
	if m.GetCollectionFunc != nil {
		return m.GetCollectionFunc(ctx, token, collectionID)
	}

	return pagehub.Collection{}, nil
}

func (m *MockPagehubEndpoint) QueryCollection(
	ctx context.Context, token, collectionID string, filter map[string]any,
) ([]pagehub.Page, error) {
	if m.QueryCollectionFunc != nil {
		return m.QueryCollectionFunc(ctx, token, collectionID, filter)
	}

	return nil, nil
}

func (m *MockPagehubEndpoint) ListMembers(
	ctx context.Context, token string,
) ([]pagehub.Member, error) {
	if m.ListMembersFunc != nil {
		return m.ListMembersFunc(ctx, token)
	}

	return nil, nil
}

func (m *MockPagehubEndpoint) GetMember(
	ctx context.Context, token, memberID string,
) (pagehub.Member, error) {
	if m.GetMemberFunc != nil {
		return m.GetMemberFunc(ctx, token, memberID)
	}

	return pagehub.Member{}, nil
}
