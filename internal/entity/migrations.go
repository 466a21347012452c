package entity

import (
	"context"

	"github.com/relaydesk/backend/pkg/xcontext"
)

func MigrateTable(ctx context.Context) error {
	return xcontext.DB(ctx).AutoMigrate(
		&User{},
		&Connection{},
		&OAuthState{},
	)
}
