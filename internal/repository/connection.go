package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/relaydesk/backend/internal/entity"
	"github.com/relaydesk/backend/pkg/xcontext"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TokenUpdate carries the replacement token columns written after a
// successful refresh.
type TokenUpdate struct {
	EncryptedAccessToken  string
	AccessTokenIV         string
	EncryptedRefreshToken sql.NullString
	RefreshTokenIV        sql.NullString
	ExpiresAt             time.Time
	Scope                 string
}

type ConnectionRepository interface {
	Upsert(ctx context.Context, connection *entity.Connection) error
	GetByUserID(ctx context.Context, userID string) (*entity.Connection, error)
	SaveRefreshedTokens(ctx context.Context, userID string, update TokenUpdate) error
	Disconnect(ctx context.Context, userID string) error
	TouchLastUsed(ctx context.Context, userID string) error
}

type connectionRepository struct{}

func NewConnectionRepository() *connectionRepository {
	return &connectionRepository{}
}

func (r *connectionRepository) Upsert(ctx context.Context, connection *entity.Connection) error {
	return xcontext.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		// created_at is reassigned on conflict so it always marks the
		// latest connect, not the first one.
		DoUpdates: clause.AssignmentColumns([]string{
			"encrypted_access_token", "access_token_iv",
			"encrypted_refresh_token", "refresh_token_iv",
			"expires_at", "scope", "workspace_id", "workspace_name",
			"status", "disconnected_at", "created_at", "updated_at",
		}),
	}).Create(connection).Error
}

func (r *connectionRepository) GetByUserID(ctx context.Context, userID string) (*entity.Connection, error) {
	var record entity.Connection
	if err := xcontext.DB(ctx).Take(&record, "user_id=?", userID).Error; err != nil {
		return nil, err
	}

	return &record, nil
}

func (r *connectionRepository) SaveRefreshedTokens(
	ctx context.Context, userID string, update TokenUpdate,
) error {
	values := map[string]any{
		"encrypted_access_token": update.EncryptedAccessToken,
		"access_token_iv":        update.AccessTokenIV,
		"expires_at":             update.ExpiresAt,
		"refreshed_at":           sql.NullTime{Valid: true, Time: time.Now()},
		"refresh_count":          gorm.Expr("refresh_count+1"),
		"status":                 entity.ConnectionActive,
	}
	if update.Scope != "" {
		values["scope"] = update.Scope
	}
	if update.EncryptedRefreshToken.Valid {
		values["encrypted_refresh_token"] = update.EncryptedRefreshToken
		values["refresh_token_iv"] = update.RefreshTokenIV
	}

	tx := xcontext.DB(ctx).
		Model(&entity.Connection{}).
		Where("user_id=?", userID).
		Updates(values)
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *connectionRepository) Disconnect(ctx context.Context, userID string) error {
	return xcontext.DB(ctx).
		Model(&entity.Connection{}).
		Where("user_id=?", userID).
		Updates(map[string]any{
			"encrypted_access_token":  sql.NullString{},
			"access_token_iv":         sql.NullString{},
			"encrypted_refresh_token": sql.NullString{},
			"refresh_token_iv":        sql.NullString{},
			"status":                  entity.ConnectionDisconnected,
			"disconnected_at":         sql.NullTime{Valid: true, Time: time.Now()},
		}).Error
}

func (r *connectionRepository) TouchLastUsed(ctx context.Context, userID string) error {
	return xcontext.DB(ctx).
		Model(&entity.Connection{}).
		Where("user_id=?", userID).
		Update("last_used_at", sql.NullTime{Valid: true, Time: time.Now()}).Error
}
