package repository

import (
	"context"
	"time"

	"github.com/relaydesk/backend/internal/entity"
	"github.com/relaydesk/backend/pkg/xcontext"
	"gorm.io/gorm"
)

type OAuthStateRepository interface {
	Create(ctx context.Context, state *entity.OAuthState) error
	GetByStateValue(ctx context.Context, stateValue string) (*entity.OAuthState, error)
	Consume(ctx context.Context, stateValue string) error
	Delete(ctx context.Context, stateValue string) error
	DeleteConsumedByUserID(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, grace time.Duration) (int64, error)
}

type oauthStateRepository struct{}

func NewOAuthStateRepository() *oauthStateRepository {
	return &oauthStateRepository{}
}

func (r *oauthStateRepository) Create(ctx context.Context, state *entity.OAuthState) error {
	return xcontext.DB(ctx).Create(state).Error
}

func (r *oauthStateRepository) GetByStateValue(
	ctx context.Context, stateValue string,
) (*entity.OAuthState, error) {
	var record entity.OAuthState
	if err := xcontext.DB(ctx).Take(&record, "state_value=?", stateValue).Error; err != nil {
		return nil, err
	}

	return &record, nil
}

// Consume marks the state as used. The guard on consumed makes the
// first caller win when two callbacks race on the same state.
func (r *oauthStateRepository) Consume(ctx context.Context, stateValue string) error {
	tx := xcontext.DB(ctx).
		Model(&entity.OAuthState{}).
		Where("state_value=? AND consumed=?", stateValue, false).
		Update("consumed", true)
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *oauthStateRepository) Delete(ctx context.Context, stateValue string) error {
	return xcontext.DB(ctx).
		Where("state_value=?", stateValue).
		Delete(&entity.OAuthState{}).Error
}

func (r *oauthStateRepository) DeleteConsumedByUserID(ctx context.Context, userID string) error {
	return xcontext.DB(ctx).
		Where("user_id=? AND consumed=?", userID, true).
		Delete(&entity.OAuthState{}).Error
}

func (r *oauthStateRepository) DeleteExpired(
	ctx context.Context, grace time.Duration,
) (int64, error) {
	tx := xcontext.DB(ctx).
		Where("expires_at < ?", time.Now().Add(-grace)).
		Delete(&entity.OAuthState{})

	return tx.RowsAffected, tx.Error
}
