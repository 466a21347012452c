package testutil

import (
	"context"
	"database/sql"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/relaydesk/backend/internal/entity"
	"github.com/relaydesk/backend/internal/repository"
	"github.com/relaydesk/backend/pkg/crypto"
	"github.com/relaydesk/backend/pkg/xcontext"
)

// SampleUser creates a user with randomized fields, overwritten by any
// non-zero field of init.
func SampleUser(ctx context.Context, init *entity.User) (entity.User, error) {
	userRepo := repository.NewUserRepository()

	sample := &entity.User{
		Base: entity.Base{ID: uuid.NewString()},
		Name: uuid.NewString(),
	}

	if init != nil {
		overwriteFields(sample, *init)
	}

	if err := userRepo.Create(ctx, sample); err != nil {
		return *sample, err
	}

	return *sample, nil
}

// SampleConnection creates an active connection whose tokens are encrypted
// with codec, so vault tests can decrypt them back.
func SampleConnection(
	ctx context.Context, codec *crypto.SecretCodec, accessToken, refreshToken string,
	init *entity.Connection,
) (entity.Connection, error) {
	connectionRepo := repository.NewConnectionRepository()

	sample := &entity.Connection{
		Base:          entity.Base{ID: uuid.NewString()},
		UserID:        uuid.NewString(),
		ExpiresAt:     time.Now().Add(time.Hour),
		Scope:         "read_content",
		WorkspaceID:   uuid.NewString(),
		WorkspaceName: "Sample Workspace",
		Status:        entity.ConnectionActive,
	}

	if accessToken != "" {
		ciphertext, iv, err := codec.Encrypt(accessToken)
		if err != nil {
			return *sample, err
		}

		sample.EncryptedAccessToken = sql.NullString{Valid: true, String: ciphertext}
		sample.AccessTokenIV = sql.NullString{Valid: true, String: iv}
	}

	if refreshToken != "" {
		ciphertext, iv, err := codec.Encrypt(refreshToken)
		if err != nil {
			return *sample, err
		}

		sample.EncryptedRefreshToken = sql.NullString{Valid: true, String: ciphertext}
		sample.RefreshTokenIV = sql.NullString{Valid: true, String: iv}
	}

	if init != nil {
		overwriteFields(sample, *init)
	}

	if _, err := SampleUser(ctx, &entity.User{Base: entity.Base{ID: sample.UserID}}); err != nil {
		return *sample, err
	}

	if err := connectionRepo.Upsert(ctx, sample); err != nil {
		return *sample, err
	}

	return *sample, nil
}

// Codec builds the secret codec from the mocked vault configuration.
func Codec(ctx context.Context) *crypto.SecretCodec {
	codec, err := crypto.NewSecretCodec([]byte(xcontext.Configs(ctx).Vault.EncryptionKey))
	if err != nil {
		panic(err)
	}

	return codec
}

func overwriteFields[T any](origin *T, overwrite T) {
	originValue := reflect.ValueOf(origin).Elem()
	overwriteValue := reflect.ValueOf(overwrite)

	for i := 0; i < overwriteValue.NumField(); i++ {
		overwriteField := overwriteValue.Field(i)
		if overwriteField.Interface() != reflect.Zero(overwriteField.Type()).Interface() {
			originValue.Field(i).Set(overwriteField)
		}
	}
}
