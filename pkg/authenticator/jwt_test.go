package authenticator_test

import (
	"testing"
	"time"

	"github.com/relaydesk/backend/pkg/authenticator"
	"github.com/stretchr/testify/require"
)

type sampleObject struct {
	ID string `mapstructure:"id"`
}

func TestJWT(t *testing.T) {
	engine := authenticator.NewTokenEngine("secret")
	token, err := engine.Generate(time.Minute, sampleObject{ID: "abc"})
	require.NoError(t, err)

	var obj sampleObject
	err = engine.Verify(token, &obj)
	require.NoError(t, err)
	require.Equal(t, "abc", obj.ID)
}

func TestJWTExpiration(t *testing.T) {
	engine := authenticator.NewTokenEngine("secret")
	token, err := engine.Generate(-time.Minute, sampleObject{ID: "abc"})
	require.NoError(t, err)

	var obj sampleObject
	err = engine.Verify(token, &obj)
	require.Error(t, err)
}

func TestJWTWrongSecret(t *testing.T) {
	engine := authenticator.NewTokenEngine("secret")
	token, err := engine.Generate(time.Minute, sampleObject{ID: "abc"})
	require.NoError(t, err)

	var obj sampleObject
	err = authenticator.NewTokenEngine("another-secret").Verify(token, &obj)
	require.Error(t, err)
}
