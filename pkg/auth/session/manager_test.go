package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfoodnetwork/ofn-backend/pkg/config"
	redisclient "github.com/openfoodnetwork/ofn-backend/pkg/redis"
)

func newManager(t *testing.T) (*Manager, *redisclient.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisclient.NewFromRedis(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	return &Manager{store: client, ttl: time.Hour}, client, mr
}

func TestGenerateStoresDigestOnly(t *testing.T) {
	m, client, mr := newManager(t)
	ctx := context.Background()

	token, err := m.Generate(ctx, "access-1")
	require.NoError(t, err)

	stored, err := mr.Get(client.AccessSessionKey("access-1"))
	require.NoError(t, err)
	assert.NotEqual(t, token, stored)
	assert.Equal(t, digest(token), stored)
	assert.Equal(t, time.Hour, mr.TTL(client.AccessSessionKey("access-1")))

	ok, err := m.HasSession(ctx, "access-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRotateIsSingleUse(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	token, err := m.Generate(ctx, "access-1")
	require.NoError(t, err)

	newID, newToken, err := m.Rotate(ctx, "access-1", token)
	require.NoError(t, err)
	assert.NotEqual(t, "access-1", newID)
	assert.NotEqual(t, token, newToken)

	_, _, err = m.Rotate(ctx, "access-1", token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	ok, err := m.HasSession(ctx, newID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRotateWithWrongTokenBurnsSession(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	token, err := m.Generate(ctx, "access-1")
	require.NoError(t, err)

	_, _, err = m.Rotate(ctx, "access-1", "guess")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, _, err = m.Rotate(ctx, "access-1", token)
	assert.True(t, errors.Is(err, ErrInvalidRefreshToken))
}

func TestRevokeEndsSession(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	_, err := m.Generate(ctx, "access-1")
	require.NoError(t, err)
	require.NoError(t, m.Revoke(ctx, "access-1"))

	ok, err := m.HasSession(ctx, "access-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Error(t, m.Revoke(ctx, " "))
}

func TestNewManagerValidatesTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redisclient.NewFromRedis(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))

	_, err := NewManager(nil, config.JWTConfig{})
	assert.Error(t, err)

	_, err = NewManager(client, config.JWTConfig{ExpirationMinutes: 60, RefreshTokenTTLMinutes: 30})
	assert.Error(t, err)
}
