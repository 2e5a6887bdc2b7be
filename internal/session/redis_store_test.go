package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kampus/api/internal/store"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	sessions, err := NewRedisStore(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sessions.Close() })
	return sessions, mr
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "http://not-redis")
	assert.ErrorContains(t, err, "parse redis url")
}

func TestNewRedisStoreRequiresServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(context.Background(), "redis://"+addr)
	assert.ErrorContains(t, err, "connect to redis")
}

func TestRefreshSessionLifecycle(t *testing.T) {
	sessions, mr := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, sessions.Ping(ctx))

	require.NoError(t, sessions.SaveRefreshSession(ctx, "hash-ayse", "u-ayse", time.Now().Add(2*time.Hour)))
	user, err := sessions.LookupRefreshSession(ctx, "hash-ayse")
	require.NoError(t, err)
	assert.Equal(t, "u-ayse", user.ID)
	assert.Equal(t, store.RoleUser, user.Role)

	ttl := mr.TTL("refresh:hash-ayse")
	assert.InDelta(t, (2 * time.Hour).Seconds(), ttl.Seconds(), 5)

	require.NoError(t, sessions.RevokeRefreshSession(ctx, "hash-ayse"))
	_, err = sessions.LookupRefreshSession(ctx, "hash-ayse")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, sessions.RevokeRefreshSession(ctx, "hash-ayse"), "second revoke is a no-op")
	assert.False(t, mr.Exists("refresh:user:u-ayse") && len(mustMembers(t, mr, "refresh:user:u-ayse")) > 0)
}

func TestRefreshSessionExpires(t *testing.T) {
	sessions, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, sessions.SaveRefreshSession(ctx, "short", "u-1", time.Now().Add(time.Minute)))
	mr.FastForward(2 * time.Minute)

	_, err := sessions.LookupRefreshSession(ctx, "short")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPastExpiryFallsBackToDefaultTTL(t *testing.T) {
	sessions, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, sessions.SaveRefreshSession(ctx, "stale", "u-1", time.Now().Add(-time.Hour)))
	assert.Equal(t, defaultTTL, mr.TTL("refresh:stale"))
}

func TestRevokeUserSessionsLeavesOtherUsers(t *testing.T) {
	sessions, mr := newTestStore(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)

	for hash, userID := range map[string]string{"phone": "u-1", "tablet": "u-1", "laptop": "u-2"} {
		require.NoError(t, sessions.SaveRefreshSession(ctx, hash, userID, expiresAt))
	}
	// An expired token still sits in the index but is not counted as live.
	mr.Del("refresh:tablet")

	live, err := sessions.RevokeUserSessions(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 1, live)
	assert.False(t, mr.Exists("refresh:user:u-1"))

	_, err = sessions.LookupRefreshSession(ctx, "phone")
	assert.ErrorIs(t, err, store.ErrNotFound)
	user, err := sessions.LookupRefreshSession(ctx, "laptop")
	require.NoError(t, err)
	assert.Equal(t, "u-2", user.ID)

	live, err = sessions.RevokeUserSessions(ctx, "u-unknown")
	require.NoError(t, err)
	assert.Zero(t, live)
}

func TestLookupRejectsCorruptPayload(t *testing.T) {
	sessions, mr := newTestStore(t)
	require.NoError(t, mr.Set("refresh:broken", "{not json"))

	_, err := sessions.LookupRefreshSession(context.Background(), "broken")
	assert.ErrorContains(t, err, "unmarshal token data")
}

func mustMembers(t *testing.T, mr *miniredis.Miniredis, key string) []string {
	t.Helper()
	members, err := mr.Members(key)
	require.NoError(t, err)
	return members
}
