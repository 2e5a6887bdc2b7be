package prefs

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kampus/api/internal/notify"
	"kampus/api/internal/report"
)

var _ notify.Preferences = UserPreferences{}

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client), s
}

func TestBoolDefaultsWhenUnset(t *testing.T) {
	store, _ := setupStore(t)
	on, err := store.ForUser("u1").Bool(context.Background(), "pref_notify_Arıza", true)
	require.NoError(t, err)
	assert.True(t, on)
}

func TestSetAndReadBack(t *testing.T) {
	store, s := setupStore(t)
	ctx := context.Background()
	user := store.ForUser("u1")

	require.NoError(t, user.Set(ctx, "pref_notify_Arıza", false))
	on, err := user.Bool(ctx, "pref_notify_Arıza", true)
	require.NoError(t, err)
	assert.False(t, on)
	assert.Equal(t, "false", s.HGet("prefs:u1", "pref_notify_Arıza"))

	other, err := store.ForUser("u2").Bool(ctx, "pref_notify_Arıza", true)
	require.NoError(t, err)
	assert.True(t, other)
}

func TestGarbageValueFallsBackToDefault(t *testing.T) {
	store, s := setupStore(t)
	s.HSet("prefs:u1", "pref_notify_Temizlik", "maybe")
	on, err := store.Bool(context.Background(), "u1", "pref_notify_Temizlik", true)
	require.NoError(t, err)
	assert.True(t, on)
}

func TestAllCoversEveryCategory(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetCategories(ctx, "u1", map[report.Category]bool{
		report.CategorySecurity: false,
		report.CategoryLostItem: false,
	}))

	all, err := store.All(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, len(report.Categories()))
	assert.False(t, all[report.CategorySecurity])
	assert.False(t, all[report.CategoryLostItem])
	assert.True(t, all[report.CategoryFault])
}

func TestBoolReturnsErrorWhenRedisDown(t *testing.T) {
	store, s := setupStore(t)
	s.Close()
	on, err := store.Bool(context.Background(), "u1", "pref_notify_Genel", true)
	assert.Error(t, err)
	assert.True(t, on)
}
