// Package prefs stores per-user notification preferences in Redis.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"kampus/api/internal/report"
)

// Store keeps one Redis hash per user: prefs:{userID} -> key -> "true"/"false".
type Store struct {
	client *redis.Client
	prefix string
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client, prefix: "prefs:"}
}

func (s *Store) key(userID string) string {
	return s.prefix + userID
}

// Bool reads one flag, returning def when it was never set.
func (s *Store) Bool(ctx context.Context, userID, key string, def bool) (bool, error) {
	raw, err := s.client.HGet(ctx, s.key(userID), key).Result()
	if errors.Is(err, redis.Nil) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("read preference %s: %w", key, err)
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, nil
	}
	return v, nil
}

// Set writes one flag.
func (s *Store) Set(ctx context.Context, userID, key string, value bool) error {
	if err := s.client.HSet(ctx, s.key(userID), key, strconv.FormatBool(value)).Err(); err != nil {
		return fmt.Errorf("write preference %s: %w", key, err)
	}
	return nil
}

// SetCategories writes several category flags at once.
func (s *Store) SetCategories(ctx context.Context, userID string, values map[report.Category]bool) error {
	if len(values) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(values))
	for c, on := range values {
		fields[c.PreferenceKey()] = strconv.FormatBool(on)
	}
	if err := s.client.HSet(ctx, s.key(userID), fields).Err(); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return nil
}

// All returns the flag of every category, defaulting to enabled.
func (s *Store) All(ctx context.Context, userID string) (map[report.Category]bool, error) {
	stored, err := s.client.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	out := make(map[report.Category]bool, len(report.Categories()))
	for _, c := range report.Categories() {
		on := true
		if raw, ok := stored[c.PreferenceKey()]; ok {
			if v, err := strconv.ParseBool(raw); err == nil {
				on = v
			}
		}
		out[c] = on
	}
	return out, nil
}

// ForUser binds the store to one user.
func (s *Store) ForUser(userID string) UserPreferences {
	return UserPreferences{store: s, userID: userID}
}

// UserPreferences is a Store scoped to one user. It satisfies
// notify.Preferences.
type UserPreferences struct {
	store  *Store
	userID string
}

func (u UserPreferences) Bool(ctx context.Context, key string, def bool) (bool, error) {
	return u.store.Bool(ctx, u.userID, key, def)
}

func (u UserPreferences) Set(ctx context.Context, key string, value bool) error {
	return u.store.Set(ctx, u.userID, key, value)
}
