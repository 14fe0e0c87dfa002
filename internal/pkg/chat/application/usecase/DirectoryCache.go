package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	cport "brunox-chat/internal/infrastructure/cache/port"
	chat "brunox-chat/internal/pkg/chat/domain"

	"github.com/rs/zerolog"
)

// DirectoryCache stores each user's sorted conversation list. Cache errors
// are logged and treated as misses; the store stays the source of truth.
// A nil *DirectoryCache is valid and caches nothing.
type DirectoryCache struct {
	cache cport.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

func NewDirectoryCache(cache cport.Cache, ttl time.Duration, log zerolog.Logger) *DirectoryCache {
	if cache == nil {
		return nil
	}
	return &DirectoryCache{cache: cache, ttl: ttl, log: log.With().Str("component", "directory_cache").Logger()}
}

func directoryKey(userID string) string {
	return "chat:directory:" + userID
}

func (d *DirectoryCache) Get(ctx context.Context, userID string) ([]chat.Conversation, bool) {
	if d == nil {
		return nil, false
	}
	raw, err := d.cache.Get(ctx, directoryKey(userID))
	if err != nil {
		if !errors.Is(err, cport.ErrMiss) {
			d.log.Warn().Err(err).Str("user_id", userID).Msg("directory cache read failed")
		}
		return nil, false
	}
	var convs []chat.Conversation
	if err := json.Unmarshal([]byte(raw), &convs); err != nil {
		d.log.Warn().Err(err).Str("user_id", userID).Msg("discarding undecodable directory entry")
		return nil, false
	}
	return convs, true
}

func (d *DirectoryCache) Put(ctx context.Context, userID string, convs []chat.Conversation) {
	if d == nil {
		return
	}
	raw, err := json.Marshal(convs)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, directoryKey(userID), string(raw), d.ttl); err != nil {
		d.log.Warn().Err(err).Str("user_id", userID).Msg("directory cache write failed")
	}
}

func (d *DirectoryCache) Invalidate(ctx context.Context, userIDs ...string) {
	if d == nil || len(userIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, directoryKey(id))
	}
	if _, err := d.cache.Del(ctx, keys...); err != nil {
		d.log.Warn().Err(err).Strs("user_ids", userIDs).Msg("directory cache invalidation failed")
	}
}
