package realtime

import (
	"context"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/rs/zerolog/log"

	"github.com/railwatch/railwatch/pkg/redis_client"
)

// BerthCache remembers which timetable location each signalling berth
// was last seen against, learnt from movement events that carry both.
// Backed by redis so every consumer shares one view.
type BerthCache struct {
	cache *cache.Cache[string]
}

func NewBerthCache() *BerthCache {
	redisStore := redisstore.NewRedis(redis_client.Client, store.WithExpiration(12*time.Hour))

	return &BerthCache{
		cache: cache.New[string](redisStore),
	}
}

func (b *BerthCache) key(berth string) string {
	return "berthcache/" + berth
}

func (b *BerthCache) Learn(berth string, tiploc string) {
	if berth == "" || tiploc == "" {
		return
	}

	if err := b.cache.Set(context.Background(), b.key(berth), tiploc); err != nil {
		log.Error().Err(err).Str("berth", berth).Msg("Failed to cache berth location")
	}
}

func (b *BerthCache) Locate(berth string) (string, bool) {
	tiploc, err := b.cache.Get(context.Background(), b.key(berth))
	if err != nil || tiploc == "" {
		return "", false
	}

	return tiploc, true
}
