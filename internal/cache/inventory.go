package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	PostKeyPrefix      = "post:%d"
	FavoritesKeyPrefix = "post:%d:favorites"
	TagUsageKey        = "tags:usage"
	LocationUsageKey   = "locations:usage"
)

const (
	PostTTL      = 30 * time.Minute
	FavoritesTTL = 30 * time.Second
	UsageTTL     = 2 * time.Minute
)

func PostKey(postID uint) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

func FavoritesKey(postID uint) string {
	return fmt.Sprintf(FavoritesKeyPrefix, postID)
}

func Invalidate(ctx context.Context, keys ...string) {
	if client != nil && len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

// InvalidatePost drops everything cached for a post, including the usage
// aggregates its tags and location contribute to.
func InvalidatePost(ctx context.Context, postID uint) {
	Invalidate(ctx, PostKey(postID), FavoritesKey(postID), TagUsageKey, LocationUsageKey)
}

// InvalidateUsage drops the tag and location usage aggregates.
func InvalidateUsage(ctx context.Context) {
	Invalidate(ctx, TagUsageKey, LocationUsageKey)
}
