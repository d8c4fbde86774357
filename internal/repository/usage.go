package repository

import (
	"context"
	"fmt"

	"nokoroa/internal/cache"
	"nokoroa/internal/models"
	"nokoroa/internal/observability"

	"gorm.io/gorm"
)

// TagRepository aggregates tag usage.
type TagRepository interface {
	// Usage lists tags linked to at least one public post, most used first.
	Usage(ctx context.Context) ([]models.TagCount, error)
}

// LocationRepository aggregates location usage.
type LocationRepository interface {
	// Usage lists locations referenced by at least one public post, most used first.
	Usage(ctx context.Context) ([]models.LocationCount, error)
}

type tagRepository struct {
	db *gorm.DB
}

func NewTagRepository(db *gorm.DB) TagRepository {
	return &tagRepository{db: db}
}

func (r *tagRepository) Usage(ctx context.Context) ([]models.TagCount, error) {
	out := []models.TagCount{}
	err := cache.Aside(ctx, "tag_usage", cache.TagUsageKey, &out, cache.UsageTTL, func() error {
		defer observability.TrackQuery("usage", "tags")()
		return r.db.WithContext(ctx).
			Table("tags").
			Select("tags.name AS name, tags.slug AS slug, COUNT(post_tags.post_id) AS count").
			Joins("JOIN post_tags ON post_tags.tag_id = tags.id").
			Joins("JOIN posts ON posts.id = post_tags.post_id").
			Where("posts.is_public = ?", true).
			Group("tags.id, tags.name, tags.slug").
			Having("COUNT(post_tags.post_id) > 0").
			Order("count DESC").
			Order("tags.name ASC").
			Scan(&out).Error
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate tag usage: %w", err)
	}
	return out, nil
}

type locationRepository struct {
	db *gorm.DB
}

func NewLocationRepository(db *gorm.DB) LocationRepository {
	return &locationRepository{db: db}
}

func (r *locationRepository) Usage(ctx context.Context) ([]models.LocationCount, error) {
	out := []models.LocationCount{}
	err := cache.Aside(ctx, "location_usage", cache.LocationUsageKey, &out, cache.UsageTTL, func() error {
		defer observability.TrackQuery("usage", "locations")()
		return r.db.WithContext(ctx).
			Table("locations").
			Select("locations.name AS name, locations.prefecture AS prefecture, " +
				"locations.latitude AS latitude, locations.longitude AS longitude, COUNT(posts.id) AS count").
			Joins("JOIN posts ON posts.location_id = locations.id").
			Where("posts.is_public = ?", true).
			Group("locations.id, locations.name, locations.prefecture, locations.latitude, locations.longitude").
			Having("COUNT(posts.id) > 0").
			Order("count DESC").
			Order("locations.name ASC").
			Scan(&out).Error
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate location usage: %w", err)
	}
	return out, nil
}

// BookmarkRepository counts bookmarks. Bookmark writes belong to another service.
type BookmarkRepository interface {
	CountByPost(ctx context.Context, postID uint) (int64, error)
}

type bookmarkRepository struct {
	db *gorm.DB
}

func NewBookmarkRepository(db *gorm.DB) BookmarkRepository {
	return &bookmarkRepository{db: db}
}

func (r *bookmarkRepository) CountByPost(ctx context.Context, postID uint) (int64, error) {
	var count int64
	err := cache.Aside(ctx, "favorites", cache.FavoritesKey(postID), &count, cache.FavoritesTTL, func() error {
		defer observability.TrackQuery("count", "bookmarks")()
		return r.db.WithContext(ctx).Model(&models.Bookmark{}).Where("post_id = ?", postID).Count(&count).Error
	})
	if err != nil {
		return 0, fmt.Errorf("count bookmarks of post %d: %w", postID, err)
	}
	return count, nil
}
