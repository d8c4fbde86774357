// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"fmt"

	"nokoroa/internal/cache"
	"nokoroa/internal/models"
	"nokoroa/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post, tagIDs []uint) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	GetAuthorID(ctx context.Context, id uint) (uint, error)
	// Update persists post's scalar fields. A nil tagIDs keeps the current
	// links; any non-nil slice replaces them.
	Update(ctx context.Context, post *models.Post, tagIDs []uint) error
	Delete(ctx context.Context, id uint) error
	Query(ctx context.Context, q PostQuery) (*PostPage, error)
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post, tagIDs []uint) error {
	defer observability.TrackQuery("create", "posts")()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(post).Error; err != nil {
			return fmt.Errorf("insert post: %w", err)
		}
		return linkTags(tx, post.ID, tagIDs)
	})
	if err != nil {
		return err
	}

	cache.InvalidateUsage(ctx)
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	defer observability.TrackQuery("get", "posts")()

	var post models.Post
	err := cache.Aside(ctx, "post", cache.PostKey(id), &post, cache.PostTTL, func() error {
		return withPostDetails(r.db.WithContext(ctx)).First(&post, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// GetAuthorID loads only the owner of a post, for existence and ownership checks.
func (r *postRepository) GetAuthorID(ctx context.Context, id uint) (uint, error) {
	defer observability.TrackQuery("get_author", "posts")()

	var post models.Post
	if err := r.db.WithContext(ctx).Select("id", "author_id").First(&post, id).Error; err != nil {
		return 0, err
	}
	return post.AuthorID, nil
}

func (r *postRepository) Update(ctx context.Context, post *models.Post, tagIDs []uint) error {
	defer observability.TrackQuery("update", "posts")()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(post).
			Select("title", "content", "image_url", "is_public", "location_id", "updated_at").
			Omit(clause.Associations).
			Updates(post)
		if res.Error != nil {
			return fmt.Errorf("update post %d: %w", post.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if tagIDs == nil {
			return nil
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.PostTag{}).Error; err != nil {
			return fmt.Errorf("clear tags of post %d: %w", post.ID, err)
		}
		return linkTags(tx, post.ID, tagIDs)
	})
	if err != nil {
		return err
	}

	cache.InvalidatePost(ctx, post.ID)
	return nil
}

// Delete removes a post together with its tag links and bookmarks.
func (r *postRepository) Delete(ctx context.Context, id uint) error {
	defer observability.TrackQuery("delete", "posts")()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.PostTag{}).Error; err != nil {
			return fmt.Errorf("delete tags of post %d: %w", id, err)
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.Bookmark{}).Error; err != nil {
			return fmt.Errorf("delete bookmarks of post %d: %w", id, err)
		}
		res := tx.Delete(&models.Post{}, id)
		if res.Error != nil {
			return fmt.Errorf("delete post %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	cache.InvalidatePost(ctx, id)
	return nil
}

// Query runs a discovery query. Failures are returned as-is; a failed
// geospatial query is never retried through another strategy.
func (r *postRepository) Query(ctx context.Context, q PostQuery) (*PostPage, error) {
	strategy := q.Strategy()
	span, ctx := observability.StartRepositorySpan(ctx, "Query", "posts")
	span.AddAttributes(attribute.String("discovery.strategy", strategy))
	defer span.End()
	defer observability.TrackQuery("query_"+strategy, "posts")()

	page, err := q.Run(ctx, r.db)
	if err != nil {
		span.SetError(err)
		observability.DiscoveryQueries.WithLabelValues(strategy, "error").Inc()
		return nil, err
	}

	span.AddAttributes(attribute.Int64("discovery.total", page.Total))
	observability.DiscoveryQueries.WithLabelValues(strategy, "ok").Inc()
	return page, nil
}

func linkTags(tx *gorm.DB, postID uint, tagIDs []uint) error {
	if len(tagIDs) == 0 {
		return nil
	}
	links := make([]models.PostTag, 0, len(tagIDs))
	seen := make(map[uint]struct{}, len(tagIDs))
	for _, tagID := range tagIDs {
		if _, dup := seen[tagID]; dup {
			continue
		}
		seen[tagID] = struct{}{}
		links = append(links, models.PostTag{PostID: postID, TagID: tagID, Position: len(links)})
	}
	if err := tx.Omit(clause.Associations).Create(&links).Error; err != nil {
		return fmt.Errorf("link tags to post %d: %w", postID, err)
	}
	return nil
}
