package repository

import (
	"context"
	"fmt"

	"nokoroa/internal/models"

	"gorm.io/gorm"
)

// StructuredQuery lists posts through the query builder: keyword, tag,
// location and author filters combined with AND, newest first.
type StructuredQuery struct {
	Predicate
	// Tags matches posts carrying ANY of the names.
	Tags []string
	// Location is a case-insensitive substring of the location name.
	Location string
	AuthorID *uint
	// IDs restricts the match to the given posts when non-nil.
	IDs  []uint
	Page Page
}

func (q StructuredQuery) Strategy() string { return StrategyStructured }

func (q StructuredQuery) Run(ctx context.Context, db *gorm.DB) (*PostPage, error) {
	page := q.Page.Clamp()
	conn := db.WithContext(ctx)

	base := conn.Model(&models.Post{}).
		Joins("LEFT JOIN users ON users.id = posts.author_id")

	if frag, args := q.Predicate.SQL("posts.is_public", "posts.title", "posts.content", "users.name"); frag != "" {
		base = base.Where(frag, args...)
	}
	if len(q.Tags) > 0 {
		tagged := conn.Table("post_tags").
			Select("post_tags.post_id").
			Joins("JOIN tags ON tags.id = post_tags.tag_id").
			Where("tags.name IN ?", q.Tags)
		base = base.Where("posts.id IN (?)", tagged)
	}
	if q.Location != "" {
		base = base.Where(`posts.location_id IN (SELECT locations.id FROM locations WHERE LOWER(locations.name) LIKE ? ESCAPE '\')`, likePattern(q.Location))
	}
	if q.AuthorID != nil {
		base = base.Where("posts.author_id = ?", *q.AuthorID)
	}
	if q.IDs != nil {
		if len(q.IDs) == 0 {
			return &PostPage{Posts: []models.Post{}}, nil
		}
		base = base.Where("posts.id IN ?", q.IDs)
	}

	base = base.Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}

	posts := []models.Post{}
	if total > int64(page.Offset) {
		err := withPostDetails(base.Select("posts.*")).
			Order("posts.created_at DESC").
			Order("posts.id DESC").
			Limit(page.Limit).
			Offset(page.Offset).
			Find(&posts).Error
		if err != nil {
			return nil, fmt.Errorf("list posts: %w", err)
		}
	}

	return &PostPage{Posts: posts, Total: total}, nil
}

// withPostDetails preloads everything the public post shape needs. Tag links
// come back in the order they were attached.
func withPostDetails(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("Author").
		Preload("Location").
		Preload("Tags", func(db *gorm.DB) *gorm.DB {
			return db.Order("post_tags.position ASC")
		}).
		Preload("Tags.Tag")
}
