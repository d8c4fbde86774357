package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nokoroa/internal/models"

	"gorm.io/gorm"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// DefaultRadiusKm applies when a center is given without a radius.
const DefaultRadiusKm = 10.0

// haversineSQL is the great-circle distance in km from a bound center
// (lat, lng, lat) to the joined location. The acos argument is clamped to
// [-1, 1] so float drift at distance zero cannot produce NaN.
const haversineSQL = `(6371.0 * acos(LEAST(1.0, GREATEST(-1.0,
	cos(radians(?)) * cos(radians(locations.latitude)) *
	cos(radians(locations.longitude) - radians(?)) +
	sin(radians(?)) * sin(radians(locations.latitude))))))`

const geoSelectColumns = `posts.id, posts.title, posts.content, posts.image_url, posts.is_public,
	posts.author_id, posts.location_id, posts.created_at, posts.updated_at,
	locations.name AS location_name, locations.latitude AS location_latitude,
	locations.longitude AS location_longitude, locations.prefecture AS location_prefecture,
	users.name AS author_name, users.email AS author_email, users.avatar AS author_avatar`

const geoFrom = `FROM posts
	JOIN locations ON locations.id = posts.location_id
	JOIN users ON users.id = posts.author_id`

// GeospatialQuery finds posts whose location has coordinates. With a center
// it keeps posts within RadiusKm and orders them nearest first; without one
// it orders newest first.
type GeospatialQuery struct {
	Predicate
	CenterLat *float64
	CenterLng *float64
	// RadiusKm defaults to DefaultRadiusKm when not positive.
	RadiusKm float64
	Page     Page
}

func (q GeospatialQuery) Strategy() string { return StrategyGeospatial }

// HasCenter reports whether both center coordinates were supplied.
func (q GeospatialQuery) HasCenter() bool {
	return q.CenterLat != nil && q.CenterLng != nil
}

type geoRow struct {
	ID                 uint
	Title              string
	Content            string
	ImageURL           string
	IsPublic           bool
	AuthorID           uint
	LocationID         uint
	CreatedAt          time.Time
	UpdatedAt          time.Time
	LocationName       string
	LocationLatitude   *float64
	LocationLongitude  *float64
	LocationPrefecture *string
	AuthorName         string
	AuthorEmail        string
	AuthorAvatar       *string
	Distance           *float64
}

func (r geoRow) post() models.Post {
	locationID := r.LocationID
	return models.Post{
		ID:         r.ID,
		Title:      r.Title,
		Content:    r.Content,
		ImageURL:   r.ImageURL,
		IsPublic:   r.IsPublic,
		AuthorID:   r.AuthorID,
		LocationID: &locationID,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		Author: models.User{
			ID:     r.AuthorID,
			Name:   r.AuthorName,
			Email:  r.AuthorEmail,
			Avatar: r.AuthorAvatar,
		},
		Location: &models.Location{
			ID:         r.LocationID,
			Name:       r.LocationName,
			Latitude:   r.LocationLatitude,
			Longitude:  r.LocationLongitude,
			Prefecture: r.LocationPrefecture,
		},
		Tags:     []models.PostTag{},
		Distance: r.Distance,
	}
}

// statements builds the page and count statements with their bind values.
func (q GeospatialQuery) statements() (pageSQL string, pageArgs []any, countSQL string, countArgs []any) {
	page := q.Page.Clamp()

	where := []string{"locations.latitude IS NOT NULL", "locations.longitude IS NOT NULL"}
	var whereArgs []any
	if frag, args := q.Predicate.SQL("posts.is_public", "posts.title", "posts.content", "locations.name", "users.name"); frag != "" {
		where = append(where, frag)
		whereArgs = append(whereArgs, args...)
	}

	selectCols := geoSelectColumns
	order := "posts.created_at DESC, posts.id DESC"
	var selectArgs []any

	if q.HasCenter() {
		radius := q.RadiusKm
		if radius <= 0 {
			radius = DefaultRadiusKm
		}
		center := []any{*q.CenterLat, *q.CenterLng, *q.CenterLat}

		selectCols += ",\n\t" + haversineSQL + " AS distance"
		selectArgs = center
		where = append(where, haversineSQL+" <= ?")
		whereArgs = append(whereArgs, center...)
		whereArgs = append(whereArgs, radius)
		order = "distance ASC, posts.created_at DESC, posts.id DESC"
	}

	whereSQL := "WHERE " + strings.Join(where, "\n\tAND ")

	pageSQL = fmt.Sprintf("SELECT %s\n%s\n%s\nORDER BY %s\nLIMIT ? OFFSET ?", selectCols, geoFrom, whereSQL, order)
	pageArgs = append(append(append([]any{}, selectArgs...), whereArgs...), page.Limit, page.Offset)

	countSQL = fmt.Sprintf("SELECT COUNT(*)\n%s\n%s", geoFrom, whereSQL)
	countArgs = append([]any{}, whereArgs...)
	return pageSQL, pageArgs, countSQL, countArgs
}

func (q GeospatialQuery) Run(ctx context.Context, db *gorm.DB) (*PostPage, error) {
	pageSQL, pageArgs, countSQL, countArgs := q.statements()
	conn := db.WithContext(ctx)

	var total int64
	if err := conn.Raw(countSQL, countArgs...).Scan(&total).Error; err != nil {
		return nil, fmt.Errorf("count posts by location: %w", err)
	}

	var rows []geoRow
	if err := conn.Raw(pageSQL, pageArgs...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("search posts by location: %w", err)
	}

	posts := make([]models.Post, len(rows))
	ids := make([]uint, len(rows))
	for i, row := range rows {
		posts[i] = row.post()
		ids[i] = row.ID
	}

	if err := attachTags(ctx, db, posts, ids); err != nil {
		return nil, err
	}

	return &PostPage{Posts: posts, Total: total}, nil
}

// attachTags loads tag links for ids in one query and assigns them to posts
// in link order.
func attachTags(ctx context.Context, db *gorm.DB, posts []models.Post, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}

	var links []models.PostTag
	err := db.WithContext(ctx).
		Preload("Tag").
		Where("post_id IN ?", ids).
		Order("post_id ASC").
		Order("position ASC").
		Find(&links).Error
	if err != nil {
		return fmt.Errorf("load tags for posts: %w", err)
	}

	byPost := make(map[uint][]models.PostTag, len(ids))
	for _, link := range links {
		byPost[link.PostID] = append(byPost[link.PostID], link)
	}
	for i := range posts {
		if tags, ok := byPost[posts[i].ID]; ok {
			posts[i].Tags = tags
		}
	}
	return nil
}
