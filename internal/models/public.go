package models

import "time"

// PublicAuthor is the author projection exposed with every post.
type PublicAuthor struct {
	ID     uint    `json:"id"`
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	Avatar *string `json:"avatar"`
}

// PublicPost is the flattened, client-facing shape of a post.
type PublicPost struct {
	ID             uint         `json:"id"`
	Title          string       `json:"title"`
	Content        string       `json:"content"`
	ImageURL       string       `json:"imageUrl"`
	IsPublic       bool         `json:"isPublic"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
	AuthorID       uint         `json:"authorId"`
	LocationID     *uint        `json:"locationId"`
	Location       *string      `json:"location"`
	Prefecture     *string      `json:"prefecture"`
	Latitude       *float64     `json:"latitude"`
	Longitude      *float64     `json:"longitude"`
	Tags           []string     `json:"tags"`
	Author         PublicAuthor `json:"author"`
	Distance       *float64     `json:"distance,omitempty"`
	FavoritesCount *int64       `json:"favoritesCount,omitempty"`
}

// PostList is the paginated envelope returned by list operations.
type PostList struct {
	Posts   []PublicPost `json:"posts"`
	Total   int64        `json:"total"`
	HasMore bool         `json:"hasMore"`
}

// TagCount is a tag with the number of posts using it.
type TagCount struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Count int64  `json:"count"`
}

// TagList wraps tag usage results.
type TagList struct {
	Tags  []TagCount `json:"tags"`
	Total int        `json:"total"`
}

// LocationCount is a location with the number of posts referencing it.
type LocationCount struct {
	Name       string   `json:"name"`
	Prefecture *string  `json:"prefecture"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	Count      int64    `json:"count"`
}

// LocationList wraps location usage results.
type LocationList struct {
	Locations []LocationCount `json:"locations"`
	Total     int             `json:"total"`
}
