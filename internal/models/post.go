// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// Post is a travel record published by a user.
type Post struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Title      string    `gorm:"not null" json:"title"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	ImageURL   string    `gorm:"not null" json:"imageUrl"`
	IsPublic   bool      `gorm:"not null;index" json:"isPublic"`
	AuthorID   uint      `gorm:"not null;index" json:"authorId"`
	Author     User      `gorm:"foreignKey:AuthorID" json:"author"`
	LocationID *uint     `gorm:"index" json:"locationId"`
	Location   *Location `gorm:"foreignKey:LocationID;constraint:OnDelete:SET NULL" json:"location,omitempty"`
	Tags       []PostTag `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"tags,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	// Distance is only populated by radius searches.
	Distance *float64 `gorm:"-" json:"distance,omitempty"`
}

// TableName specifies the table name for GORM.
func (Post) TableName() string {
	return "posts"
}

// TagNames returns the linked tag names in link order.
func (p *Post) TagNames() []string {
	names := make([]string, 0, len(p.Tags))
	for _, link := range p.Tags {
		if link.Tag.Name == "" {
			continue
		}
		names = append(names, link.Tag.Name)
	}
	return names
}

// PostTag links a post to a tag. Position keeps the order tags were supplied in.
type PostTag struct {
	PostID   uint `gorm:"primaryKey;autoIncrement:false" json:"postId"`
	TagID    uint `gorm:"primaryKey;autoIncrement:false;index" json:"tagId"`
	Position int  `gorm:"not null;default:0" json:"position"`
	Tag      Tag  `gorm:"foreignKey:TagID" json:"tag"`
}

// TableName specifies the table name for GORM.
func (PostTag) TableName() string {
	return "post_tags"
}
