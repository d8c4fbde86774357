package models

import (
	"strconv"
	"time"
)

// Location is a shared, deduplicated place referenced by posts.
type Location struct {
	ID         uint     `gorm:"primaryKey" json:"id"`
	Name       string   `gorm:"size:255;not null;index" json:"name"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	Prefecture *string  `gorm:"size:100" json:"prefecture"`
	// LookupKey is the identity of the row: the name alone, or the name plus
	// both coordinates when they are known.
	LookupKey string    `gorm:"size:320;not null;uniqueIndex" json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName specifies the table name for GORM.
func (Location) TableName() string {
	return "locations"
}

// LocationKey builds the identity key for a location: "n:<name>" without
// coordinates, "c:<name>|<lat>|<lng>" when both are present. The kind prefix
// keeps a name that itself contains "|" from matching a placed location.
func LocationKey(name string, lat, lng *float64) string {
	if lat == nil || lng == nil {
		return "n:" + name
	}
	return "c:" + name + "|" + strconv.FormatFloat(*lat, 'f', -1, 64) + "|" + strconv.FormatFloat(*lng, 'f', -1, 64)
}

// Tag is a shared label. Slug is derived once when the tag is first created.
type Tag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Slug      string    `gorm:"size:120;not null;index" json:"slug"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName specifies the table name for GORM.
func (Tag) TableName() string {
	return "tags"
}
