// Package normalizer resolves free-form location and tag strings to shared,
// deduplicated reference rows.
package normalizer

import (
	"context"
	"fmt"
	"strings"

	"nokoroa/internal/models"
	"nokoroa/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LocationInput describes a place as supplied by a post author.
type LocationInput struct {
	Name       string
	Latitude   *float64
	Longitude  *float64
	Prefecture *string
}

// Normalizer resolves location and tag strings, creating rows on first use.
type Normalizer interface {
	ResolveLocation(ctx context.Context, in LocationInput) (*models.Location, error)
	ResolveTags(ctx context.Context, names []string) ([]models.Tag, error)
}

type normalizer struct {
	db *gorm.DB
}

// New returns a Normalizer backed by db. Get-or-create is a single
// INSERT ... ON CONFLICT DO NOTHING on the identity key followed by a read,
// so concurrent writers converge on one row.
func New(db *gorm.DB) Normalizer {
	return &normalizer{db: db}
}

// ResolveLocation returns the location identified by name, or by name and
// coordinates when both are supplied. Prefecture only applies when the row is
// first created.
func (n *normalizer) ResolveLocation(ctx context.Context, in LocationInput) (*models.Location, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, models.NewValidationError("location name must not be empty")
	}

	lat, lng := in.Latitude, in.Longitude
	if lat == nil || lng == nil {
		// A single coordinate cannot identify a point.
		lat, lng = nil, nil
	}

	loc := models.Location{
		Name:       name,
		Latitude:   lat,
		Longitude:  lng,
		Prefecture: in.Prefecture,
		LookupKey:  models.LocationKey(name, lat, lng),
	}

	defer observability.TrackQuery("resolve", "locations")()
	db := n.db.WithContext(ctx)

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "lookup_key"}},
		DoNothing: true,
	}).Create(&loc)
	if res.Error != nil {
		return nil, fmt.Errorf("insert location %q: %w", name, res.Error)
	}
	if res.RowsAffected > 0 {
		observability.NormalizerEntities.WithLabelValues("location").Inc()
	}

	var stored models.Location
	if err := db.Where("lookup_key = ?", loc.LookupKey).Take(&stored).Error; err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return &stored, nil
}

// ResolveTags returns one tag per distinct, non-blank name, in the order the
// names were given. Missing tags are created with a slug derived once here.
func (n *normalizer) ResolveTags(ctx context.Context, names []string) ([]models.Tag, error) {
	cleaned := CleanTagNames(names)
	if len(cleaned) == 0 {
		return []models.Tag{}, nil
	}

	rows := make([]models.Tag, len(cleaned))
	for i, name := range cleaned {
		rows[i] = models.Tag{Name: name, Slug: Slugify(name)}
	}

	defer observability.TrackQuery("resolve", "tags")()
	db := n.db.WithContext(ctx)

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&rows)
	if res.Error != nil {
		return nil, fmt.Errorf("insert tags: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		observability.NormalizerEntities.WithLabelValues("tag").Add(float64(res.RowsAffected))
	}

	var stored []models.Tag
	if err := db.Where("name IN ?", cleaned).Find(&stored).Error; err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}

	byName := make(map[string]models.Tag, len(stored))
	for _, t := range stored {
		byName[t.Name] = t
	}
	out := make([]models.Tag, 0, len(cleaned))
	for _, name := range cleaned {
		t, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("tag %q missing after insert", name)
		}
		out = append(out, t)
	}
	return out, nil
}

// CleanTagNames trims names, drops blanks and keeps the first occurrence of
// each duplicate.
func CleanTagNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
