// Package validation holds request-boundary checks for post payloads and
// discovery filters.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Limits enforced on post payloads.
const (
	MaxTitleLength    = 200
	MaxLocationLength = 255
	MaxTagLength      = 100
	MaxTags           = 20
	MaxRadiusKm       = 20037.5
)

// ValidateTitle checks a post title.
func ValidateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return fmt.Errorf("title must be at most %d characters", MaxTitleLength)
	}
	return nil
}

// ValidateContent checks a post body.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("content is required")
	}
	return nil
}

// ValidateImageURL checks the image reference. Uploads happen elsewhere, so
// only presence is enforced.
func ValidateImageURL(url string) error {
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("imageUrl is required")
	}
	return nil
}

// ValidateLocationName checks a free-form location string.
func ValidateLocationName(name string) error {
	if utf8.RuneCountInString(strings.TrimSpace(name)) > MaxLocationLength {
		return fmt.Errorf("location must be at most %d characters", MaxLocationLength)
	}
	return nil
}

// ValidateCoordinates checks optional latitude and longitude values. They
// must be given together; a single coordinate cannot place a post.
func ValidateCoordinates(lat, lng *float64) error {
	if (lat == nil) != (lng == nil) {
		return fmt.Errorf("latitude and longitude must be given together")
	}
	if lat != nil && (*lat < -90 || *lat > 90) {
		return fmt.Errorf("latitude must be between -90 and 90")
	}
	if lng != nil && (*lng < -180 || *lng > 180) {
		return fmt.Errorf("longitude must be between -180 and 180")
	}
	return nil
}

// ValidateTags checks a tag list before normalization.
func ValidateTags(tags []string) error {
	if len(tags) > MaxTags {
		return fmt.Errorf("at most %d tags are allowed", MaxTags)
	}
	for _, tag := range tags {
		if utf8.RuneCountInString(strings.TrimSpace(tag)) > MaxTagLength {
			return fmt.Errorf("tags must be at most %d characters", MaxTagLength)
		}
	}
	return nil
}

// ValidatePage checks raw pagination values.
func ValidatePage(limit, offset, maxLimit int) error {
	if limit < 1 || limit > maxLimit {
		return fmt.Errorf("limit must be between 1 and %d", maxLimit)
	}
	if offset < 0 {
		return fmt.Errorf("offset must not be negative")
	}
	return nil
}

// ValidateRadius checks a search radius in kilometers.
func ValidateRadius(radius float64) error {
	if radius <= 0 || radius > MaxRadiusKm {
		return fmt.Errorf("radius must be greater than 0 and at most %g", MaxRadiusKm)
	}
	return nil
}
