package normalizer

import (
	"regexp"
	"strings"
)

var (
	// \p{Z} adds the Unicode spaces \s misses, such as U+3000 and NBSP.
	slugDisallowed = regexp.MustCompile(`[^a-z0-9\s\p{Z}-]`)
	slugSeparators = regexp.MustCompile(`[\s\p{Z}_-]+`)
)

// Slugify derives the URL slug of a tag name: lowercase, drop anything
// outside [a-z0-9], whitespace and hyphens, collapse separator runs to a
// single hyphen and trim hyphens from both ends. Names with no ASCII
// alphanumerics (for example Japanese tags) fall back to the lowercased name.
func Slugify(name string) string {
	lower := strings.ToLower(name)
	slug := slugDisallowed.ReplaceAllString(lower, "")
	slug = slugSeparators.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return lower
	}
	return slug
}
