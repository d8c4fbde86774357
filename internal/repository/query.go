package repository

import (
	"context"
	"strings"

	"nokoroa/internal/models"

	"gorm.io/gorm"
)

// Query strategies.
const (
	StrategyStructured = "structured"
	StrategyGeospatial = "geospatial"
)

// Pagination bounds for discovery queries.
const (
	DefaultLimit = 10
	MaxLimit     = 50
)

// Page selects a window of results.
type Page struct {
	Limit  int
	Offset int
}

// Clamp returns p with the limit bounded to [1, MaxLimit] (DefaultLimit when
// unset) and a non-negative offset.
func (p Page) Clamp() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// PostPage is one page of posts plus the number of matches ignoring pagination.
type PostPage struct {
	Posts []models.Post
	Total int64
}

// PostQuery is a discovery query the repository can execute.
type PostQuery interface {
	Run(ctx context.Context, db *gorm.DB) (*PostPage, error)
	Strategy() string
}

// Predicate holds the visibility and keyword filters shared by every
// discovery strategy.
type Predicate struct {
	// Keyword is matched case-insensitively as a substring.
	Keyword string
	// IncludePrivate lifts the public-only restriction.
	IncludePrivate bool
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern turns a keyword into a lowercase LIKE pattern matching it as a
// literal substring.
func likePattern(keyword string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(keyword)) + "%"
}

// SQL renders the predicate as a WHERE fragment. visibility is the
// qualified is_public column; the keyword matches any of columns. An empty
// fragment means no restriction.
func (p Predicate) SQL(visibility string, columns ...string) (string, []any) {
	var (
		parts []string
		args  []any
	)

	if !p.IncludePrivate {
		parts = append(parts, visibility+" = ?")
		args = append(args, true)
	}

	if kw := strings.TrimSpace(p.Keyword); kw != "" && len(columns) > 0 {
		pattern := likePattern(kw)
		ors := make([]string, len(columns))
		for i, col := range columns {
			ors[i] = "LOWER(" + col + `) LIKE ? ESCAPE '\'`
			args = append(args, pattern)
		}
		parts = append(parts, "("+strings.Join(ors, " OR ")+")")
	}

	return strings.Join(parts, " AND "), args
}
