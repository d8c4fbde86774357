package repository

import (
	"testing"
	"time"

	"nokoroa/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func ptr[T any](v T) *T { return &v }

type fixture struct {
	t  *testing.T
	db *gorm.DB
}

func (f fixture) user(name string) *models.User {
	f.t.Helper()
	u := &models.User{Name: name, Email: name + "@example.com", Password: "x"}
	require.NoError(f.t, f.db.Create(u).Error)
	return u
}

func (f fixture) location(name string, lat, lng *float64) *models.Location {
	f.t.Helper()
	loc := &models.Location{Name: name, Latitude: lat, Longitude: lng, LookupKey: models.LocationKey(name, lat, lng)}
	require.NoError(f.t, f.db.Create(loc).Error)
	return loc
}

func (f fixture) tag(name string) *models.Tag {
	f.t.Helper()
	tag := &models.Tag{Name: name, Slug: name}
	require.NoError(f.t, f.db.Create(tag).Error)
	return tag
}

type postOpt func(*models.Post)

func private() postOpt { return func(p *models.Post) { p.IsPublic = false } }

func at(loc *models.Location) postOpt {
	return func(p *models.Post) { p.LocationID = &loc.ID }
}

func createdAt(ts time.Time) postOpt {
	return func(p *models.Post) { p.CreatedAt = ts; p.UpdatedAt = ts }
}

func (f fixture) post(repo PostRepository, author *models.User, title string, tagIDs []uint, opts ...postOpt) *models.Post {
	f.t.Helper()
	p := &models.Post{Title: title, Content: title + " content", IsPublic: true, AuthorID: author.ID}
	for _, opt := range opts {
		opt(p)
	}
	require.NoError(f.t, repo.Create(f.t.Context(), p, tagIDs))
	return p
}

func titles(posts []models.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.Title
	}
	return out
}
