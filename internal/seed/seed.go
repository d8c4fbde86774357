// Package seed fills a database with demo travel posts for development and
// testing: fixture users, Japanese landmarks with their prefectures, tagged
// posts and bookmarks.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"nokoroa/internal/models"
	"nokoroa/internal/repository"
	"nokoroa/internal/service"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Options configures a seeding run.
type Options struct {
	// Users is the total number of accounts, fixture users included.
	Users int
	// Posts is the number of generated posts on top of one curated post per landmark.
	Posts            int
	BookmarksPerUser int
	// PrivateEvery makes roughly one in N generated posts private. Zero keeps all public.
	PrivateEvery int
	SkipBcrypt   bool
	RandSeed     int64
}

// DefaultOptions is what cmd/seed and SEED_ON_START use.
func DefaultOptions() Options {
	return Options{
		Users:            10,
		Posts:            40,
		BookmarksPerUser: 3,
		PrivateEvery:     8,
		RandSeed:         time.Now().UnixNano(),
	}
}

// PostCreator stores posts the same way the API does, so locations and tags
// are normalized.
type PostCreator interface {
	Create(ctx context.Context, in service.CreatePostInput) (*models.PublicPost, error)
}

// Summary counts what a run created.
type Summary struct {
	Users     int
	Posts     int
	Bookmarks int
}

// Seeder writes demo data.
type Seeder struct {
	db    *gorm.DB
	posts PostCreator
	users repository.UserRepository
	opts  Options
}

// NewSeeder returns a Seeder that writes posts through posts.
func NewSeeder(db *gorm.DB, posts PostCreator, opts Options) *Seeder {
	return &Seeder{db: db, posts: posts, users: repository.NewUserRepository(db), opts: opts}
}

// ClearAll deletes every discovery row, children first.
func (s *Seeder) ClearAll(ctx context.Context) error {
	tx := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, m := range []any{&models.Bookmark{}, &models.PostTag{}, &models.Post{}, &models.Tag{}, &models.Location{}, &models.User{}} {
		if err := tx.Delete(m).Error; err != nil {
			return fmt.Errorf("clear %T: %w", m, err)
		}
	}
	slog.InfoContext(ctx, "seed data cleared")
	return nil
}

// Run creates users, one curated post per landmark, generated posts and
// bookmarks. Fixture users that already exist are reused.
func (s *Seeder) Run(ctx context.Context) (*Summary, error) {
	fixtures, err := LoadFixtures()
	if err != nil {
		return nil, err
	}
	factory, err := NewFactory(s.users, s.opts)
	if err != nil {
		return nil, err
	}

	users, err := s.seedUsers(ctx, factory, fixtures.Users)
	if err != nil {
		return nil, err
	}
	summary := &Summary{Users: len(users)}

	var public []uint
	create := func(in service.CreatePostInput) error {
		post, err := s.posts.Create(ctx, in)
		if err != nil {
			return fmt.Errorf("create post %q: %w", in.Title, err)
		}
		summary.Posts++
		if post.IsPublic {
			public = append(public, post.ID)
		}
		return nil
	}

	for i, l := range fixtures.Landmarks {
		if err := create(LandmarkPost(users[i%len(users)].ID, l)); err != nil {
			return nil, err
		}
	}
	if len(fixtures.Landmarks) > 0 {
		for range s.opts.Posts {
			author := users[factory.pick(len(users))].ID
			l := fixtures.Landmarks[factory.pick(len(fixtures.Landmarks))]
			if err := create(factory.RandomPost(author, l)); err != nil {
				return nil, err
			}
		}
	}

	summary.Bookmarks, err = s.seedBookmarks(ctx, factory, users, public)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "seed complete",
		slog.Int("users", summary.Users),
		slog.Int("posts", summary.Posts),
		slog.Int("bookmarks", summary.Bookmarks))
	return summary, nil
}

func (s *Seeder) seedUsers(ctx context.Context, factory *Factory, fixtures []FixtureUser) ([]*models.User, error) {
	total := max(s.opts.Users, 1)
	users := make([]*models.User, 0, total)

	for _, fu := range fixtures {
		if len(users) == total {
			break
		}
		existing, err := s.users.GetByEmail(ctx, fu.Email)
		switch {
		case err == nil:
			users = append(users, existing)
			continue
		case models.StatusFor(err) != http.StatusNotFound:
			return nil, err
		}
		u, err := factory.CreateUser(ctx, fu)
		if err != nil {
			return nil, fmt.Errorf("create fixture user %s: %w", fu.Email, err)
		}
		users = append(users, u)
	}

	for len(users) < total {
		u, err := factory.CreateUser(ctx, FixtureUser{})
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *Seeder) seedBookmarks(ctx context.Context, factory *Factory, users []*models.User, postIDs []uint) (int, error) {
	if len(postIDs) == 0 || s.opts.BookmarksPerUser <= 0 {
		return 0, nil
	}

	var rows []models.Bookmark
	for _, u := range users {
		seen := make(map[uint]bool)
		for range min(s.opts.BookmarksPerUser, len(postIDs)) {
			id := postIDs[factory.pick(len(postIDs))]
			if seen[id] {
				continue
			}
			seen[id] = true
			rows = append(rows, models.Bookmark{UserID: u.ID, PostID: id})
		}
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	if result.Error != nil {
		return 0, fmt.Errorf("create bookmarks: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}
