package seed

import (
	"context"
	"fmt"
	"strings"

	"nokoroa/internal/models"
	"nokoroa/internal/repository"
	"nokoroa/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
)

// DefaultPassword is the password every seeded account gets.
const DefaultPassword = "password123"

// extraTags are mixed into generated posts so tag search has overlap across
// landmarks.
var extraTags = []string{"日本旅行", "絶景", "グルメ", "温泉", "写真", "週末旅", "一人旅", "歴史"}

// Factory builds users and post inputs. Content comes from a seeded faker so
// runs with the same seed produce the same data.
type Factory struct {
	users  repository.UserRepository
	faker  *gofakeit.Faker
	opts   Options
	hashed string
}

// NewFactory returns a Factory writing users through users.
func NewFactory(users repository.UserRepository, opts Options) (*Factory, error) {
	f := &Factory{users: users, faker: gofakeit.New(opts.RandSeed), opts: opts}

	if opts.SkipBcrypt {
		f.hashed = DefaultPassword
		return f, nil
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}
	f.hashed = string(hashed)
	return f, nil
}

// CreateUser persists a user. Zero fields of base are filled with fake data.
func (f *Factory) CreateUser(ctx context.Context, base FixtureUser) (*models.User, error) {
	user := &models.User{
		Name:     base.Name,
		Email:    strings.ToLower(strings.TrimSpace(base.Email)),
		Password: f.hashed,
	}
	if user.Name == "" {
		user.Name = f.faker.Name()
	}
	if user.Email == "" {
		user.Email = fmt.Sprintf("%s.%d@example.com", strings.ToLower(f.faker.Username()), f.faker.Number(1000, 9999))
	}
	avatar := base.Avatar
	if avatar == "" {
		avatar = fmt.Sprintf("https://i.pravatar.cc/150?u=%s", f.faker.UUID())
	}
	user.Avatar = &avatar

	if err := f.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// LandmarkPost is the curated post for l.
func LandmarkPost(author uint, l Landmark) service.CreatePostInput {
	return service.CreatePostInput{
		AuthorID:   author,
		Title:      l.Post.Title,
		Content:    l.Post.Content,
		ImageURL:   l.Post.Image,
		Location:   ptr(l.Name),
		Prefecture: ptr(l.Prefecture),
		Latitude:   ptr(l.Latitude),
		Longitude:  ptr(l.Longitude),
		Tags:       l.Post.Tags,
		IsPublic:   ptr(true),
	}
}

// RandomPost builds a generated post at l. About one in PrivateEvery posts
// is private.
func (f *Factory) RandomPost(author uint, l Landmark) service.CreatePostInput {
	tags := []string{l.Name}
	if len(l.Post.Tags) > 0 {
		tags = append(tags, l.Post.Tags[f.faker.Number(0, len(l.Post.Tags)-1)])
	}
	tags = append(tags, extraTags[f.faker.Number(0, len(extraTags)-1)])

	isPublic := true
	if f.opts.PrivateEvery > 0 && f.faker.Number(1, f.opts.PrivateEvery) == 1 {
		isPublic = false
	}

	return service.CreatePostInput{
		AuthorID:   author,
		Title:      fmt.Sprintf("%s: %s", l.Name, strings.TrimSuffix(f.faker.Sentence(4), ".")),
		Content:    f.faker.Paragraph(1, 3, 8, "\n"),
		ImageURL:   fmt.Sprintf("https://picsum.photos/seed/%s/800/600", f.faker.UUID()),
		Location:   ptr(l.Name),
		Prefecture: ptr(l.Prefecture),
		Latitude:   ptr(l.Latitude),
		Longitude:  ptr(l.Longitude),
		Tags:       tags,
		IsPublic:   &isPublic,
	}
}

// pick returns an index in [0, n).
func (f *Factory) pick(n int) int {
	return f.faker.Number(0, n-1)
}

func ptr[T any](v T) *T { return &v }
