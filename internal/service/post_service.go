package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"nokoroa/internal/events"
	"nokoroa/internal/featureflags"
	"nokoroa/internal/format"
	"nokoroa/internal/models"
	"nokoroa/internal/normalizer"
	"nokoroa/internal/repository"
	"nokoroa/internal/validation"

	"gorm.io/gorm"
)

// Related-post page bounds.
const (
	DefaultRelatedLimit = 3
	MaxRelatedLimit     = 10
)

const sideEffectTimeout = 5 * time.Second

// FavoritesCounter reports how many users bookmarked a post.
type FavoritesCounter interface {
	CountByPost(ctx context.Context, postID uint) (int64, error)
}

// RelatedIndex is a secondary index of public posts used for related-post
// lookups.
type RelatedIndex interface {
	IndexPost(ctx context.Context, post models.PublicPost) error
	DeletePost(ctx context.Context, id uint) error
	FindRelated(ctx context.Context, postID uint, tags []string, limit int) ([]uint, error)
}

// PostService implements post discovery and the author's post lifecycle.
type PostService struct {
	posts      repository.PostRepository
	tags       repository.TagRepository
	locations  repository.LocationRepository
	normalizer normalizer.Normalizer
	favorites  FavoritesCounter

	events events.Publisher
	index  RelatedIndex
	flags  featureflags.Checker
}

// PostServiceOption configures optional collaborators.
type PostServiceOption func(*PostService)

// WithEvents publishes post lifecycle events through p.
func WithEvents(p events.Publisher) PostServiceOption {
	return func(s *PostService) { s.events = p }
}

// WithRelatedIndex keeps idx in sync and consults it for related posts.
func WithRelatedIndex(idx RelatedIndex) PostServiceOption {
	return func(s *PostService) { s.index = idx }
}

// WithFlags sets the feature-flag source.
func WithFlags(f featureflags.Checker) PostServiceOption {
	return func(s *PostService) { s.flags = f }
}

func NewPostService(
	posts repository.PostRepository,
	tags repository.TagRepository,
	locations repository.LocationRepository,
	norm normalizer.Normalizer,
	favorites FavoritesCounter,
	opts ...PostServiceOption,
) *PostService {
	s := &PostService{
		posts:      posts,
		tags:       tags,
		locations:  locations,
		normalizer: norm,
		favorites:  favorites,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pagination is a requested result window. Out-of-range values are clamped.
type Pagination struct {
	Limit  int
	Offset int
}

func (p Pagination) page() repository.Page {
	return repository.Page{Limit: p.Limit, Offset: p.Offset}.Clamp()
}

type SearchInput struct {
	Query    string
	Tags     []string
	Location string
	AuthorID *uint
	Pagination
}

type SearchByLocationInput struct {
	CenterLat *float64
	CenterLng *float64
	// RadiusKm defaults to 10 km when nil. A given value must be positive and
	// at most validation.MaxRadiusKm.
	RadiusKm *float64
	Query    string
	Pagination
}

type CreatePostInput struct {
	AuthorID   uint
	Title      string
	Content    string
	ImageURL   string
	Location   *string
	Prefecture *string
	Latitude   *float64
	Longitude  *float64
	Tags       []string
	// IsPublic defaults to true.
	IsPublic *bool
}

// UpdatePostInput carries only the fields to change. A nil Tags keeps the
// current tags; an empty slice removes them. An empty Location clears it.
type UpdatePostInput struct {
	UserID     uint
	PostID     uint
	Title      *string
	Content    *string
	ImageURL   *string
	Location   *string
	Prefecture *string
	Latitude   *float64
	Longitude  *float64
	Tags       []string
	IsPublic   *bool
}

type RemovePostInput struct {
	UserID uint
	PostID uint
}

func (s *PostService) FindAll(ctx context.Context, in Pagination) (*models.PostList, error) {
	return s.Search(ctx, SearchInput{Pagination: in})
}

// Search lists public posts matching every supplied filter, newest first.
func (s *PostService) Search(ctx context.Context, in SearchInput) (*models.PostList, error) {
	page := in.page()
	q := repository.StructuredQuery{
		Predicate: repository.Predicate{Keyword: in.Query},
		Tags:      normalizer.CleanTagNames(in.Tags),
		Location:  strings.TrimSpace(in.Location),
		AuthorID:  in.AuthorID,
		Page:      page,
	}
	return s.run(ctx, q, page)
}

// SearchByLocation lists public posts with coordinates. With a center the
// results are limited to the radius and ordered nearest first.
func (s *PostService) SearchByLocation(ctx context.Context, in SearchByLocationInput) (*models.PostList, error) {
	if err := validateCenter(in); err != nil {
		return nil, err
	}
	page := in.page()
	q := repository.GeospatialQuery{
		Predicate: repository.Predicate{Keyword: in.Query},
		CenterLat: in.CenterLat,
		CenterLng: in.CenterLng,
		Page:      page,
	}
	if in.RadiusKm != nil {
		q.RadiusKm = *in.RadiusKm
	}
	return s.run(ctx, q, page)
}

// FindByAuthor lists all of an author's posts, private ones included.
func (s *PostService) FindByAuthor(ctx context.Context, authorID uint, in Pagination) (*models.PostList, error) {
	page := in.page()
	q := repository.StructuredQuery{
		Predicate: repository.Predicate{IncludePrivate: true},
		AuthorID:  &authorID,
		Page:      page,
	}
	return s.run(ctx, q, page)
}

func (s *PostService) run(ctx context.Context, q repository.PostQuery, page repository.Page) (*models.PostList, error) {
	result, err := s.posts.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return format.Page(result.Posts, result.Total, page.Limit, page.Offset), nil
}

// FindOne returns a post with its favorites count.
func (s *PostService) FindOne(ctx context.Context, id uint) (*models.PublicPost, error) {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, id)
	}
	return s.withFavorites(ctx, post)
}

func (s *PostService) GetTags(ctx context.Context) (*models.TagList, error) {
	tags, err := s.tags.Usage(ctx)
	if err != nil {
		return nil, err
	}
	return &models.TagList{Tags: tags, Total: len(tags)}, nil
}

func (s *PostService) GetLocations(ctx context.Context) (*models.LocationList, error) {
	locations, err := s.locations.Usage(ctx)
	if err != nil {
		return nil, err
	}
	return &models.LocationList{Locations: locations, Total: len(locations)}, nil
}

func (s *PostService) Create(ctx context.Context, in CreatePostInput) (*models.PublicPost, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	post := &models.Post{
		Title:    strings.TrimSpace(in.Title),
		Content:  in.Content,
		ImageURL: strings.TrimSpace(in.ImageURL),
		IsPublic: true,
		AuthorID: in.AuthorID,
	}
	if in.IsPublic != nil {
		post.IsPublic = *in.IsPublic
	}

	if in.Location != nil && strings.TrimSpace(*in.Location) != "" {
		loc, err := s.normalizer.ResolveLocation(ctx, normalizer.LocationInput{
			Name:       *in.Location,
			Latitude:   in.Latitude,
			Longitude:  in.Longitude,
			Prefecture: in.Prefecture,
		})
		if err != nil {
			return nil, err
		}
		post.LocationID = &loc.ID
	}

	tagIDs, err := s.resolveTags(ctx, in.Tags)
	if err != nil {
		return nil, err
	}

	if err := s.posts.Create(ctx, post, tagIDs); err != nil {
		return nil, err
	}

	stored, err := s.posts.GetByID(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	out := format.Post(stored)

	s.afterWrite(ctx, events.PostCreated, out)
	return &out, nil
}

func (s *PostService) Update(ctx context.Context, in UpdatePostInput) (*models.PublicPost, error) {
	authorID, err := s.posts.GetAuthorID(ctx, in.PostID)
	if err != nil {
		return nil, notFound(err, in.PostID)
	}
	if authorID != in.UserID {
		return nil, models.NewForbiddenError("You can only update your own posts")
	}
	if err := validateUpdate(in); err != nil {
		return nil, err
	}

	post, err := s.posts.GetByID(ctx, in.PostID)
	if err != nil {
		return nil, notFound(err, in.PostID)
	}

	if in.Title != nil {
		post.Title = strings.TrimSpace(*in.Title)
	}
	if in.Content != nil {
		post.Content = *in.Content
	}
	if in.ImageURL != nil {
		post.ImageURL = strings.TrimSpace(*in.ImageURL)
	}
	if in.IsPublic != nil {
		post.IsPublic = *in.IsPublic
	}
	if err := s.applyLocation(ctx, post, in); err != nil {
		return nil, err
	}

	var tagIDs []uint
	if in.Tags != nil {
		if tagIDs, err = s.resolveTags(ctx, in.Tags); err != nil {
			return nil, err
		}
	}

	if err := s.posts.Update(ctx, post, tagIDs); err != nil {
		return nil, notFound(err, in.PostID)
	}

	stored, err := s.posts.GetByID(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	out, err := s.withFavorites(ctx, stored)
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, events.PostUpdated, *out)
	return out, nil
}

// applyLocation re-resolves the location when any location field is given.
// Coordinates or a prefecture alone apply to the post's current place name.
func (s *PostService) applyLocation(ctx context.Context, post *models.Post, in UpdatePostInput) error {
	touched := in.Location != nil || in.Latitude != nil || in.Longitude != nil || in.Prefecture != nil
	if !touched {
		return nil
	}

	var name string
	switch {
	case in.Location != nil:
		name = strings.TrimSpace(*in.Location)
		if name == "" {
			post.LocationID = nil
			post.Location = nil
			return nil
		}
	case post.Location != nil:
		name = post.Location.Name
	default:
		return models.NewValidationError("location is required when coordinates or prefecture are given")
	}

	lat, lng, prefecture := in.Latitude, in.Longitude, in.Prefecture
	if in.Location == nil && post.Location != nil {
		if lat == nil && lng == nil {
			lat, lng = post.Location.Latitude, post.Location.Longitude
		}
		if prefecture == nil {
			prefecture = post.Location.Prefecture
		}
	}

	loc, err := s.normalizer.ResolveLocation(ctx, normalizer.LocationInput{
		Name:       name,
		Latitude:   lat,
		Longitude:  lng,
		Prefecture: prefecture,
	})
	if err != nil {
		return err
	}
	post.LocationID = &loc.ID
	post.Location = loc
	return nil
}

func (s *PostService) Remove(ctx context.Context, in RemovePostInput) error {
	post, err := s.posts.GetByID(ctx, in.PostID)
	if err != nil {
		return notFound(err, in.PostID)
	}
	if post.AuthorID != in.UserID {
		return models.NewForbiddenError("You can only delete your own posts")
	}

	if err := s.posts.Delete(ctx, in.PostID); err != nil {
		return notFound(err, in.PostID)
	}

	s.afterWrite(ctx, events.PostDeleted, format.Post(post))
	return nil
}

// Related suggests public posts similar to id. It never fails: any error
// yields an empty list.
func (s *PostService) Related(ctx context.Context, id uint, limit int) *models.PostList {
	if limit <= 0 {
		limit = DefaultRelatedLimit
	}
	if limit > MaxRelatedLimit {
		limit = MaxRelatedLimit
	}

	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return format.Empty()
	}

	if s.index != nil && s.flags != nil && s.flags.Enabled(featureflags.RelatedPostsIndex, 0) {
		if list := s.relatedFromIndex(ctx, post, limit); len(list.Posts) > 0 {
			return list
		}
	}

	if post.Location == nil {
		return format.Empty()
	}
	name := post.Location.Name
	for _, q := range []SearchInput{
		{Location: name, Pagination: Pagination{Limit: limit + 1}},
		{Query: name, Pagination: Pagination{Limit: limit + 1}},
	} {
		list, err := s.Search(ctx, q)
		if err != nil {
			slog.WarnContext(ctx, "related posts lookup failed", slog.Uint64("post_id", uint64(id)), slog.String("error", err.Error()))
			return format.Empty()
		}
		if related := excludePost(list.Posts, id, limit); len(related) > 0 {
			return &models.PostList{Posts: related, Total: int64(len(related))}
		}
	}
	return format.Empty()
}

func (s *PostService) relatedFromIndex(ctx context.Context, post *models.Post, limit int) *models.PostList {
	ids, err := s.index.FindRelated(ctx, post.ID, post.TagNames(), limit)
	if err != nil {
		slog.WarnContext(ctx, "related posts index unavailable", slog.Uint64("post_id", uint64(post.ID)), slog.String("error", err.Error()))
		return format.Empty()
	}
	if len(ids) == 0 {
		return format.Empty()
	}

	result, err := s.posts.Query(ctx, repository.StructuredQuery{IDs: ids, Page: repository.Page{Limit: limit}})
	if err != nil {
		slog.WarnContext(ctx, "related posts load failed", slog.Uint64("post_id", uint64(post.ID)), slog.String("error", err.Error()))
		return format.Empty()
	}

	// Keep the index's relevance order.
	rank := make(map[uint]int, len(ids))
	for i, id := range ids {
		rank[id] = i
	}
	ordered := make([]models.PublicPost, len(ids))
	for _, p := range format.Posts(result.Posts) {
		if i, ok := rank[p.ID]; ok {
			ordered[i] = p
		}
	}
	out := make([]models.PublicPost, 0, len(result.Posts))
	for _, p := range ordered {
		if p.ID != 0 {
			out = append(out, p)
		}
	}
	return &models.PostList{Posts: out, Total: int64(len(out))}
}

func excludePost(posts []models.PublicPost, id uint, limit int) []models.PublicPost {
	out := make([]models.PublicPost, 0, limit)
	for _, p := range posts {
		if p.ID == id {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, p)
	}
	return out
}

func (s *PostService) resolveTags(ctx context.Context, names []string) ([]uint, error) {
	tags, err := s.normalizer.ResolveTags(ctx, names)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, len(tags))
	for i, t := range tags {
		ids[i] = t.ID
	}
	return ids, nil
}

func (s *PostService) withFavorites(ctx context.Context, post *models.Post) (*models.PublicPost, error) {
	count, err := s.favorites.CountByPost(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	out := format.Post(post)
	out.FavoritesCount = &count
	return &out, nil
}

// afterWrite publishes the lifecycle event and syncs the related index.
// Failures are logged and never reach the caller.
func (s *PostService) afterWrite(ctx context.Context, t events.Type, post models.PublicPost) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if s.events != nil {
		e := events.NewPostEvent(t, post.ID, post.AuthorID, post.IsPublic)
		if err := s.events.Publish(ctx, e); err != nil {
			slog.WarnContext(ctx, "post event publish failed", slog.String("type", string(t)), slog.Uint64("post_id", uint64(post.ID)), slog.String("error", err.Error()))
		}
	}

	if s.index == nil {
		return
	}
	var err error
	if t == events.PostDeleted {
		err = s.index.DeletePost(ctx, post.ID)
	} else {
		err = s.index.IndexPost(ctx, post)
	}
	if err != nil {
		slog.WarnContext(ctx, "related index sync failed", slog.String("type", string(t)), slog.Uint64("post_id", uint64(post.ID)), slog.String("error", err.Error()))
	}
}

func notFound(err error, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError("Post", id)
	}
	return err
}

func validateCreate(in CreatePostInput) error {
	checks := []error{
		validation.ValidateTitle(in.Title),
		validation.ValidateContent(in.Content),
		validation.ValidateImageURL(in.ImageURL),
		validation.ValidateCoordinates(in.Latitude, in.Longitude),
		validation.ValidateTags(in.Tags),
	}
	if in.Location != nil {
		checks = append(checks, validation.ValidateLocationName(*in.Location))
	}
	return firstValidationError(checks...)
}

func validateUpdate(in UpdatePostInput) error {
	var checks []error
	if in.Title != nil {
		checks = append(checks, validation.ValidateTitle(*in.Title))
	}
	if in.Content != nil {
		checks = append(checks, validation.ValidateContent(*in.Content))
	}
	if in.ImageURL != nil {
		checks = append(checks, validation.ValidateImageURL(*in.ImageURL))
	}
	if in.Location != nil {
		checks = append(checks, validation.ValidateLocationName(*in.Location))
	}
	checks = append(checks,
		validation.ValidateCoordinates(in.Latitude, in.Longitude),
		validation.ValidateTags(in.Tags),
	)
	return firstValidationError(checks...)
}

func validateCenter(in SearchByLocationInput) error {
	checks := []error{validation.ValidateCoordinates(in.CenterLat, in.CenterLng)}
	if in.RadiusKm != nil {
		checks = append(checks, validation.ValidateRadius(*in.RadiusKm))
	}
	return firstValidationError(checks...)
}

func firstValidationError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return models.NewValidationError(err.Error())
		}
	}
	return nil
}
