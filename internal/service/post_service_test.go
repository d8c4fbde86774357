package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"nokoroa/internal/events"
	"nokoroa/internal/featureflags"
	"nokoroa/internal/models"
	"nokoroa/internal/normalizer"
	"nokoroa/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type postRepoStub struct {
	createFn      func(ctx context.Context, post *models.Post, tagIDs []uint) error
	getByIDFn     func(ctx context.Context, id uint) (*models.Post, error)
	getAuthorIDFn func(ctx context.Context, id uint) (uint, error)
	updateFn      func(ctx context.Context, post *models.Post, tagIDs []uint) error
	deleteFn      func(ctx context.Context, id uint) error
	queryFn       func(ctx context.Context, q repository.PostQuery) (*repository.PostPage, error)
}

func (s *postRepoStub) Create(ctx context.Context, post *models.Post, tagIDs []uint) error {
	if s.createFn == nil {
		panic("unexpected call to Create")
	}
	return s.createFn(ctx, post, tagIDs)
}

func (s *postRepoStub) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	if s.getByIDFn == nil {
		panic("unexpected call to GetByID")
	}
	return s.getByIDFn(ctx, id)
}

func (s *postRepoStub) GetAuthorID(ctx context.Context, id uint) (uint, error) {
	if s.getAuthorIDFn == nil {
		panic("unexpected call to GetAuthorID")
	}
	return s.getAuthorIDFn(ctx, id)
}

func (s *postRepoStub) Update(ctx context.Context, post *models.Post, tagIDs []uint) error {
	if s.updateFn == nil {
		panic("unexpected call to Update")
	}
	return s.updateFn(ctx, post, tagIDs)
}

func (s *postRepoStub) Delete(ctx context.Context, id uint) error {
	if s.deleteFn == nil {
		panic("unexpected call to Delete")
	}
	return s.deleteFn(ctx, id)
}

func (s *postRepoStub) Query(ctx context.Context, q repository.PostQuery) (*repository.PostPage, error) {
	if s.queryFn == nil {
		panic("unexpected call to Query")
	}
	return s.queryFn(ctx, q)
}

type tagRepoStub struct {
	tags []models.TagCount
	err  error
}

func (s tagRepoStub) Usage(context.Context) ([]models.TagCount, error) { return s.tags, s.err }

type locationRepoStub struct {
	locations []models.LocationCount
	err       error
}

func (s locationRepoStub) Usage(context.Context) ([]models.LocationCount, error) {
	return s.locations, s.err
}

type normalizerStub struct {
	locations []normalizer.LocationInput
	tagCalls  [][]string
	err       error
}

func (s *normalizerStub) ResolveLocation(_ context.Context, in normalizer.LocationInput) (*models.Location, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.locations = append(s.locations, in)
	return &models.Location{ID: uint(len(s.locations)) + 40, Name: in.Name, Latitude: in.Latitude, Longitude: in.Longitude}, nil
}

func (s *normalizerStub) ResolveTags(_ context.Context, names []string) ([]models.Tag, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tagCalls = append(s.tagCalls, names)
	out := make([]models.Tag, 0, len(names))
	for i, n := range normalizer.CleanTagNames(names) {
		out = append(out, models.Tag{ID: uint(100 + i), Name: n})
	}
	return out, nil
}

type favoritesStub struct {
	count int64
	err   error
}

func (s favoritesStub) CountByPost(context.Context, uint) (int64, error) { return s.count, s.err }

type publisherStub struct {
	published []events.PostEvent
	err       error
}

func (p *publisherStub) Publish(_ context.Context, e events.PostEvent) error {
	p.published = append(p.published, e)
	return p.err
}

func (p *publisherStub) Close() error { return nil }

type indexStub struct {
	indexed []uint
	deleted []uint
	related []uint
	err     error
}

func (s *indexStub) IndexPost(_ context.Context, post models.PublicPost) error {
	s.indexed = append(s.indexed, post.ID)
	return s.err
}

func (s *indexStub) DeletePost(_ context.Context, id uint) error {
	s.deleted = append(s.deleted, id)
	return s.err
}

func (s *indexStub) FindRelated(context.Context, uint, []string, int) ([]uint, error) {
	return s.related, s.err
}

func ptr[T any](v T) *T { return &v }

func storedPost(id, authorID uint) *models.Post {
	return &models.Post{
		ID:       id,
		Title:    "Kinkaku-ji",
		Content:  "Golden pavilion",
		ImageURL: "https://img.example/kinkaku.jpg",
		IsPublic: true,
		AuthorID: authorID,
		Author:   models.User{ID: authorID, Name: "haru", Email: "haru@example.com"},
	}
}

func pageOf(posts ...models.Post) *repository.PostPage {
	return &repository.PostPage{Posts: posts, Total: int64(len(posts))}
}

func newTestService(repo *postRepoStub, opts ...PostServiceOption) (*PostService, *normalizerStub) {
	norm := &normalizerStub{}
	return NewPostService(repo, tagRepoStub{}, locationRepoStub{}, norm, favoritesStub{count: 2}, opts...), norm
}

func TestPostService_SearchBuildsStructuredQuery(t *testing.T) {
	var got repository.StructuredQuery
	repo := &postRepoStub{queryFn: func(_ context.Context, q repository.PostQuery) (*repository.PostPage, error) {
		got = q.(repository.StructuredQuery)
		return &repository.PostPage{Posts: []models.Post{*storedPost(1, 1)}, Total: 51}, nil
	}}
	svc, _ := newTestService(repo)

	list, err := svc.Search(context.Background(), SearchInput{
		Query:      "temple",
		Tags:       []string{" travel ", "food", "travel", ""},
		Location:   " 京都駅 ",
		Pagination: Pagination{Limit: 500, Offset: -3},
	})
	require.NoError(t, err)

	assert.Equal(t, "temple", got.Keyword)
	assert.False(t, got.IncludePrivate)
	assert.Equal(t, []string{"travel", "food"}, got.Tags)
	assert.Equal(t, "京都駅", got.Location)
	assert.Equal(t, repository.Page{Limit: repository.MaxLimit, Offset: 0}, got.Page)

	assert.Len(t, list.Posts, 1)
	assert.Equal(t, int64(51), list.Total)
	assert.True(t, list.HasMore)
}

func TestPostService_FindAllDefaults(t *testing.T) {
	var got repository.StructuredQuery
	repo := &postRepoStub{queryFn: func(_ context.Context, q repository.PostQuery) (*repository.PostPage, error) {
		got = q.(repository.StructuredQuery)
		return &repository.PostPage{Posts: []models.Post{}, Total: 10}, nil
	}}
	svc, _ := newTestService(repo)

	list, err := svc.FindAll(context.Background(), Pagination{})
	require.NoError(t, err)
	assert.Equal(t, repository.DefaultLimit, got.Page.Limit)
	assert.Equal(t, repository.StrategyStructured, got.Strategy())
	assert.False(t, list.HasMore)
	assert.NotNil(t, list.Posts)
}

func TestPostService_SearchByLocationBuildsGeospatialQuery(t *testing.T) {
	var got repository.GeospatialQuery
	repo := &postRepoStub{queryFn: func(_ context.Context, q repository.PostQuery) (*repository.PostPage, error) {
		got = q.(repository.GeospatialQuery)
		p := storedPost(3, 1)
		p.Distance = ptr(1.5)
		return pageOf(*p), nil
	}}
	svc, _ := newTestService(repo)

	list, err := svc.SearchByLocation(context.Background(), SearchByLocationInput{
		CenterLat:  ptr(35.6762),
		CenterLng:  ptr(139.6503),
		RadiusKm:   ptr(5.0),
		Query:      "shrine",
		Pagination: Pagination{Limit: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 5.0, got.RadiusKm)
	assert.Equal(t, "shrine", got.Keyword)
	assert.Equal(t, 5, got.Page.Limit)
	require.Len(t, list.Posts, 1)
	assert.Equal(t, 1.5, *list.Posts[0].Distance)
}

func TestPostService_SearchByLocationRejectsBadCenter(t *testing.T) {
	repo := &postRepoStub{queryFn: func(context.Context, repository.PostQuery) (*repository.PostPage, error) {
		t.Fatal("query must not run")
		return nil, nil
	}}
	svc, _ := newTestService(repo)

	cases := map[string]SearchByLocationInput{
		"zero radius":     {CenterLat: ptr(35.0), CenterLng: ptr(139.0), RadiusKm: ptr(0.0)},
		"negative radius": {CenterLat: ptr(35.0), CenterLng: ptr(139.0), RadiusKm: ptr(-3.0)},
		"lone latitude":   {CenterLat: ptr(35.0)},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.SearchByLocation(context.Background(), in)
			var appErr *models.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, models.CodeValidation, appErr.Code)
		})
	}
}

func TestPostService_FindByAuthorIncludesPrivate(t *testing.T) {
	var got repository.StructuredQuery
	repo := &postRepoStub{queryFn: func(_ context.Context, q repository.PostQuery) (*repository.PostPage, error) {
		got = q.(repository.StructuredQuery)
		return pageOf(), nil
	}}
	svc, _ := newTestService(repo)

	_, err := svc.FindByAuthor(context.Background(), 9, Pagination{Limit: 20})
	require.NoError(t, err)
	assert.True(t, got.IncludePrivate)
	require.NotNil(t, got.AuthorID)
	assert.Equal(t, uint(9), *got.AuthorID)
}

func TestPostService_QueryErrorPropagates(t *testing.T) {
	boom := errors.New("connection refused")
	repo := &postRepoStub{queryFn: func(context.Context, repository.PostQuery) (*repository.PostPage, error) {
		return nil, boom
	}}
	svc, _ := newTestService(repo)

	_, err := svc.FindAll(context.Background(), Pagination{})
	assert.ErrorIs(t, err, boom)
}

func TestPostService_FindOne(t *testing.T) {
	repo := &postRepoStub{getByIDFn: func(_ context.Context, id uint) (*models.Post, error) {
		if id == 404 {
			return nil, gorm.ErrRecordNotFound
		}
		p := storedPost(id, 1)
		p.IsPublic = false
		return p, nil
	}}
	svc, _ := newTestService(repo)

	post, err := svc.FindOne(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint(7), post.ID)
	require.NotNil(t, post.FavoritesCount)
	assert.Equal(t, int64(2), *post.FavoritesCount)

	_, err = svc.FindOne(context.Background(), 404)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeNotFound, appErr.Code)
}

func TestPostService_GetTagsAndLocations(t *testing.T) {
	svc := NewPostService(&postRepoStub{},
		tagRepoStub{tags: []models.TagCount{{Name: "food", Slug: "food", Count: 3}}},
		locationRepoStub{locations: []models.LocationCount{{Name: "東京駅", Count: 1}}},
		&normalizerStub{}, favoritesStub{})

	tags, err := svc.GetTags(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tags.Total)
	assert.Equal(t, "food", tags.Tags[0].Name)

	locations, err := svc.GetLocations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, locations.Total)
}

func TestPostService_Create(t *testing.T) {
	var (
		created *models.Post
		linked  []uint
	)
	repo := &postRepoStub{
		createFn: func(_ context.Context, post *models.Post, tagIDs []uint) error {
			post.ID = 12
			created, linked = post, tagIDs
			return nil
		},
		getByIDFn: func(_ context.Context, id uint) (*models.Post, error) {
			p := *created
			p.Author = models.User{ID: p.AuthorID, Name: "haru"}
			return &p, nil
		},
	}
	pub := &publisherStub{}
	idx := &indexStub{}
	svc, norm := newTestService(repo, WithEvents(pub), WithRelatedIndex(idx))

	out, err := svc.Create(context.Background(), CreatePostInput{
		AuthorID:  3,
		Title:     "  Tokyo Station  ",
		Content:   "Red brick",
		ImageURL:  "https://img.example/tokyo.jpg",
		Location:  ptr("東京駅"),
		Latitude:  ptr(35.681),
		Longitude: ptr(139.767),
		Tags:      []string{"travel", "station"},
	})
	require.NoError(t, err)

	assert.True(t, created.IsPublic)
	assert.Equal(t, "Tokyo Station", created.Title)
	require.Len(t, norm.locations, 1)
	assert.Equal(t, "東京駅", norm.locations[0].Name)
	assert.Equal(t, uint(41), *created.LocationID)
	assert.Equal(t, []uint{100, 101}, linked)

	assert.Equal(t, uint(12), out.ID)
	assert.Nil(t, out.FavoritesCount)

	require.Len(t, pub.published, 1)
	assert.Equal(t, events.PostCreated, pub.published[0].Type)
	assert.Equal(t, uint(12), pub.published[0].PostID)
	assert.Equal(t, []uint{12}, idx.indexed)
}

func TestPostService_CreatePrivateWithoutLocation(t *testing.T) {
	var created *models.Post
	repo := &postRepoStub{
		createFn: func(_ context.Context, post *models.Post, _ []uint) error {
			post.ID = 1
			created = post
			return nil
		},
		getByIDFn: func(context.Context, uint) (*models.Post, error) { return created, nil },
	}
	svc, norm := newTestService(repo)

	_, err := svc.Create(context.Background(), CreatePostInput{
		AuthorID: 1, Title: "t", Content: "c", ImageURL: "https://img.example/a.jpg",
		Location: ptr("   "),
		IsPublic: ptr(false),
	})
	require.NoError(t, err)
	assert.False(t, created.IsPublic)
	assert.Nil(t, created.LocationID)
	assert.Empty(t, norm.locations)
}

func TestPostService_CreateValidation(t *testing.T) {
	svc, _ := newTestService(&postRepoStub{})

	cases := map[string]CreatePostInput{
		"blank title":    {Title: " ", Content: "c", ImageURL: "https://img.example/a.jpg"},
		"blank content":  {Title: "t", Content: "", ImageURL: "https://img.example/a.jpg"},
		"missing image":  {Title: "t", Content: "c"},
		"latitude range": {Title: "t", Content: "c", ImageURL: "https://img.example/a.jpg", Latitude: ptr(91.0), Longitude: ptr(0.0)},
		"latitude only":  {Title: "t", Content: "c", ImageURL: "https://img.example/a.jpg", Latitude: ptr(35.0)},
		"long tag":       {Title: "t", Content: "c", ImageURL: "https://img.example/a.jpg", Tags: []string{strings.Repeat("a", 101)}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), in)
			var appErr *models.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, models.CodeValidation, appErr.Code)
		})
	}
}

func TestPostService_SideEffectFailuresDoNotFailWrites(t *testing.T) {
	var created *models.Post
	repo := &postRepoStub{
		createFn: func(_ context.Context, post *models.Post, _ []uint) error {
			post.ID = 5
			created = post
			return nil
		},
		getByIDFn: func(context.Context, uint) (*models.Post, error) { return created, nil },
	}
	pub := &publisherStub{err: errors.New("broker down")}
	idx := &indexStub{err: errors.New("cluster red")}
	svc, _ := newTestService(repo, WithEvents(pub), WithRelatedIndex(idx))

	ctx, cancel := context.WithCancel(context.Background())
	out, err := svc.Create(ctx, CreatePostInput{AuthorID: 1, Title: "t", Content: "c", ImageURL: "https://img.example/a.jpg"})
	cancel()
	require.NoError(t, err)
	assert.Equal(t, uint(5), out.ID)
	assert.Len(t, pub.published, 1)
	assert.Len(t, idx.indexed, 1)
}

func TestPostService_UpdateNotFoundBeforeForbidden(t *testing.T) {
	repo := &postRepoStub{getAuthorIDFn: func(context.Context, uint) (uint, error) {
		return 0, gorm.ErrRecordNotFound
	}}
	svc, _ := newTestService(repo)

	// The payload is invalid too; existence is reported first.
	_, err := svc.Update(context.Background(), UpdatePostInput{UserID: 2, PostID: 5, Title: ptr("")})
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeNotFound, appErr.Code)
}

func TestPostService_UpdateForbiddenDoesNotMutate(t *testing.T) {
	repo := &postRepoStub{getAuthorIDFn: func(context.Context, uint) (uint, error) { return 1, nil }}
	pub := &publisherStub{}
	svc, norm := newTestService(repo, WithEvents(pub))

	_, err := svc.Update(context.Background(), UpdatePostInput{
		UserID: 2, PostID: 5,
		Title:    ptr("hijacked"),
		Location: ptr("somewhere"),
		Tags:     []string{"x"},
	})
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeForbidden, appErr.Code)
	assert.Equal(t, "You can only update your own posts", appErr.Message)
	assert.Empty(t, norm.locations)
	assert.Empty(t, norm.tagCalls)
	assert.Empty(t, pub.published)
}

func TestPostService_UpdateTags(t *testing.T) {
	cases := []struct {
		name     string
		tags     []string
		wantTags []uint
	}{
		{name: "nil keeps", tags: nil, wantTags: nil},
		{name: "empty clears", tags: []string{}, wantTags: []uint{}},
		{name: "replace", tags: []string{"autumn"}, wantTags: []uint{100}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got []uint
			repo := &postRepoStub{
				getAuthorIDFn: func(context.Context, uint) (uint, error) { return 1, nil },
				getByIDFn:     func(_ context.Context, id uint) (*models.Post, error) { return storedPost(id, 1), nil },
				updateFn: func(_ context.Context, _ *models.Post, tagIDs []uint) error {
					got = tagIDs
					return nil
				},
			}
			svc, _ := newTestService(repo)

			out, err := svc.Update(context.Background(), UpdatePostInput{UserID: 1, PostID: 5, Tags: tc.tags})
			require.NoError(t, err)
			assert.Equal(t, tc.wantTags, got)
			require.NotNil(t, out.FavoritesCount)
		})
	}
}

func TestPostService_UpdateLocation(t *testing.T) {
	current := func(id uint) *models.Post {
		p := storedPost(id, 1)
		p.LocationID = ptr(uint(9))
		p.Location = &models.Location{ID: 9, Name: "清水寺", Latitude: ptr(34.9949), Longitude: ptr(135.785), Prefecture: ptr("京都府")}
		return p
	}

	t.Run("clear", func(t *testing.T) {
		var saved *models.Post
		repo := &postRepoStub{
			getAuthorIDFn: func(context.Context, uint) (uint, error) { return 1, nil },
			getByIDFn:     func(_ context.Context, id uint) (*models.Post, error) { return current(id), nil },
			updateFn: func(_ context.Context, p *models.Post, _ []uint) error {
				saved = p
				return nil
			},
		}
		svc, norm := newTestService(repo)
		_, err := svc.Update(context.Background(), UpdatePostInput{UserID: 1, PostID: 5, Location: ptr("")})
		require.NoError(t, err)
		assert.Nil(t, saved.LocationID)
		assert.Empty(t, norm.locations)
	})

	t.Run("coordinates keep the current name", func(t *testing.T) {
		repo := &postRepoStub{
			getAuthorIDFn: func(context.Context, uint) (uint, error) { return 1, nil },
			getByIDFn:     func(_ context.Context, id uint) (*models.Post, error) { return current(id), nil },
			updateFn:      func(context.Context, *models.Post, []uint) error { return nil },
		}
		svc, norm := newTestService(repo)
		_, err := svc.Update(context.Background(), UpdatePostInput{UserID: 1, PostID: 5, Latitude: ptr(35.0), Longitude: ptr(135.0)})
		require.NoError(t, err)
		require.Len(t, norm.locations, 1)
		assert.Equal(t, "清水寺", norm.locations[0].Name)
		assert.Equal(t, 35.0, *norm.locations[0].Latitude)
		assert.Equal(t, "京都府", *norm.locations[0].Prefecture)
	})

	t.Run("lone coordinate", func(t *testing.T) {
		repo := &postRepoStub{
			getAuthorIDFn: func(context.Context, uint) (uint, error) { return 1, nil },
			getByIDFn:     func(_ context.Context, id uint) (*models.Post, error) { return current(id), nil },
			updateFn: func(context.Context, *models.Post, []uint) error {
				t.Fatal("update must not be stored")
				return nil
			},
		}
		svc, norm := newTestService(repo)
		_, err := svc.Update(context.Background(), UpdatePostInput{UserID: 1, PostID: 5, Longitude: ptr(135.0)})
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeValidation, appErr.Code)
		assert.Contains(t, appErr.Message, "together")
		assert.Empty(t, norm.locations)
	})

	t.Run("coordinates without a place", func(t *testing.T) {
		repo := &postRepoStub{
			getAuthorIDFn: func(context.Context, uint) (uint, error) { return 1, nil },
			getByIDFn:     func(_ context.Context, id uint) (*models.Post, error) { return storedPost(id, 1), nil },
		}
		svc, _ := newTestService(repo)
		_, err := svc.Update(context.Background(), UpdatePostInput{UserID: 1, PostID: 5, Latitude: ptr(35.0), Longitude: ptr(135.0)})
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeValidation, appErr.Code)
	})
}

func TestPostService_UpdatePublishesEvent(t *testing.T) {
	repo := &postRepoStub{
		getAuthorIDFn: func(context.Context, uint) (uint, error) { return 1, nil },
		getByIDFn:     func(_ context.Context, id uint) (*models.Post, error) { return storedPost(id, 1), nil },
		updateFn: func(_ context.Context, p *models.Post, _ []uint) error {
			assert.False(t, p.IsPublic)
			return nil
		},
	}
	pub := &publisherStub{}
	idx := &indexStub{}
	svc, _ := newTestService(repo, WithEvents(pub), WithRelatedIndex(idx))

	_, err := svc.Update(context.Background(), UpdatePostInput{UserID: 1, PostID: 5, IsPublic: ptr(false)})
	require.NoError(t, err)
	require.Len(t, pub.published, 1)
	assert.Equal(t, events.PostUpdated, pub.published[0].Type)
	assert.Equal(t, []uint{5}, idx.indexed)
}

func TestPostService_Remove(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		repo := &postRepoStub{getByIDFn: func(context.Context, uint) (*models.Post, error) { return nil, gorm.ErrRecordNotFound }}
		svc, _ := newTestService(repo)
		err := svc.Remove(context.Background(), RemovePostInput{UserID: 1, PostID: 5})
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeNotFound, appErr.Code)
	})

	t.Run("forbidden", func(t *testing.T) {
		repo := &postRepoStub{getByIDFn: func(_ context.Context, id uint) (*models.Post, error) { return storedPost(id, 1), nil }}
		svc, _ := newTestService(repo)
		err := svc.Remove(context.Background(), RemovePostInput{UserID: 2, PostID: 5})
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeForbidden, appErr.Code)
		assert.Equal(t, "You can only delete your own posts", appErr.Message)
	})

	t.Run("owner", func(t *testing.T) {
		var deleted uint
		repo := &postRepoStub{
			getByIDFn: func(_ context.Context, id uint) (*models.Post, error) { return storedPost(id, 1), nil },
			deleteFn: func(_ context.Context, id uint) error {
				deleted = id
				return nil
			},
		}
		pub := &publisherStub{}
		idx := &indexStub{}
		svc, _ := newTestService(repo, WithEvents(pub), WithRelatedIndex(idx))
		require.NoError(t, svc.Remove(context.Background(), RemovePostInput{UserID: 1, PostID: 5}))
		assert.Equal(t, uint(5), deleted)
		require.Len(t, pub.published, 1)
		assert.Equal(t, events.PostDeleted, pub.published[0].Type)
		assert.Equal(t, []uint{5}, idx.deleted)
	})
}

func TestPostService_RelatedFromIndex(t *testing.T) {
	repo := &postRepoStub{
		getByIDFn: func(_ context.Context, id uint) (*models.Post, error) { return storedPost(id, 1), nil },
		queryFn: func(_ context.Context, q repository.PostQuery) (*repository.PostPage, error) {
			sq := q.(repository.StructuredQuery)
			assert.Equal(t, []uint{8, 3}, sq.IDs)
			// Storage order differs from relevance order.
			return pageOf(*storedPost(3, 2), *storedPost(8, 2)), nil
		},
	}
	idx := &indexStub{related: []uint{8, 3}}
	svc, _ := newTestService(repo, WithRelatedIndex(idx), WithFlags(featureflags.NewManager("related_posts_index=on")))

	list := svc.Related(context.Background(), 1, 0)
	require.Len(t, list.Posts, 2)
	assert.Equal(t, uint(8), list.Posts[0].ID)
	assert.Equal(t, uint(3), list.Posts[1].ID)
}

func TestPostService_RelatedFallsBackToLocation(t *testing.T) {
	withLocation := func(id uint) *models.Post {
		p := storedPost(id, 1)
		p.Location = &models.Location{ID: 2, Name: "金閣寺"}
		return p
	}

	var queries []repository.StructuredQuery
	repo := &postRepoStub{
		getByIDFn: func(_ context.Context, id uint) (*models.Post, error) { return withLocation(id), nil },
		queryFn: func(_ context.Context, q repository.PostQuery) (*repository.PostPage, error) {
			sq := q.(repository.StructuredQuery)
			queries = append(queries, sq)
			if sq.Location != "" {
				// Only the post itself lives there.
				return pageOf(*storedPost(1, 1)), nil
			}
			return pageOf(*storedPost(1, 1), *storedPost(4, 2), *storedPost(6, 2), *storedPost(7, 2)), nil
		},
	}
	idx := &indexStub{err: errors.New("cluster unreachable")}
	svc, _ := newTestService(repo, WithRelatedIndex(idx), WithFlags(featureflags.NewManager("related_posts_index=on")))

	list := svc.Related(context.Background(), 1, 2)
	require.Len(t, queries, 2)
	assert.Equal(t, "金閣寺", queries[0].Location)
	assert.Equal(t, "金閣寺", queries[1].Keyword)
	assert.Equal(t, 3, queries[0].Page.Limit)

	require.Len(t, list.Posts, 2)
	assert.Equal(t, uint(4), list.Posts[0].ID)
	assert.Equal(t, uint(6), list.Posts[1].ID)
}

func TestPostService_RelatedIndexIgnoredWhenFlagOff(t *testing.T) {
	repo := &postRepoStub{getByIDFn: func(_ context.Context, id uint) (*models.Post, error) { return storedPost(id, 1), nil }}
	idx := &indexStub{related: []uint{9}}
	svc, _ := newTestService(repo, WithRelatedIndex(idx), WithFlags(featureflags.NewManager("")))

	// No flag and no location leaves nothing to match on.
	list := svc.Related(context.Background(), 1, 3)
	assert.Empty(t, list.Posts)
	assert.Equal(t, int64(0), list.Total)
}

func TestPostService_RelatedNeverFails(t *testing.T) {
	repo := &postRepoStub{getByIDFn: func(context.Context, uint) (*models.Post, error) { return nil, gorm.ErrRecordNotFound }}
	svc, _ := newTestService(repo)
	list := svc.Related(context.Background(), 99, 50)
	require.NotNil(t, list)
	assert.Empty(t, list.Posts)

	repo = &postRepoStub{
		getByIDFn: func(_ context.Context, id uint) (*models.Post, error) {
			p := storedPost(id, 1)
			p.Location = &models.Location{Name: "奈良公園"}
			return p, nil
		},
		queryFn: func(context.Context, repository.PostQuery) (*repository.PostPage, error) {
			return nil, errors.New("timeout")
		},
	}
	svc, _ = newTestService(repo)
	list = svc.Related(context.Background(), 1, 3)
	require.NotNil(t, list)
	assert.Empty(t, list.Posts)
}
