package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"nokoroa/internal/models"
	"nokoroa/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestPostRepository_CreateAndGetByID(t *testing.T) {
	db := testutil.NewDB(t)
	f := fixture{t: t, db: db}
	repo := NewPostRepository(db)
	ctx := context.Background()

	author := f.user("hanako")
	loc := f.location("東京駅", ptr(35.6812), ptr(139.7671))
	sea, food := f.tag("sea"), f.tag("food")

	created := f.post(repo, author, "Morning walk", []uint{food.ID, sea.ID, food.ID}, at(loc))
	require.NotZero(t, created.ID)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Morning walk", got.Title)
	assert.Equal(t, "hanako", got.Author.Name)
	require.NotNil(t, got.Location)
	assert.Equal(t, "東京駅", got.Location.Name)
	assert.Equal(t, []string{"food", "sea"}, got.TagNames())

	authorID, err := repo.GetAuthorID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, author.ID, authorID)

	_, err = repo.GetByID(ctx, created.ID+100)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestPostRepository_StructuredQuery(t *testing.T) {
	db := testutil.NewDB(t)
	f := fixture{t: t, db: db}
	repo := NewPostRepository(db)
	ctx := context.Background()

	hanako, taro := f.user("hanako"), f.user("taro")
	kyoto := f.location("京都駅", nil, nil)
	osaka := f.location("大阪城", nil, nil)
	temple, ramen := f.tag("temple"), f.tag("ramen")

	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	f.post(repo, hanako, "Tokyo trip", nil, createdAt(base))
	f.post(repo, hanako, "Kyoto temples", []uint{temple.ID}, at(kyoto), createdAt(base.Add(time.Hour)))
	f.post(repo, taro, "Osaka ramen", []uint{ramen.ID}, at(osaka), createdAt(base.Add(2*time.Hour)))
	f.post(repo, taro, "Secret 100% spot", nil, private(), createdAt(base.Add(3*time.Hour)))
	f.post(repo, taro, "Plain 100 spot", nil, createdAt(base.Add(4*time.Hour)))

	tests := []struct {
		name  string
		query StructuredQuery
		want  []string
	}{
		{
			name:  "public posts newest first",
			query: StructuredQuery{},
			want:  []string{"Plain 100 spot", "Osaka ramen", "Kyoto temples", "Tokyo trip"},
		},
		{
			name:  "keyword is case insensitive",
			query: StructuredQuery{Predicate: Predicate{Keyword: "TOKYO"}},
			want:  []string{"Tokyo trip"},
		},
		{
			name:  "keyword matches author name",
			query: StructuredQuery{Predicate: Predicate{Keyword: "tar"}},
			want:  []string{"Plain 100 spot", "Osaka ramen"},
		},
		{
			name:  "wildcards are literal",
			query: StructuredQuery{Predicate: Predicate{Keyword: "100%", IncludePrivate: true}},
			want:  []string{"Secret 100% spot"},
		},
		{
			name:  "any tag matches",
			query: StructuredQuery{Tags: []string{"temple", "ramen"}},
			want:  []string{"Osaka ramen", "Kyoto temples"},
		},
		{
			name:  "location substring",
			query: StructuredQuery{Location: "京都"},
			want:  []string{"Kyoto temples"},
		},
		{
			name:  "author with private posts",
			query: StructuredQuery{Predicate: Predicate{IncludePrivate: true}, AuthorID: &taro.ID},
			want:  []string{"Plain 100 spot", "Secret 100% spot", "Osaka ramen"},
		},
		{
			name:  "filters combine with AND",
			query: StructuredQuery{Tags: []string{"temple"}, Location: "大阪"},
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := repo.Query(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, titles(page.Posts))
			assert.Equal(t, int64(len(tt.want)), page.Total)
		})
	}
}

func TestPostRepository_Pagination(t *testing.T) {
	db := testutil.NewDB(t)
	f := fixture{t: t, db: db}
	repo := NewPostRepository(db)
	ctx := context.Background()

	author := f.user("hanako")
	for i := range 15 {
		f.post(repo, author, fmt.Sprintf("post %02d", i), nil)
	}

	page, err := repo.Query(ctx, StructuredQuery{Page: Page{Limit: 10}})
	require.NoError(t, err)
	assert.Len(t, page.Posts, 10)
	assert.Equal(t, int64(15), page.Total)
	assert.Equal(t, "post 14", page.Posts[0].Title)

	page, err = repo.Query(ctx, StructuredQuery{Page: Page{Limit: 10, Offset: 10}})
	require.NoError(t, err)
	assert.Len(t, page.Posts, 5)
	assert.Equal(t, int64(15), page.Total)

	page, err = repo.Query(ctx, StructuredQuery{Page: Page{Limit: 10, Offset: 30}})
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
	assert.Equal(t, int64(15), page.Total)
}

func TestPostRepository_GeospatialQuery(t *testing.T) {
	db := testutil.NewDB(t)
	f := fixture{t: t, db: db}
	repo := NewPostRepository(db)
	ctx := context.Background()

	const centerLat, centerLng = 35.6762, 139.6503
	kmPerDegree := EarthRadiusKm * 3.141592653589793 / 180

	author := f.user("hanako")
	here := f.location("Shinjuku", ptr(centerLat), ptr(centerLng))
	near := f.location("Nakano", ptr(centerLat+4/kmPerDegree), ptr(centerLng))
	far := f.location("Nerima", ptr(centerLat+6/kmPerDegree), ptr(centerLng))
	nowhere := f.location("Somewhere", nil, nil)
	tag := f.tag("walk")

	f.post(repo, author, "far", nil, at(far))
	f.post(repo, author, "near", []uint{tag.ID}, at(near))
	f.post(repo, author, "here", nil, at(here))
	f.post(repo, author, "no coordinates", nil, at(nowhere))
	f.post(repo, author, "no location", nil)
	f.post(repo, author, "hidden", nil, at(here), private())

	t.Run("nearest first within radius", func(t *testing.T) {
		page, err := repo.Query(ctx, GeospatialQuery{CenterLat: ptr(centerLat), CenterLng: ptr(centerLng), RadiusKm: 5})
		require.NoError(t, err)
		require.Equal(t, []string{"here", "near"}, titles(page.Posts))
		assert.Equal(t, int64(2), page.Total)

		require.NotNil(t, page.Posts[0].Distance)
		assert.InDelta(t, 0, *page.Posts[0].Distance, 0.001)
		require.NotNil(t, page.Posts[1].Distance)
		assert.InDelta(t, 4, *page.Posts[1].Distance, 0.01)
		assert.Equal(t, []string{"walk"}, page.Posts[1].TagNames())
		assert.Equal(t, "Nakano", page.Posts[1].Location.Name)
		assert.Equal(t, "hanako", page.Posts[1].Author.Name)
	})

	t.Run("default radius", func(t *testing.T) {
		page, err := repo.Query(ctx, GeospatialQuery{CenterLat: ptr(centerLat), CenterLng: ptr(centerLng)})
		require.NoError(t, err)
		assert.Equal(t, []string{"here", "near", "far"}, titles(page.Posts))
	})

	t.Run("without center newest first", func(t *testing.T) {
		page, err := repo.Query(ctx, GeospatialQuery{})
		require.NoError(t, err)
		assert.Equal(t, []string{"here", "near", "far"}, titles(page.Posts))
		for _, p := range page.Posts {
			assert.Nil(t, p.Distance)
		}
	})

	t.Run("keyword matches location name", func(t *testing.T) {
		page, err := repo.Query(ctx, GeospatialQuery{Predicate: Predicate{Keyword: "nakano"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"near"}, titles(page.Posts))
	})
}

func TestPostRepository_GeospatialQueryBindsValues(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\)\s+FROM posts\s+JOIN locations`).
		WithArgs(true, 35.0, 139.0, 35.0, 2.5).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.Query(context.Background(), GeospatialQuery{CenterLat: ptr(35.0), CenterLng: ptr(139.0), RadiusKm: 2.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count posts by location")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGeospatialQuery_Statements(t *testing.T) {
	q := GeospatialQuery{
		Predicate: Predicate{Keyword: "tower"},
		CenterLat: ptr(35.0),
		CenterLng: ptr(139.0),
		Page:      Page{Limit: 500, Offset: -3},
	}
	pageSQL, pageArgs, countSQL, countArgs := q.statements()

	assert.Regexp(t, regexp.MustCompile(`ORDER BY distance ASC`), pageSQL)
	assert.Regexp(t, regexp.MustCompile(`LIMIT \? OFFSET \?$`), pageSQL)
	assert.NotContains(t, countSQL, "ORDER BY")
	assert.Equal(t, []any{35.0, 139.0, 35.0}, pageArgs[:3])
	assert.Equal(t, []any{MaxLimit, 0}, pageArgs[len(pageArgs)-2:])
	assert.Equal(t, DefaultRadiusKm, countArgs[len(countArgs)-1])
	assert.Len(t, countArgs, 1+4+3+1)
}

func TestPostRepository_Update(t *testing.T) {
	db := testutil.NewDB(t)
	f := fixture{t: t, db: db}
	repo := NewPostRepository(db)
	ctx := context.Background()

	author := f.user("hanako")
	a, b := f.tag("a"), f.tag("b")
	post := f.post(repo, author, "before", []uint{a.ID})

	post.Title = "after"
	post.IsPublic = false
	require.NoError(t, repo.Update(ctx, post, nil))

	got, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Title)
	assert.False(t, got.IsPublic)
	assert.Equal(t, []string{"a"}, got.TagNames(), "nil tags keep links")

	require.NoError(t, repo.Update(ctx, post, []uint{b.ID, a.ID}))
	got, err = repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, got.TagNames())

	require.NoError(t, repo.Update(ctx, post, []uint{}))
	got, err = repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, got.TagNames())

	missing := &models.Post{ID: post.ID + 50, Title: "x"}
	assert.True(t, errors.Is(repo.Update(ctx, missing, nil), gorm.ErrRecordNotFound))
}

func TestPostRepository_Delete(t *testing.T) {
	db := testutil.NewDB(t)
	f := fixture{t: t, db: db}
	repo := NewPostRepository(db)
	ctx := context.Background()

	author, reader := f.user("hanako"), f.user("taro")
	tag := f.tag("sea")
	post := f.post(repo, author, "bye", []uint{tag.ID})
	require.NoError(t, db.Create(&models.Bookmark{UserID: reader.ID, PostID: post.ID}).Error)

	require.NoError(t, repo.Delete(ctx, post.ID))

	var links, bookmarks, tags int64
	db.Model(&models.PostTag{}).Where("post_id = ?", post.ID).Count(&links)
	db.Model(&models.Bookmark{}).Where("post_id = ?", post.ID).Count(&bookmarks)
	db.Model(&models.Tag{}).Count(&tags)
	assert.Zero(t, links)
	assert.Zero(t, bookmarks)
	assert.Equal(t, int64(1), tags, "tags outlive posts")

	assert.True(t, errors.Is(repo.Delete(ctx, post.ID), gorm.ErrRecordNotFound))
}

func TestPostRepository_QueryError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "posts"`)).
		WillReturnError(sqlmock.ErrCancelled)

	_, err := repo.Query(context.Background(), StructuredQuery{})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_StructuredQueryByIDs(t *testing.T) {
	db := testutil.NewDB(t)
	f := fixture{t: t, db: db}
	repo := NewPostRepository(db)
	ctx := context.Background()

	author := f.user("hanako")
	a := f.post(repo, author, "a", nil)
	f.post(repo, author, "b", nil)
	c := f.post(repo, author, "c", nil)
	hidden := f.post(repo, author, "hidden", nil, private())

	page, err := repo.Query(ctx, StructuredQuery{IDs: []uint{a.ID, c.ID, hidden.ID}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, titles(page.Posts))

	page, err = repo.Query(ctx, StructuredQuery{IDs: []uint{}})
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
	assert.Zero(t, page.Total)
}
