package repository

import (
	"context"
	"testing"

	"nokoroa/internal/cache"
	"nokoroa/internal/models"
	"nokoroa/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagRepository_Usage(t *testing.T) {
	db := testutil.NewDB(t)
	f := fixture{t: t, db: db}
	posts := NewPostRepository(db)
	ctx := context.Background()

	author := f.user("hanako")
	a, b, unused, hidden := f.tag("a"), f.tag("b"), f.tag("unused"), f.tag("hidden")
	_ = unused

	f.post(posts, author, "one", []uint{a.ID, b.ID})
	f.post(posts, author, "two", []uint{b.ID})
	f.post(posts, author, "three", []uint{hidden.ID, b.ID}, private())

	got, err := NewTagRepository(db).Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.TagCount{
		{Name: "b", Slug: "b", Count: 2},
		{Name: "a", Slug: "a", Count: 1},
	}, got)
}

func TestLocationRepository_Usage(t *testing.T) {
	db := testutil.NewDB(t)
	f := fixture{t: t, db: db}
	posts := NewPostRepository(db)
	ctx := context.Background()

	author := f.user("hanako")
	kyoto := f.location("京都駅", ptr(34.9858), ptr(135.7588))
	nara := f.location("奈良公園", nil, nil)
	f.location("empty", nil, nil)

	f.post(posts, author, "k1", nil, at(kyoto))
	f.post(posts, author, "k2", nil, at(kyoto))
	f.post(posts, author, "n1", nil, at(nara))
	f.post(posts, author, "n2", nil, at(nara), private())

	got, err := NewLocationRepository(db).Usage(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "京都駅", got[0].Name)
	assert.Equal(t, int64(2), got[0].Count)
	require.NotNil(t, got[0].Latitude)
	assert.InDelta(t, 34.9858, *got[0].Latitude, 1e-9)
	assert.Equal(t, "奈良公園", got[1].Name)
	assert.Equal(t, int64(1), got[1].Count)
	assert.Nil(t, got[1].Latitude)
}

func TestUsage_CachedUntilPostsChange(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.SetClient(rdb)
	t.Cleanup(func() { cache.SetClient(nil) })

	db := testutil.NewDB(t)
	f := fixture{t: t, db: db}
	posts := NewPostRepository(db)
	tags := NewTagRepository(db)
	ctx := context.Background()

	author := f.user("hanako")
	sea := f.tag("sea")
	f.post(posts, author, "one", []uint{sea.ID})

	got, err := tags.Usage(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, mr.Exists(cache.TagUsageKey))

	// A write through the repository drops the cached aggregate.
	f.post(posts, author, "two", []uint{sea.ID})
	assert.False(t, mr.Exists(cache.TagUsageKey))

	got, err = tags.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got[0].Count)
}

func TestBookmarkRepository_CountByPost(t *testing.T) {
	db := testutil.NewDB(t)
	f := fixture{t: t, db: db}
	posts := NewPostRepository(db)

	author, r1, r2 := f.user("hanako"), f.user("taro"), f.user("jiro")
	post := f.post(posts, author, "liked", nil)
	require.NoError(t, db.Create(&models.Bookmark{UserID: r1.ID, PostID: post.ID}).Error)
	require.NoError(t, db.Create(&models.Bookmark{UserID: r2.ID, PostID: post.ID}).Error)

	count, err := NewBookmarkRepository(db).CountByPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestUserRepository(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &models.User{Name: "Hanako", Email: " Hanako@Example.com", Password: "hash"}
	require.NoError(t, repo.Create(ctx, user))
	assert.Equal(t, "hanako@example.com", user.Email)

	got, err := repo.GetByEmail(ctx, " HANAKO@example.com ")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = repo.GetByEmail(ctx, "taro@example.com")
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeNotFound, appErr.Code)
}
