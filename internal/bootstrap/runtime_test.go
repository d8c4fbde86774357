package bootstrap

import (
	"context"
	"testing"

	"nokoroa/internal/config"
	"nokoroa/internal/events"
	"nokoroa/internal/models"
	"nokoroa/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	t.Run("no sinks", func(t *testing.T) {
		assert.Nil(t, InitEvents(&config.Config{EventsBroker: "none"}, nil))
	})

	t.Run("redis only", func(t *testing.T) {
		pub := InitEvents(&config.Config{EventsBroker: "none"}, rdb)
		require.IsType(t, &events.Fanout{}, pub)
		assert.Equal(t, []string{"redis"}, pub.(*events.Fanout).Sinks())
	})

	t.Run("redis and kafka", func(t *testing.T) {
		cfg := &config.Config{EventsBroker: "kafka", KafkaBrokers: "localhost:9092", KafkaTopic: "nokoroa.post-events"}
		pub := InitEvents(cfg, rdb)
		require.IsType(t, &events.Fanout{}, pub)
		assert.Equal(t, []string{"redis", "kafka"}, pub.(*events.Fanout).Sinks())
		require.NoError(t, pub.Close())
	})

	t.Run("kafka misconfigured", func(t *testing.T) {
		cfg := &config.Config{EventsBroker: "kafka", KafkaBrokers: "localhost:9092"}
		pub := InitEvents(cfg, rdb)
		assert.Equal(t, []string{"redis"}, pub.(*events.Fanout).Sinks())
	})
}

func TestInitIndex_Unconfigured(t *testing.T) {
	assert.Nil(t, InitIndex(context.Background(), &config.Config{}))
}

func TestSeedIfEmpty(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	require.NoError(t, seedIfEmpty(ctx, db))
	var first int64
	require.NoError(t, db.Model(&models.Post{}).Count(&first).Error)
	assert.Positive(t, first)

	require.NoError(t, seedIfEmpty(ctx, db))
	var second int64
	require.NoError(t, db.Model(&models.Post{}).Count(&second).Error)
	assert.Equal(t, first, second)
}
