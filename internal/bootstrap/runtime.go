// Package bootstrap wires the runtime collaborators shared by the commands:
// database, Redis, event sinks and the related-posts index.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"nokoroa/internal/cache"
	"nokoroa/internal/config"
	"nokoroa/internal/database"
	"nokoroa/internal/events"
	"nokoroa/internal/normalizer"
	"nokoroa/internal/notifications"
	"nokoroa/internal/repository"
	"nokoroa/internal/search"
	"nokoroa/internal/seed"
	"nokoroa/internal/service"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// ApplySchema runs migrations per DB_SCHEMA_MODE after connecting.
	ApplySchema bool
	// Seed fills an empty database with demo posts.
	Seed bool
}

// InitRuntime connects to the database and Redis. Redis is optional: a nil
// client means the cache, rate limits and feed are off.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	if opts.ApplySchema {
		if err := database.ApplySchema(ctx, db, cfg); err != nil {
			return nil, nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	rdb := cache.InitRedis(cfg.RedisURL)

	if opts.Seed {
		if err := seedIfEmpty(ctx, db); err != nil {
			return nil, nil, fmt.Errorf("seed demo data: %w", err)
		}
	}

	return db, rdb, nil
}

// seedIfEmpty seeds only when no post exists yet, so restarts are safe.
func seedIfEmpty(ctx context.Context, db *gorm.DB) error {
	var count int64
	if err := db.WithContext(ctx).Table("posts").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		slog.InfoContext(ctx, "posts present, skipping seed", slog.Int64("posts", count))
		return nil
	}

	_, err := seed.NewSeeder(db, NewPostService(db), seed.DefaultOptions()).Run(ctx)
	return err
}

// NewPostService builds a PostService over db with the given options.
func NewPostService(db *gorm.DB, opts ...service.PostServiceOption) *service.PostService {
	return service.NewPostService(
		repository.NewPostRepository(db),
		repository.NewTagRepository(db),
		repository.NewLocationRepository(db),
		normalizer.New(db),
		repository.NewBookmarkRepository(db),
		opts...,
	)
}

// InitEvents builds the post event fanout. Redis feeds the realtime hub;
// EVENTS_BROKER adds Kafka or RabbitMQ. It returns nil when no sink is
// available. A broker that cannot be reached is logged and skipped.
func InitEvents(cfg *config.Config, rdb *redis.Client) events.Publisher {
	var sinks []events.Sink

	if rdb != nil {
		sinks = append(sinks, events.Sink{
			Name:      "redis",
			Publisher: events.NewRedisPublisher(notifications.NewNotifier(rdb)),
		})
	}

	switch cfg.EventsBroker {
	case "kafka":
		p, err := events.NewKafkaPublisher(events.KafkaConfig{Brokers: cfg.KafkaBrokerList(), Topic: cfg.KafkaTopic})
		if err != nil {
			slog.Warn("kafka events disabled", slog.String("error", err.Error()))
			break
		}
		sinks = append(sinks, events.Sink{Name: "kafka", Publisher: p})
	case "rabbitmq":
		p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			slog.Warn("rabbitmq events disabled", slog.String("error", err.Error()))
			break
		}
		sinks = append(sinks, events.Sink{Name: "rabbitmq", Publisher: p})
	}

	if len(sinks) == 0 {
		return nil
	}
	fanout := events.NewFanout(sinks...)
	slog.Info("post events enabled", slog.Any("sinks", fanout.Sinks()))
	return fanout
}

// InitIndex connects the related-posts index when ELASTICSEARCH_URL is set.
// It returns nil when the index is not configured or cannot be prepared.
func InitIndex(ctx context.Context, cfg *config.Config) service.RelatedIndex {
	if cfg.ElasticsearchURL == "" {
		return nil
	}

	es, err := search.NewElastic(search.Config{
		URL:      cfg.ElasticsearchURL,
		Username: cfg.ElasticsearchUsername,
		Password: cfg.ElasticsearchPassword,
		Index:    cfg.ElasticsearchIndex,
	})
	if err != nil {
		slog.WarnContext(ctx, "related index disabled", slog.String("error", err.Error()))
		return nil
	}
	if err := es.EnsureIndex(ctx); err != nil {
		slog.WarnContext(ctx, "related index disabled", slog.String("error", err.Error()))
		return nil
	}
	return es
}
