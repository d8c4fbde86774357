// Command seed fills the database with demo travel posts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"nokoroa/internal/bootstrap"
	"nokoroa/internal/config"
	"nokoroa/internal/middleware"
	"nokoroa/internal/seed"
	"nokoroa/internal/service"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	defaults := seed.DefaultOptions()
	users := flag.Int("users", defaults.Users, "Total number of users, fixture accounts included")
	posts := flag.Int("posts", defaults.Posts, "Generated posts on top of one post per landmark")
	bookmarks := flag.Int("bookmarks", defaults.BookmarksPerUser, "Bookmarks per user")
	privateEvery := flag.Int("private-every", defaults.PrivateEvery, "Make about one in N generated posts private (0 for none)")
	clean := flag.Bool("clean", false, "Delete existing discovery data first")
	fast := flag.Bool("fast", false, "Store plain passwords instead of bcrypt hashes")
	randSeed := flag.Int64("seed", defaults.RandSeed, "Random seed for generated content")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	middleware.InitLogger(cfg.Env, os.Stdout)

	ctx := context.Background()
	db, rdb, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{ApplySchema: true})
	if err != nil {
		return err
	}

	// Seeded posts reach the related index like API writes do.
	var opts []service.PostServiceOption
	if index := bootstrap.InitIndex(ctx, cfg); index != nil {
		opts = append(opts, service.WithRelatedIndex(index))
	}
	if pub := bootstrap.InitEvents(cfg, rdb); pub != nil {
		defer func() { _ = pub.Close() }()
		opts = append(opts, service.WithEvents(pub))
	}

	seeder := seed.NewSeeder(db, bootstrap.NewPostService(db, opts...), seed.Options{
		Users:            *users,
		Posts:            *posts,
		BookmarksPerUser: *bookmarks,
		PrivateEvery:     *privateEvery,
		SkipBcrypt:       *fast,
		RandSeed:         *randSeed,
	})

	if *clean {
		if err := seeder.ClearAll(ctx); err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
	}

	summary, err := seeder.Run(ctx)
	if err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}

	log.Printf("seeded %d users, %d posts, %d bookmarks", summary.Users, summary.Posts, summary.Bookmarks)
	log.Printf("all seeded users have the password %q", seed.DefaultPassword)
	return nil
}
