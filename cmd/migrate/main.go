// Command migrate applies, inspects and reverts the discovery schema.
//
//	migrate up            apply pending SQL migrations
//	migrate auto          run GORM AutoMigrate over the discovery models
//	migrate status        print the schema plan and pending migrations
//	migrate down VERSION  revert one applied migration
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"

	"nokoroa/internal/config"
	"nokoroa/internal/database"
)

var errUsage = errors.New("usage: migrate up|auto|status|down VERSION")

func main() {
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	switch args[0] {
	case "up":
		m, err := database.NewEmbeddedMigrator(db)
		if err != nil {
			return err
		}
		ran, err := m.Up(ctx)
		for _, step := range ran {
			log.Printf("applied %s", step)
		}
		return err

	case "auto":
		cfg.DBSchemaMode = string(database.SchemaModeAuto)
		return database.ApplySchema(ctx, db, cfg)

	case "status":
		status, err := database.InspectSchema(ctx, db, cfg)
		if err != nil {
			return err
		}
		log.Printf("mode=%s env=%s sql=%t auto=%t applied=%v",
			status.Mode, status.Env, status.SQL, status.Auto, status.Applied)
		for _, step := range status.Pending {
			log.Printf("pending %s", step)
		}
		return nil

	case "down":
		if len(args) < 2 {
			return errUsage
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("version %q: %w", args[1], err)
		}
		m, err := database.NewEmbeddedMigrator(db)
		if err != nil {
			return err
		}
		return m.Down(ctx, version)
	}
	return errUsage
}
