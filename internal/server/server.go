// Package server contains the HTTP and WebSocket handlers for post discovery.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "nokoroa/docs" // swagger docs
	"nokoroa/internal/config"
	"nokoroa/internal/database"
	"nokoroa/internal/events"
	"nokoroa/internal/featureflags"
	"nokoroa/internal/middleware"
	"nokoroa/internal/models"
	"nokoroa/internal/normalizer"
	"nokoroa/internal/notifications"
	"nokoroa/internal/repository"
	"nokoroa/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the collaborators a Server is built from. Events and Index are
// optional.
type Deps struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Events events.Publisher
	Index  service.RelatedIndex
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	auth           *middleware.Authenticator
	limiter        *middleware.RateLimiter
	featureFlags   *featureflags.Manager
	postService    *service.PostService
	events         events.Publisher
	notifier       *notifications.Notifier
	feedHub        *notifications.FeedHub
}

// NewServer wires repositories and the discovery service around deps.
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.DB == nil {
		return nil, errors.New("server requires a database")
	}

	flags := featureflags.NewManager(cfg.FeatureFlags)

	opts := []service.PostServiceOption{service.WithFlags(flags)}
	if deps.Events != nil {
		opts = append(opts, service.WithEvents(deps.Events))
	}
	if deps.Index != nil {
		opts = append(opts, service.WithRelatedIndex(deps.Index))
	}

	s := &Server{
		config:         cfg,
		db:             deps.DB,
		redis:          deps.Redis,
		promMiddleware: middleware.InitMetrics("nokoroa-api"),
		auth:           middleware.NewAuthenticator(cfg, deps.Redis),
		limiter:        middleware.NewRateLimiter(deps.Redis, cfg.Env),
		featureFlags:   flags,
		events:         deps.Events,
		postService: service.NewPostService(
			repository.NewPostRepository(deps.DB),
			repository.NewTagRepository(deps.DB),
			repository.NewLocationRepository(deps.DB),
			normalizer.New(deps.DB),
			repository.NewBookmarkRepository(deps.DB),
			opts...,
		),
	}

	if deps.Redis != nil {
		s.notifier = notifications.NewNotifier(deps.Redis)
		s.feedHub = notifications.NewFeedHub(notifications.DefaultMaxConns)
	}

	return s, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	app.Use(cors.New(corsConfig(s.config.AllowedOrigins)))
	app.Use(limiter.New(limiter.Config{
		Max:        requestsPerMinute,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string { return c.IP() },
		LimitReached: func(c *fiber.Ctx) error {
			return models.RespondWithError(c, fiber.StatusTooManyRequests, models.ErrRateLimited)
		},
	}))
}

// requestsPerMinute caps all traffic per client IP, preflights excepted.
const requestsPerMinute = 100

const devOrigins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"

func corsConfig(origins string) cors.Config {
	if origins == "" {
		origins = devOrigins
	}
	return cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           int((24 * time.Hour).Seconds()),
	}
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/swagger/*", swagger.HandlerDefault)

	searchLimit := s.limiter.Handler(middleware.RateLimitPolicy{
		Name: "search", Limit: 60, Window: time.Minute, OnFail: middleware.FailOpen,
	})
	writeLimit := s.limiter.Handler(middleware.RateLimitPolicy{
		Name: "write_post", Limit: 20, Window: 5 * time.Minute, OnFail: middleware.FailOpen,
	})
	required := s.auth.Required()

	// Fixed paths are registered before /:id.
	posts := api.Group("/posts")
	posts.Get("/", s.GetPosts)
	posts.Get("/search", searchLimit, s.SearchPosts)
	posts.Get("/search-by-location", searchLimit, s.SearchPostsByLocation)
	posts.Get("/tags", s.GetTags)
	posts.Get("/locations", s.GetLocations)
	posts.Get("/:id/related", s.GetRelatedPosts)
	posts.Get("/:id", s.GetPost)
	posts.Post("/", required, writeLimit, s.CreatePost)
	posts.Put("/:id", required, writeLimit, s.UpdatePost)
	posts.Delete("/:id", required, s.DeletePost)

	api.Get("/users/me/posts", required, s.GetMyPosts)

	api.Get("/ws/feed", s.auth.Optional(), s.FeedUpgrade(), s.WebSocketFeedHandler())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

func (s *Server) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "nokoroa discovery API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return models.RespondWithError(c, fe.Code, err)
			}
			return s.respondError(c, err)
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// Start wires the realtime feed and serves HTTP until Shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.newApp()

	if s.notifier != nil && s.feedHub != nil {
		if err := s.feedHub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
			slog.Error("failed to start feed wiring", slog.String("error", err.Error()))
		}
	}

	slog.Info("server starting", slog.String("port", s.config.Port))
	if err := s.app.Listen(":" + s.config.Port); err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Port, err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			slog.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if s.feedHub != nil {
		if err := s.feedHub.Shutdown(ctx); err != nil {
			slog.Error("error shutting down feed hub", slog.String("error", err.Error()))
		}
	}

	if s.events != nil {
		if err := s.events.Close(); err != nil {
			slog.Error("error closing event publishers", slog.String("error", err.Error()))
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			slog.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			slog.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	slog.Info("server shutdown complete")
	return nil
}
