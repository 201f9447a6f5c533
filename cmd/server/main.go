// cmd/server/main.go
// This is the entry point for the chat relay API server.
// The "cmd/server" directory follows a common Go convention: cmd/ holds executable
// binaries, and internal/ holds packages that are not meant to be imported by other projects.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	// go-json is a drop-in encoding/json replacement; Fiber uses it for every c.JSON call
	"github.com/goccy/go-json"
	// fiber is a fast HTTP web framework inspired by Express.js
	"github.com/gofiber/fiber/v2"
	// adaptor lets us mount a net/http handler (the prometheus scrape endpoint) on Fiber
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	// cors handles Cross-Origin Resource Sharing so the web client on another origin can call us
	"github.com/gofiber/fiber/v2/middleware/cors"
	// logger prints request details (method, path, status, duration)
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// Internal packages, imported by module path
	"github.com/trentd187/chat-relay/internal/accounts"
	"github.com/trentd187/chat-relay/internal/auth"
	"github.com/trentd187/chat-relay/internal/chats"
	"github.com/trentd187/chat-relay/internal/config"
	"github.com/trentd187/chat-relay/internal/database"
	"github.com/trentd187/chat-relay/internal/handlers"
	"github.com/trentd187/chat-relay/internal/logging"
	"github.com/trentd187/chat-relay/internal/middleware"
	"github.com/trentd187/chat-relay/internal/realtime"
	"github.com/trentd187/chat-relay/internal/websocket"
)

// devSecret signs tokens in local development when JWT_SECRET is unset.
const devSecret = "development-only-secret"

func main() {
	// Load configuration from environment variables (and optionally a .env file).
	cfg := config.Load()

	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log := logging.Component("server")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}
	secret := cfg.JWTSecret
	if secret == "" && cfg.IsDevelopment() {
		log.Warn().Msg("JWT_SECRET not set, using the development secret")
		secret = devSecret
	}

	// Connect to PostgreSQL, then apply any pending SQL migrations so the schema is
	// always current when the server starts.
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.RunMigrations(cfg.DatabaseURL, database.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	users := accounts.NewStore(db)
	verifier := auth.NewVerifier(secret, cfg.JWTIssuer)

	// Create a new Fiber app (our HTTP server).
	app := fiber.New(fiber.Config{
		AppName:     "Chat Relay API",
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
	})

	// --- Global middleware ---
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.AllowedOrigins}))

	// --- Realtime core ---
	// Exactly one delivery mode runs per process. Both expose the same realtime.Router,
	// so the write path below never knows which one it is talking to.
	var (
		router realtime.Router
		online handlers.OnlineSource
	)
	api := app.Group("/api/v1", middleware.Auth(verifier, users))

	switch cfg.RealtimeMode {
	case config.ModePoll:
		buffer := realtime.NewFallbackBuffer(realtime.BufferConfig{
			MaxEvents:       cfg.EventBufferSize,
			Retention:       cfg.EventRetention,
			MinPollInterval: cfg.PollMinInterval,
			PresenceWindow:  cfg.PresenceWindow,
		})
		router = realtime.NewPollRouter(buffer, logging.Component("poll"))
		online = buffer

		// GET /api/v1/events?since=<ts> replaces the socket in poll mode
		api.Get("/events", handlers.PollEvents(buffer))

	default:
		hub := realtime.NewHub(
			auth.TokenResolver{Verifier: verifier},
			realtime.WithLogger(logging.Component("realtime")),
			realtime.WithChatAccess(chats.NewAccessChecker(db), 2*time.Second),
		)
		router = hub.Router()
		online = hub.Sessions()

		wsCfg := websocket.DefaultConfig()
		wsCfg.SendQueue = cfg.SendQueueSize
		// GET /ws upgrades to a websocket; plain HTTP requests get 426
		app.Get("/ws", websocket.RequireUpgrade(), websocket.Handler(hub, wsCfg, logging.Component("websocket")))
	}

	svc := chats.NewService(db, router, logging.Logger())

	// --- Public routes (no auth required) ---
	app.Get("/health", handlers.HealthCheck)
	app.Get("/realtime/status", handlers.RealtimeStatus(online, cfg.RealtimeMode))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// --- Authenticated API routes ---
	// Presence and diagnostics
	api.Get("/realtime", handlers.RealtimeInfo(online, cfg.RealtimeMode))
	api.Post("/realtime/test", handlers.RealtimeTest(router))
	api.Get("/realtime/online", handlers.OnlineUsers(online, users))
	api.Get("/realtime/me", handlers.RealtimeMe(online))

	// Chats and messages: every write notifies the other participant through router
	api.Post("/chats", handlers.CreateChat(svc))
	api.Delete("/chats/:chatID", handlers.DeleteChat(svc))
	api.Post("/chats/:chatID/messages", handlers.SendMessage(svc))
	api.Put("/chats/:chatID/messages/:messageID", handlers.UpdateMessage(svc))
	api.Patch("/chats/:chatID/messages/:messageID", handlers.MarkRead(svc))
	api.Delete("/chats/:chatID/messages/:messageID", handlers.DeleteMessage(svc))

	// Stop cleanly on Ctrl-C or a container stop signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	// ":" + cfg.Port produces a string like ":8080": listen on all network interfaces.
	log.Info().Str("port", cfg.Port).Str("mode", cfg.RealtimeMode).Msg("starting server")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
