// Package main is the entry point for the VinStackCode server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (internal/config)
// 2. Create dependencies (logger, database, vendor clients, services)
// 3. Hand the long-lived parts to the supervisor and wait
//
// All actual logic lives in imported packages. This file is the composition
// root: the only place that knows every concrete type.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sakif/vinstackcode/internal/auth"
	"github.com/sakif/vinstackcode/internal/authz"
	"github.com/sakif/vinstackcode/internal/breaker"
	"github.com/sakif/vinstackcode/internal/cache"
	"github.com/sakif/vinstackcode/internal/config"
	"github.com/sakif/vinstackcode/internal/events"
	"github.com/sakif/vinstackcode/internal/executor"
	"github.com/sakif/vinstackcode/internal/executor/docker"
	"github.com/sakif/vinstackcode/internal/game"
	"github.com/sakif/vinstackcode/internal/handler"
	"github.com/sakif/vinstackcode/internal/integration/mentor"
	"github.com/sakif/vinstackcode/internal/integration/payment"
	"github.com/sakif/vinstackcode/internal/integration/tts"
	"github.com/sakif/vinstackcode/internal/integration/video"
	"github.com/sakif/vinstackcode/internal/logging"
	"github.com/sakif/vinstackcode/internal/realtime"
	"github.com/sakif/vinstackcode/internal/repository/sqlite"
	"github.com/sakif/vinstackcode/internal/server"
	"github.com/sakif/vinstackcode/internal/service"
	"github.com/sakif/vinstackcode/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// === 1. READ CONFIGURATION ===
	// .env.local is a developer convenience; a missing file is not an error.
	_ = godotenv.Load(".env.local")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// === 2. SET UP LOGGING ===
	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	slog.SetDefault(logger)

	// === 3. DATABASE ===
	// os.MkdirAll creates the data directory if needed (like `mkdir -p`).
	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return err
		}
	}
	db, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database ready", slog.String("path", cfg.Database.Path))

	// === 4. AUTH ===
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		logger.Warn("auth.jwt_secret not set, generating a random one; sessions will not survive a restart")
		if secret, err = randomSecret(); err != nil {
			return err
		}
	}
	tokens, err := auth.NewTokenService(secret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	var github *auth.GitHubProvider
	if cfg.GitHub.Enabled() {
		callback := cfg.GitHub.CallbackURL
		if callback == "" {
			callback = cfg.Server.BaseURL + "/auth/github/callback"
		}
		github = auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, callback)
	} else {
		logger.Warn("GitHub OAuth not configured, /auth/github routes are disabled")
	}

	enforcer, err := authz.NewEnforcer()
	if err != nil {
		return err
	}

	// === 5. EVENTS ===
	breakerSettings := breaker.Settings{
		MaxRequests:      cfg.Breaker.MaxRequests,
		Interval:         cfg.Breaker.Interval,
		Timeout:          cfg.Breaker.Timeout,
		FailureThreshold: cfg.Breaker.FailureThreshold,
	}

	var bus *events.Bus
	if cfg.Events.NATSURL != "" {
		bus, err = events.NewNATSBus(events.NATSConfig{
			URL:           cfg.Events.NATSURL,
			MaxReconnects: cfg.Events.MaxReconnects,
			ReconnectWait: cfg.Events.ReconnectWait,
			CloseTimeout:  cfg.Events.CloseTimeout,
		}, breaker.New("nats", breakerSettings, logger), logger)
		if err != nil {
			return err
		}
		logger.Info("event bus using NATS", slog.String("url", cfg.Events.NATSURL))
	} else {
		bus = events.NewInProcessBus(logger)
	}
	defer bus.Close()

	// === 6. CODE EXECUTION ===
	// Docker is optional: without it the server starts but runs report the
	// code runner as unavailable.
	var runner executor.Executor
	if cfg.Executor.Enabled {
		dcfg := docker.DefaultConfig()
		dcfg.Timeout = cfg.Executor.Timeout
		dcfg.PoolSize = cfg.Executor.PoolSize
		dcfg.MemoryLimit = cfg.Executor.MemoryLimitMB * 1024 * 1024
		dcfg.CPULimit = cfg.Executor.CPULimit

		exec, err := docker.New(dcfg, logger)
		if err != nil {
			logger.Warn("docker executor unavailable, /api/execute will return errors",
				slog.String("error", err.Error()),
			)
		} else {
			defer exec.Close()
			runner = exec
		}
	}

	// === 7. VENDOR CLIENTS ===
	audioCache, err := cache.Open(cfg.Cache.Dir, "tts", logger)
	if err != nil {
		return err
	}
	defer audioCache.Close()

	var speech service.SpeechSynthesizer
	ttsClient := tts.New(tts.Config{
		APIKey:          cfg.TTS.APIKey,
		BaseURL:         cfg.TTS.BaseURL,
		VoiceID:         cfg.TTS.VoiceID,
		ModelID:         cfg.TTS.ModelID,
		Stability:       cfg.TTS.Stability,
		SimilarityBoost: cfg.TTS.SimilarityBoost,
		Timeout:         cfg.TTS.Timeout,
		CacheTTL:        cfg.Cache.TTSTTL,
	}, breaker.New("tts", breakerSettings, logger), audioCache, logger)
	if ttsClient.Enabled() {
		speech = ttsClient
	}

	var videos service.VideoGenerator
	videoClient := video.New(video.Config{
		APIKey:       cfg.Video.APIKey,
		BaseURL:      cfg.Video.BaseURL,
		ReplicaID:    cfg.Video.ReplicaID,
		PollInterval: cfg.Video.PollInterval,
		Timeout:      cfg.Video.Timeout,
	}, breaker.New("video", breakerSettings, logger), logger)
	if videoClient.Enabled() {
		videos = videoClient
	}

	var gateway service.PaymentGateway
	paymentClient := payment.New(payment.Config{
		SecretKey: cfg.Payment.SecretKey,
		BaseURL:   cfg.Payment.BaseURL,
		Timeout:   cfg.Payment.Timeout,
	}, breaker.New("payment", breakerSettings, logger), logger)
	if paymentClient.Enabled() {
		gateway = paymentClient
	}

	mentorClient, err := mentor.New(mentor.Config{
		Provider:        cfg.Mentor.Provider,
		AnthropicAPIKey: cfg.Mentor.AnthropicAPIKey,
		OpenAIAPIKey:    cfg.Mentor.OpenAIAPIKey,
		Model:           cfg.Mentor.Model,
		MaxTokens:       cfg.Mentor.MaxTokens,
	}, breaker.New("mentor", breakerSettings, logger), logger)
	if err != nil {
		return err
	}

	// === 8. SERVICES ===
	// *sqlite.DB satisfies every repository interface.
	notifications := service.NewNotificationService(db, bus, logger)
	access := service.NewAccess(db, db, db, enforcer)
	executions := service.NewExecutionService(runner, logger)

	accounts := service.NewAuthService(db, tokens, auth.NewPasswordService(), logger)
	snippets := service.NewSnippetService(db, db, db, access, bus, notifications, db, logger)
	collaborators := service.NewCollaboratorService(db, db, access, bus, notifications, logger)
	comments := service.NewCommentService(db, access, bus, notifications, db, logger)
	quests := service.NewQuestService(game.NewCatalog(game.DefaultQuests()), db, executions, notifications, db, logger)
	teams := service.NewTeamService(db, db, notifications, logger)
	folders := service.NewFolderService(db, logger)
	activities := service.NewActivityService(db)
	media := service.NewMediaService(speech, videos, logger)
	billing := service.NewBillingService(gateway, db, db, service.BillingURLs{
		DefaultPriceID:  cfg.Payment.DefaultPriceID,
		SuccessURL:      cfg.Payment.SuccessURL,
		CancelURL:       cfg.Payment.CancelURL,
		PortalReturnURL: cfg.Payment.PortalReturnURL,
	}, logger)
	mentorSvc := service.NewMentorService(mentorClient, logger)

	// === 9. REALTIME ===
	hub := realtime.NewHub(realtime.HubConfig{
		SendBuffer:  cfg.Realtime.SendBuffer,
		CursorRate:  cfg.Realtime.CursorRate,
		CursorBurst: cfg.Realtime.CursorBurst,
	}, logger)
	bridge := realtime.NewBridge(bus, hub, logger)

	// === 10. HTTP ===
	handlers := server.Handlers{
		Auth:          handler.NewAuthHandler(github, accounts, tokens, cfg.Auth.CookieSecure, logger),
		Snippets:      handler.NewSnippetHandler(snippets, logger),
		Collaboration: handler.NewCollaborationHandler(collaborators, comments, logger),
		Notifications: handler.NewNotificationHandler(notifications, logger),
		Workspace:     handler.NewWorkspaceHandler(folders, teams, activities, quests, logger),
		Integrations:  handler.NewIntegrationHandler(media, billing, mentorSvc, logger),
		Execute:       handler.NewExecuteHandler(executions, logger),
		Realtime:      handler.NewRealtimeHandler(hub, access, cfg.CORS.Origins, logger),
	}

	rateLimit := cfg.RateLimit.Requests
	if cfg.RateLimit.Disabled {
		rateLimit = 0
	}
	srv := server.New(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		CORSOrigins:     cfg.CORS.Origins,
		RateLimit:       rateLimit,
		RateLimitWindow: cfg.RateLimit.Window,
	}, handlers, tokens, db.Ping, logger)

	// === 11. SUPERVISE AND WAIT ===
	// Ctrl+C or SIGTERM cancels ctx; the tree shuts every service down.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tree := supervisor.NewTree(logger, supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})
	tree.AddMessagingService(hub)
	tree.AddMessagingService(bridge)
	tree.AddMessagingService(supervisor.NewFuncService("tts-cache-gc", audioCache.Serve))
	tree.AddAPIService(supervisor.NewHTTPService(srv, cfg.Server.ShutdownTimeout))

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// randomSecret returns 32 random bytes, hex encoded.
func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
