package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ecto-chat/ecto-server/internal/api"
	"github.com/ecto-chat/ecto-server/internal/attachment"
	"github.com/ecto-chat/ecto-server/internal/auditlog"
	"github.com/ecto-chat/ecto-server/internal/auth"
	"github.com/ecto-chat/ecto-server/internal/bootstrap"
	"github.com/ecto-chat/ecto-server/internal/category"
	"github.com/ecto-chat/ecto-server/internal/channel"
	"github.com/ecto-chat/ecto-server/internal/config"
	"github.com/ecto-chat/ecto-server/internal/dm"
	"github.com/ecto-chat/ecto-server/internal/gateway"
	"github.com/ecto-chat/ecto-server/internal/httputil"
	"github.com/ecto-chat/ecto-server/internal/invite"
	"github.com/ecto-chat/ecto-server/internal/media"
	"github.com/ecto-chat/ecto-server/internal/member"
	"github.com/ecto-chat/ecto-server/internal/message"
	"github.com/ecto-chat/ecto-server/internal/page"
	"github.com/ecto-chat/ecto-server/internal/permission"
	"github.com/ecto-chat/ecto-server/internal/presence"
	"github.com/ecto-chat/ecto-server/internal/readstate"
	"github.com/ecto-chat/ecto-server/internal/role"
	"github.com/ecto-chat/ecto-server/internal/server"
	"github.com/ecto-chat/ecto-server/internal/serverconfig"
	"github.com/ecto-chat/ecto-server/internal/shared"
	"github.com/ecto-chat/ecto-server/internal/store"
	"github.com/ecto-chat/ecto-server/internal/user"
	"github.com/ecto-chat/ecto-server/internal/voice"
	"github.com/ecto-chat/ecto-server/internal/voice/sfu"
	"github.com/ecto-chat/ecto-server/internal/webhook"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

const permissionCacheTTL = 5 * time.Minute

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	if cfg.IsDevelopment() {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
	}
	logger := log.Logger

	logger.Info().Str("env", cfg.Environment).Str("mode", cfg.HostingMode).Msg("starting ecto server")
	if cfg.CORSAllowOrigins == "*" {
		logger.Warn().Msg("CORS_ALLOW_ORIGINS is a wildcard; set an explicit origin for production deployments")
	}

	ctx := context.Background()

	db, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	logger.Info().Str("dialect", string(db.Dialect())).Msg("database connected")

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	serverID, err := bootstrap.EnsureServer(ctx, db, cfg, logger)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	// Repositories.
	serverRepo := server.NewSQLRepository(db, logger)
	configRepo := serverconfig.NewSQLRepository(db, logger)
	userRepo := user.NewSQLRepository(db, logger)
	memberRepo := member.NewSQLRepository(db, serverID, logger)
	channelRepo := channel.NewSQLRepository(db, serverID, logger)
	categoryRepo := category.NewSQLRepository(db, serverID, logger)
	roleRepo := role.NewSQLRepository(db, serverID, logger)
	messageRepo := message.NewSQLRepository(db, logger)
	inviteRepo := invite.NewSQLRepository(db, serverID, logger)
	readstateRepo := readstate.NewSQLRepository(db, logger)
	auditRepo := auditlog.NewSQLRepository(db, serverID, logger)
	dmRepo := dm.NewSQLRepository(db, serverID, logger)
	pageRepo := page.NewSQLRepository(db, logger)
	webhookRepo := webhook.NewSQLRepository(db, logger)
	sharedRepo := shared.NewSQLRepository(db, serverID, logger)
	attachmentRepo := attachment.NewSQLRepository(db, logger)

	// Permission engine.
	permStore := permission.NewSQLStore(db)
	permCache := permission.NewCache(permissionCacheTTL)
	permService := permission.NewService(permStore, permCache, logger)
	permInvalidator := permission.NewInvalidator(permCache)

	// Auth.
	var central *auth.CentralVerifier
	if cfg.CentralURL != "" {
		central = auth.NewCentralVerifier(cfg.CentralURL, logger)
	}
	authService := auth.NewService(userRepo, central, memberRepo, cfg, logger)

	// Storage.
	storage, err := newStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	quota := media.NewQuota(cfg.StorageQuotaBytes, attachmentRepo, sharedRepo)

	// Realtime plumbing.
	registry := gateway.NewRegistry()
	dispatcher := gateway.NewDispatcher(registry, logger)
	presenceMgr := presence.NewManager(func(p wire.Presence) {
		dispatcher.ToAll(wire.EventPresenceUpdate, p)
	}, logger)

	// Voice control plane.
	pool, err := voice.NewWorkerPool(sfu.NewLoopbackEngine(), sfu.Settings{
		MinPort:     cfg.MediasoupMinPort,
		MaxPort:     cfg.MediasoupMaxPort,
		AnnouncedIP: cfg.ServerAddress,
	}, voice.PoolSize(), logger)
	if err != nil {
		return fmt.Errorf("start voice workers: %w", err)
	}
	voiceStates := voice.NewStateManager()
	voiceCtrl := voice.NewController(pool, voiceStates, dispatcher, cfg.MaxVoiceParticipants, logger)

	gatewayHandler := gateway.NewHandler(gateway.Deps{
		Config:      cfg,
		Auth:        authService,
		Members:     memberRepo,
		Channels:    channelRepo,
		Categories:  categoryRepo,
		Roles:       roleRepo,
		Server:      serverRepo,
		ServerCfg:   configRepo,
		ReadStates:  readstateRepo,
		Dms:         dmRepo,
		Perms:       permService,
		Presence:    presenceMgr,
		Voice:       voiceCtrl,
		VoiceStates: voiceStates,
		Registry:    registry,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	notifyHub := gateway.NewNotifyHub(cfg, authService, memberRepo, logger)

	// Orphaned uploads are swept hourly.
	purgeCtx, purgeCancel := context.WithCancel(ctx)
	defer purgeCancel()
	go purgeOrphans(purgeCtx, attachmentRepo, storage, logger)

	app := fiber.New(fiber.Config{
		AppName:   "ecto",
		BodyLimit: cfg.BodyLimitBytes(),
		ErrorHandler: func(c fiber.Ctx, err error) error {
			status := fiber.StatusInternalServerError
			message := "An internal error occurred"
			if e, ok := errors.AsType[*fiber.Error](err); ok {
				status = e.Code
				message = e.Message
			} else {
				log.Error().Err(err).
					Str("method", c.Method()).
					Str("path", c.Path()).
					Msg("unhandled error")
			}
			return c.Status(status).JSON(httputil.ErrorResponse{
				Error: message,
				Code:  statusToCode(status),
			})
		},
	})

	app.Use(requestid.New())
	app.Use(httputil.RequestLogger(logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  []string{cfg.CORSAllowOrigins},
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"X-Request-ID", "Retry-After"},
	}))

	handlers := api.Handlers{
		Auth:       api.NewAuthHandler(authService, logger),
		Server:     api.NewServerHandler(serverRepo, configRepo, memberRepo, inviteRepo, auditRepo, permInvalidator, dispatcher, db, logger),
		Channels:   api.NewChannelHandler(channelRepo, permService, permStore, permInvalidator, dispatcher, db, logger),
		Categories: api.NewCategoryHandler(categoryRepo, permStore, permInvalidator, dispatcher, db, logger),
		Messages:   api.NewMessageHandler(messageRepo, channelRepo, memberRepo, readstateRepo, configRepo, auditRepo, permService, dispatcher, notifyHub, db, logger),
		Members:    api.NewMemberHandler(memberRepo, roleRepo, serverRepo, messageRepo, readstateRepo, dmRepo, auditRepo, permService, permInvalidator, dispatcher, gatewayHandler, db, logger),
		Roles:      api.NewRoleHandler(roleRepo, permInvalidator, dispatcher, logger),
		Invites:    api.NewInviteHandler(inviteRepo, serverRepo, memberRepo, permService, logger),
		ReadState:  api.NewReadStateHandler(readstateRepo, logger),
		AuditLog:   api.NewAuditLogHandler(auditRepo, logger),
		Dms:        api.NewDmHandler(dmRepo, memberRepo, configRepo, dispatcher, notifyHub, logger),
		Webhooks:   api.NewWebhookHandler(webhookRepo, channelRepo, messageRepo, dispatcher, notifyHub, cfg.JWTSecret, logger),
		Search:     api.NewSearchHandler(messageRepo, channelRepo, permService, logger),
		Pages:      api.NewPageHandler(pageRepo, channelRepo, dispatcher, logger),
		Hub:        api.NewHubHandler(sharedRepo, storage, permService, permInvalidator, logger),
		Files:      api.NewFileHandler(attachmentRepo, sharedRepo, serverRepo, configRepo, storage, quota, permService, dispatcher, cfg.MaxUploadSizeBytes, logger),
		Health:     api.NewHealthHandler(db),
		Gateway:    api.NewGatewayHandler(gatewayHandler, notifyHub),
	}
	api.Register(app, cfg, authService, permService, handlers)

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info().Msg("shutting down")
		purgeCancel()
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info().Str("addr", addr).Msg("listening")
	if err := app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	// Drain realtime state after the HTTP listener stops.
	gatewayHandler.Shutdown()
	notifyHub.Shutdown()
	registry.Close()
	voiceCtrl.Close()
	pool.Close()
	return nil
}

// newStorage selects S3 when a bucket is configured, local disk otherwise.
func newStorage(ctx context.Context, cfg *config.Config) (media.StorageProvider, error) {
	baseURL := cfg.ServerAddress
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}

	if cfg.S3Configured() {
		return media.NewS3Storage(ctx, media.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			BaseURL:   baseURL,
		})
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return media.NewLocalStorage(cfg.UploadDir, baseURL)
}

// purgeOrphans removes pending attachment rows that no message ever claimed,
// along with their stored bytes.
func purgeOrphans(ctx context.Context, attachments attachment.Repository, storage media.StorageProvider, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		urls, err := attachments.PurgeOrphans(ctx, time.Now().Add(-24*time.Hour))
		if err != nil {
			logger.Error().Err(err).Msg("purge orphan attachments failed")
			continue
		}
		for _, u := range urls {
			if key := media.KeyFromURL(u); key != "" {
				if err := storage.Delete(ctx, key); err != nil {
					logger.Warn().Err(err).Str("key", key).Msg("delete orphan file failed")
				}
			}
		}
		if len(urls) > 0 {
			logger.Info().Int("count", len(urls)).Msg("purged orphan attachments")
		}
	}
}

// statusToCode maps statuses from fiber's built-in errors (404, 405, body
// limit) to the closest protocol code.
func statusToCode(status int) wire.Code {
	switch {
	case status == fiber.StatusUnauthorized:
		return wire.Unauthorized
	case status == fiber.StatusForbidden:
		return wire.Forbidden
	case status >= 400 && status < 500:
		return wire.Validation
	default:
		return wire.Internal
	}
}
