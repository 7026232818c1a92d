package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gigtasks/config"
	"gigtasks/controllers"
	"gigtasks/controllers/admins"
	"gigtasks/controllers/auth"
	"gigtasks/controllers/telegram"
	"gigtasks/controllers/users"
	"gigtasks/database"
	"gigtasks/middleware"
	"gigtasks/routes"
	"gigtasks/scheduler"
	"gigtasks/services/assignment"
	"gigtasks/utils"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func setupLogger(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogger(cfg)

	db, err := database.Connect(cfg.DB, cfg.IsDevelopment())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rc := utils.NewRedisClient(cfg.Redis)
	photos, err := utils.NewPhotoStore(rootCtx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up photo storage")
	}
	tokens := utils.NewTokenManager(cfg, rc, db)

	svc := assignment.New(db, assignment.Options{
		MaxSubmitted: cfg.MaxSubmittedPerWorker,
		Location:     cfg.Location,
		Retention:    cfg.UnsubmittedRetention,
	})

	sched, err := scheduler.New(svc, scheduler.Options{
		Location:           cfg.Location,
		ArchiveSpec:        cfg.ArchiveCron,
		CleanupSpec:        cfg.CleanupCron,
		RejectArchiveDelay: cfg.RejectArchiveDelay,
		Redis:              rc,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up scheduler")
	}

	// the bot is optional; without it reviews happen over HTTP only
	var (
		reportNotifier controllers.ReportNotifier
		reviewNotifier controllers.ReviewNotifier
		webhook        http.Handler
	)
	if cfg.BotToken != "" {
		client := telegram.NewClient(cfg.BotToken)
		notifier := telegram.NewNotifier(client, svc, cfg.AdminIDs, photos)
		reportNotifier, reviewNotifier = notifier, notifier
		webhook = telegram.NewWebhook(svc, client, notifier, cfg.IsAdmin, cfg.WebhookSecret, sched)
	} else {
		log.Warn().Msg("BOT_TOKEN is not set, Telegram notifications are disabled")
	}

	var uploader users.PhotoUploader
	if photos != nil {
		uploader = photos
	}

	router := routes.InitRouter(routes.Deps{
		Auth:           middleware.NewAuth(tokens, db),
		Tasks:          users.NewTaskController(svc, reportNotifier, uploader),
		Review:         admins.NewReviewController(svc, reviewNotifier, sched),
		Login:          admins.NewLoginController(db, tokens),
		Session:        auth.NewController(svc, tokens, cfg.BotToken),
		Cron:           controllers.NewCronController(sched),
		Webhook:        webhook,
		CronKey:        cfg.CronKey,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		TrustedProxies: cfg.TrustedProxies,
	})

	// Logging -> Security headers -> Request ID -> Max Body -> Timeout -> Recovery
	handler := middleware.RequestLog(
		middleware.SecurityHeaders(cfg.IsDevelopment())(
			middleware.RequestID(
				middleware.MaxBody(cfg.MaxBodyBytes)(
					middleware.Timeout(30 * time.Second)(
						middleware.Recovery(router),
					),
				),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sched.Start()
	go func() {
		log.Info().Str("port", cfg.Port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down server")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	sched.Stop(ctx)
	if rc != nil {
		_ = rc.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server exited")
}
