package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"kampus/api/internal/app"
	"kampus/api/internal/config"
	"kampus/api/internal/email"
	"kampus/api/internal/feed"
	"kampus/api/internal/logging"
	"kampus/api/internal/metrics"
	"kampus/api/internal/photos"
	"kampus/api/internal/prefs"
	"kampus/api/internal/push"
	"kampus/api/internal/search"
	"kampus/api/internal/session"
	"kampus/api/internal/store"
)

func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "kampus-api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger setup failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir, logger.Named("migrate")); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	dataStore := store.NewPostgresStore(db)

	sessions, err := session.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	defer sessions.Close()
	redisClient := sessions.Client()

	reports := feed.NewRedisFeed(redisClient, cfg.FeedStream,
		feed.WithSnapshot(dataStore.ReportSnapshot(cfg.FeedWindow)),
		feed.WithBlock(cfg.FeedBlock),
		feed.WithLogger(logger.Named("feed.reports")),
	)
	announcements := feed.NewRedisFeed(redisClient, cfg.AnnouncementStream,
		feed.WithBlock(cfg.FeedBlock),
		feed.WithLogger(logger.Named("feed.announcements")),
	)

	publisher, closePush := buildPublisher(cfg, logger.Named("push"))
	defer closePush()

	photoStorage, err := photos.New(ctx, photos.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
		URLTTL:    cfg.PhotoURLTTL,
	}, logger.Named("photos"))
	switch {
	case errors.Is(err, photos.ErrNotConfigured):
		logger.Info("photo storage disabled")
	case err != nil:
		return fmt.Errorf("photo storage: %w", err)
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts, logger)
	go searchService.ReindexAllFromPG(ctx)

	collector, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		logger.Info("smtp not configured, verification codes are returned in responses")
	}

	service := app.New(cfg, app.Deps{
		Store:         dataStore,
		Sessions:      sessions,
		Reports:       reports,
		Announcements: announcements,
		Preferences:   prefs.NewStore(redisClient),
		Push:          publisher,
		Photos:        photoStorage,
		Search:        searchService,
		Email:         mailer,
		Metrics:       collector,
		Logger:        logger,
	})
	if err := service.Bootstrap(ctx); err != nil {
		logger.Warn("bootstrap error (will retry on next restart)", zap.Error(err))
	}

	server := app.NewHTTPServer(service, cfg.CORSOrigin).Server(cfg.Addr)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("kampus api listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	searchService.Wait()
	return nil
}

// buildPublisher fans push messages out to every configured transport.
func buildPublisher(cfg config.Config, logger *zap.Logger) (push.Publisher, func()) {
	var (
		fanout  push.Fanout
		closers []func()
	)
	if strings.TrimSpace(cfg.MQTTBroker) != "" {
		mqttPublisher, err := push.NewMQTTPublisher(push.MQTTConfig{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, logger)
		if err != nil {
			logger.Warn("mqtt push disabled", zap.Error(err))
		} else {
			fanout = append(fanout, mqttPublisher)
			closers = append(closers, mqttPublisher.Close)
		}
	}
	if strings.TrimSpace(cfg.PushWebhookURL) != "" {
		fanout = append(fanout, push.NewWebhookPublisher(cfg.PushWebhookURL, cfg.PushWebhookKey, logger))
	}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if len(fanout) == 0 {
		logger.Info("push delivery disabled")
		return push.Nop{}, closeAll
	}
	return fanout, closeAll
}
