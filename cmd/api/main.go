package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"drinkwise/api/internal/analysis"
	"drinkwise/api/internal/app"
	"drinkwise/api/internal/cache"
	"drinkwise/api/internal/config"
	"drinkwise/api/internal/events"
	"drinkwise/api/internal/feed"
	"drinkwise/api/internal/friendship"
	"drinkwise/api/internal/inference"
	"drinkwise/api/internal/logging"
	"drinkwise/api/internal/media"
	"drinkwise/api/internal/notify"
	"drinkwise/api/internal/profile"
	"drinkwise/api/internal/search"
	"drinkwise/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = log.Sync() }()
	ctx := context.Background()

	docs, err := store.Connect(ctx, store.Options{
		Driver:               cfg.StoreDriver,
		PebbleDir:            cfg.PebbleDir,
		DatabaseURL:          cfg.DatabaseURL,
		MigrationsDir:        cfg.MigrationsDir,
		MongoURL:             cfg.MongoURL,
		MongoDatabase:        cfg.MongoDatabase,
		FirestoreProjectID:   cfg.FirestoreProjectID,
		FirestoreCredentials: cfg.FirestoreCredsFile,
	})
	if err != nil {
		log.Fatal("document store connection failed", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer docs.Close()

	var backend cache.Backend = cache.Nop{}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisBackend, err := cache.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatal("redis connection failed", zap.Error(err))
		}
		defer redisBackend.Close()
		backend = redisBackend
		log.Info("using redis for caches")
	}

	var publisher events.Publisher = events.Nop{}
	if strings.TrimSpace(cfg.NATSURL) != "" {
		natsPublisher, err := events.NewNATS(cfg.NATSURL, "drinkwise-api")
		if err != nil {
			log.Fatal("nats connection failed", zap.Error(err))
		}
		defer natsPublisher.Close()
		publisher = natsPublisher
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log.Named("search"))
	}
	searchService := search.NewService(meiliClient, search.NewStoreScan(docs), log.Named("search"))
	defer searchService.Close()

	var inferenceClient inference.Client = inference.Disabled{}
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		inferenceClient = inference.NewGemini(inference.GeminiConfig{
			BaseURL: cfg.GeminiBaseURL,
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
		})
	} else {
		log.Info("inference disabled, analysis uses deterministic fallbacks")
	}

	policy, err := feed.ParsePolicy(cfg.VisibilityPolicy)
	if err != nil {
		log.Fatal("invalid visibility policy", zap.Error(err))
	}

	notifications := notify.NewService(docs, cfg.NotificationCap, log.Named("notify"))
	gateway := feed.NewGateway(docs,
		feed.WithFriendCache(cache.New(backend, "friends", cfg.FriendCacheTTL)),
		feed.WithPolicy(policy),
		feed.WithNotifier(notifications),
		feed.WithEvents(publisher),
		feed.WithLogger(log.Named("feed")),
	)
	manager := friendship.NewManager(docs,
		friendship.WithEvents(publisher),
		friendship.WithInvalidator(gateway),
		friendship.WithNotifier(notifications),
		friendship.WithLogger(log.Named("friendship")),
	)

	deps := app.Deps{
		Store:         docs,
		Friends:       manager,
		Feed:          gateway,
		Notifications: notifications,
		Profiles:      profile.NewService(docs, searchService, log.Named("profile")),
		Analysis:      analysis.NewService(inferenceClient, log.Named("analysis")),
		SearchIndex:   searchService,
		Revoked:       cache.New(backend, "revoked", cfg.AccessTTL),
		Logger:        log,
	}
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		mediaStore, err := media.New(ctx, media.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatal("media storage setup failed", zap.Error(err))
		}
		deps.Media = mediaStore
	}

	service := app.New(cfg, deps)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("drinkwise api listening", zap.String("addr", cfg.Addr), zap.String("store", cfg.StoreDriver), zap.String("visibility", string(policy)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
}
