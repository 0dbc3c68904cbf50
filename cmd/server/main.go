package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/htyf-mp-community/Thread-Rest/internal/api"
	"github.com/htyf-mp-community/Thread-Rest/internal/config"
	"github.com/htyf-mp-community/Thread-Rest/internal/db"
	"github.com/htyf-mp-community/Thread-Rest/internal/events"
	"github.com/htyf-mp-community/Thread-Rest/internal/media"
	"github.com/htyf-mp-community/Thread-Rest/internal/observ"
	"github.com/htyf-mp-community/Thread-Rest/internal/realtime"
	"github.com/htyf-mp-community/Thread-Rest/internal/repository"
	mongostore "github.com/htyf-mp-community/Thread-Rest/internal/repository/mongo"
	"github.com/htyf-mp-community/Thread-Rest/internal/repository/postgres"
	"github.com/htyf-mp-community/Thread-Rest/internal/service"
	"github.com/htyf-mp-community/Thread-Rest/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 1. Load config
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ---------------------------------------------------------------
	// 2. Create logger
	// ---------------------------------------------------------------
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// ---------------------------------------------------------------
	// 3. Postgres: migrate, then open the pool
	// ---------------------------------------------------------------
	if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	// ---------------------------------------------------------------
	// 4. MongoDB for messages
	// ---------------------------------------------------------------
	mongoDB, err := mongostore.NewDB(ctx, cfg.MongoURL, cfg.MongoDatabase)
	if err != nil {
		return fmt.Errorf("connect to mongo: %w", err)
	}
	defer mongoDB.Client().Disconnect(context.Background())

	messageStore := mongostore.NewMessageStore(mongoDB)
	if err := messageStore.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}

	// ---------------------------------------------------------------
	// 5. Repositories
	//
	// Assigned to the interface types so a missing method fails the build
	// here rather than at the call site.
	// ---------------------------------------------------------------
	pool := database.Pool()
	var (
		userRepo    repository.UserRepository    = postgres.NewUserStore(pool)
		channelRepo repository.ChannelRepository = postgres.NewChannelStore(pool)
		postRepo    repository.PostRepository    = postgres.NewPostStore(pool)
		likeRepo    repository.LikeRepository    = postgres.NewLikeStore(pool)
		replyRepo   repository.ReplyRepository   = postgres.NewReplyStore(pool)
		messageRepo repository.MessageRepository = messageStore
	)

	checks := map[string]api.Check{
		"postgres": database.Health,
		"mongo": func(ctx context.Context) error {
			return mongoDB.Client().Ping(ctx, nil)
		},
	}

	// ---------------------------------------------------------------
	// 6. Blob store and signed URLs
	// ---------------------------------------------------------------
	var (
		blobs  storage.BlobStore
		signer storage.Signer
		cached *storage.CachedSigner
	)
	if cfg.S3.Endpoint != "" {
		s3, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
			URLTTL:    cfg.SignedURLTTL,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect to blob store: %w", err)
		}
		blobs, signer = s3, s3
		checks["blob_store"] = s3.Health
	} else {
		logger.Warn("S3_ENDPOINT not set, media is kept in memory (development only)")
		mem := storage.NewMemoryStore(cfg.SignedURLTTL)
		blobs, signer = mem, mem
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		cached = storage.NewCachedSigner(signer, rdb, cfg.SignedURLTTL, logger)
		signer = cached
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	processor := media.NewProcessor(blobs, media.NewFFmpeg(cfg.FFmpegPath), logger)
	if cached != nil {
		processor.ForgetOnDiscard(cached)
	}
	resolver := media.NewResolver(signer)

	// ---------------------------------------------------------------
	// 7. Events and the real-time hub
	// ---------------------------------------------------------------
	var publisher events.Publisher = events.Nop{}
	if cfg.NatsURL != "" {
		nc, err := events.ConnectNATS(cfg.NatsURL, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		publisher = nc
		checks["nats"] = func(context.Context) error { return nc.Health() }
	}

	hub := realtime.NewHub(logger)

	// ---------------------------------------------------------------
	// 8. Services and handlers
	// ---------------------------------------------------------------
	userSvc := service.NewUserService(userRepo, processor, resolver, logger)
	messageSvc := service.NewMessageService(userRepo, channelRepo, messageRepo, processor, resolver, hub, publisher, logger)
	postSvc := service.NewPostService(userRepo, postRepo, likeRepo, processor, resolver, publisher, logger)
	engagementSvc := service.NewEngagementService(userRepo, likeRepo, replyRepo, resolver, publisher, logger)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Handlers{
		Auth:     api.NewAuthHandler(userSvc, cfg.JWTSecret, cfg.JWTTTL, logger),
		Messages: api.NewMessageHandler(messageSvc, cfg.MaxUploadBytes, logger),
		Channels: api.NewChannelHandler(messageSvc, logger),
		Posts:    api.NewPostHandler(postSvc, engagementSvc, cfg.MaxUploadBytes, logger),
		Users:    api.NewUserHandler(userSvc, postSvc, cfg.MaxUploadBytes, logger),
		Health:   api.NewHealthHandler(checks, logger),
		Hub:      hub,
	}, cfg.JWTSecret, logger)
	router.MaxMultipartMemory = 8 << 20

	// ---------------------------------------------------------------
	// 9. Serve until SIGINT/SIGTERM
	// ---------------------------------------------------------------
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting Thread-Rest",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
