package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	v1 "brunox-chat/cmd/api/router/v1"
	"brunox-chat/internal/config"
	cacheAdapter "brunox-chat/internal/infrastructure/cache/adapter"
	cport "brunox-chat/internal/infrastructure/cache/port"
	"brunox-chat/internal/infrastructure/database"
	"brunox-chat/internal/infrastructure/logger"
	queueAdapter "brunox-chat/internal/infrastructure/queue/adapter"
	qport "brunox-chat/internal/infrastructure/queue/port"
	"brunox-chat/internal/infrastructure/realtime"
	"brunox-chat/internal/infrastructure/wallet"
	"brunox-chat/internal/pkg/chat/application/pipeline"
	"brunox-chat/internal/pkg/chat/application/task"
	"brunox-chat/internal/pkg/chat/application/usecase"
	repoAdapter "brunox-chat/internal/pkg/chat/persistence/repository/adapter"
	repository "brunox-chat/internal/pkg/chat/persistence/repository/port"
	httpHandler "brunox-chat/internal/pkg/chat/presentation/http"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const feedRestartBackoff = 2 * time.Second

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: .env file could not be loaded: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	log := logger.New(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, feed, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer closeStore()

	cache, err := openCache(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to cache")
	}
	defer cache.Close()

	client, server, err := openQueue(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up task queue")
	}
	defer client.Close()

	directory := usecase.NewDirectoryCache(cache, cfg.DirectoryCacheTTL, log)

	task.RegisterConfirmProofTask(server, usecase.NewConfirmProofUseCase(repo, wallet.Verifier{}), log)

	sendUC := usecase.NewSendMessageUseCase(repo, log)
	sendUC.SignTimeout = cfg.SignTimeout
	sendUC.Directory = directory
	sendUC.Scheduler = task.NewConfirmProofScheduler(client, cfg.ConfirmDelay)

	hub := pipeline.NewHub(feed, log)
	router := realtime.NewRouter()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		hub.Supervise(ctx, feedRestartBackoff)
	}()
	go func() {
		defer wg.Done()
		if err := server.Run(ctx); err != nil {
			log.Error().Err(err).Msg("task server stopped")
			stop()
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "OK",
			"sessions":    router.Count(),
			"subscribers": hub.Subscribers(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1.RegisterRoutes(r, httpHandler.Deps{
		Repo:      repo,
		Feed:      hub,
		Directory: directory,
		Send:      sendUC,
		Router:    router,
		Log:       log,
	})

	srv := &http.Server{Addr: cfg.Addr(), Handler: r}
	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("store", cfg.StoreDriver).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	router.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}
	wg.Wait()
}

// openStore returns the repository and change feed for the configured driver.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (repository.ChatRepository, repository.MessageFeed, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		repo := repoAdapter.NewMemoryChatRepository()
		return repo, repo, func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := database.Connect(connectCtx, cfg.DBURL, database.WithMaxConns(cfg.DBMaxConns))
	if err != nil {
		return nil, nil, nil, err
	}
	if err := database.Migrate(connectCtx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	return repoAdapter.NewPgChatRepository(pool), repoAdapter.NewPgMessageFeed(pool, log), pool.Close, nil
}

func openCache(ctx context.Context, cfg *config.Config) (cport.Cache, error) {
	if !cfg.UsesRedis() {
		return cacheAdapter.NewMemoryCache(), nil
	}
	return cacheAdapter.NewRedisCache(ctx, cfg.RedisURL, cfg.ServiceName+":")
}

func openQueue(cfg *config.Config, log zerolog.Logger) (qport.Client, qport.Server, error) {
	if !cfg.UsesRedis() {
		q := queueAdapter.NewInlineQueue(log)
		return q, q, nil
	}
	client, err := queueAdapter.NewAsynqClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	server, err := queueAdapter.NewAsynqServer(queueAdapter.ServerConfig{
		RedisURL:    cfg.RedisURL,
		Concurrency: cfg.AsynqConcurrency,
		Queues:      cfg.AsynqQueues,
	}, log)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return client, server, nil
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
