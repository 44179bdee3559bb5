package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/MLeys/hotdog-classifier/internal/auth"
	"github.com/MLeys/hotdog-classifier/internal/classifier"
	"github.com/MLeys/hotdog-classifier/internal/config"
	"github.com/MLeys/hotdog-classifier/internal/handlers"
	"github.com/MLeys/hotdog-classifier/internal/history"
	"github.com/MLeys/hotdog-classifier/internal/logging"
	"github.com/MLeys/hotdog-classifier/internal/store"
	"github.com/MLeys/hotdog-classifier/internal/usecase"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.OpenRouterAPIKey == "" {
		logger.Fatal("OPENROUTER_API_KEY not found in environment")
	}

	kv, err := store.Open(cfg.DataPath)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err), zap.String("path", cfg.DataPath))
	}
	if err := kv.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	hist := history.New(kv, logger)
	if err := hist.Load(ctx); err != nil {
		logger.Fatal("failed to load history", zap.Error(err))
	}

	var cache usecase.Cache
	if cfg.RedisAddr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		defer redisCancel()
		cache = usecase.NewRedisCache(initRedis(redisCtx, cfg.RedisAddr, logger))
	}

	model := classifier.NewOpenRouter(classifier.OpenRouterConfig{
		APIKey:   cfg.OpenRouterAPIKey,
		BaseURL:  cfg.OpenRouterBaseURL,
		Model:    cfg.OpenRouterModel,
		Referrer: cfg.OpenRouterReferrer,
	}, logger)

	uc := usecase.New(model, cache, hist, usecase.Options{
		MaxImageSize: cfg.MaxImageSize,
		FixExtension: cfg.URLExtensionFix,
		HTTPClient:   &http.Client{Timeout: cfg.RequestTimeout},
	}, logger)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.MaxMultipartMemory = handlers.MaxUploadSize

	var resetGuard gin.HandlerFunc
	if cfg.JWTSecret != "" {
		resetGuard = auth.JWTMiddleware(cfg.JWTSecret)
	}
	handlers.RegisterRoutes(r, uc, resetGuard)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	logger.Info("hotdog classifier listening", zap.String("addr", cfg.HTTPAddr), zap.String("model", cfg.OpenRouterModel))
	if err := serveHTTPServer(server, 15*time.Second, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initRedis(ctx context.Context, addr string, logger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis connection failed", zap.Error(err), zap.String("addr", addr))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
