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

	"github.com/example/dermscan/internal/assistant"
	"github.com/example/dermscan/internal/classifier"
	"github.com/example/dermscan/internal/config"
	"github.com/example/dermscan/internal/handlers"
	"github.com/example/dermscan/internal/logging"
	"github.com/example/dermscan/internal/recommend"
	"github.com/example/dermscan/internal/usecase"
)

func main() {
	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg := config.Load()

	cache := initCache(cfg, logger)

	var engine classifier.Classifier
	if cfg.SkipModelLoad {
		logger.Warn("model load skipped; prediction requests will be rejected")
	} else {
		eng, err := classifier.NewEngine(cfg.ModelPath, cfg.MetadataPath, cfg.ONNXRuntimeLib)
		if err != nil {
			logger.Fatal("failed to load model",
				zap.Error(err),
				zap.String("model_path", cfg.ModelPath),
				zap.String("metadata_path", cfg.MetadataPath))
		}
		defer eng.Close()
		engine = eng
		logger.Info("model loaded",
			zap.String("model_path", cfg.ModelPath),
			zap.Strings("classes", eng.Labels()))
	}

	uc := usecase.NewPredictionUseCase(engine, cache, logger, cfg.ResultTTL)

	assistantClient := assistant.NewClient(assistant.Config{
		GroqAPIKey:   cfg.GroqAPIKey,
		GroqModel:    cfg.GroqModel,
		GeminiAPIKey: cfg.GeminiAPIKey,
		GeminiModel:  cfg.GeminiModel,
	}, logger)

	clinics := recommend.NewClinicFetcher(logger)

	r := gin.Default()
	r.MaxMultipartMemory = cfg.MaxUploadSize

	handlers.RegisterRoutes(r, handlers.Options{
		Predictor:     uc,
		Assistant:     assistantClient,
		Clinics:       clinics,
		DefaultTopK:   cfg.DefaultTopK,
		MaxUploadSize: cfg.MaxUploadSize,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	logger.Info("dermscan API listening", zap.String("addr", server.Addr))
	if err := serveHTTPServer(server, 15*time.Second, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initCache(cfg *config.Config, logger *zap.Logger) usecase.Cache {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, using in-process result cache")
		return usecase.NewMemoryCache()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis connection failed", zap.Error(err), zap.String("addr", cfg.RedisAddr))
	}
	return usecase.NewRedisCache(client)
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

// serveHTTPServerWithOptions runs the server until it fails or a shutdown
// signal arrives, then drains in-flight requests within shutdownTimeout. A
// non-nil listener or signal channel overrides the defaults for tests.
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
