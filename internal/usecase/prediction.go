package usecase

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"github.com/example/dermscan/internal/classifier"
	"github.com/example/dermscan/internal/logging"
	"github.com/example/dermscan/internal/metrics"
)

// ErrInvalidImage marks uploads that could not be decoded as an image.
var ErrInvalidImage = errors.New("invalid image input")

// ErrResultNotFound marks lookups for unknown or expired request IDs.
var ErrResultNotFound = errors.New("prediction result not found")

// PredictionRecord is the outcome of a single classification request, cached
// for the configured TTL under both its request ID and its image hash.
type PredictionRecord struct {
	RequestID   string                  `json:"request_id"`
	Predictions []classifier.Prediction `json:"predictions"`
	ImageHash   string                  `json:"sha1_hash"`
	TopK        int                     `json:"top_k"`
	CreatedAt   time.Time               `json:"created_at"`
}

// PredictionUseCase orchestrates decoding, caching and inference.
type PredictionUseCase struct {
	engine         classifier.Classifier
	cache          Cache
	logger         *zap.Logger
	resultTTL      time.Duration
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewPredictionUseCase constructs the use case. engine may be nil when model
// loading was skipped; prediction calls then fail with
// classifier.ErrNotLoaded instead of crashing.
func NewPredictionUseCase(engine classifier.Classifier, cache Cache, logger *zap.Logger, resultTTL time.Duration) *PredictionUseCase {
	return &PredictionUseCase{
		engine:         engine,
		cache:          cache,
		logger:         logger.Named("prediction_usecase"),
		resultTTL:      resultTTL,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Predict decodes imageBytes, serves identical uploads from the cache and
// otherwise runs the classifier. The boolean reports whether the result came
// from the cache.
func (uc *PredictionUseCase) Predict(ctx context.Context, imageBytes []byte, topK int) (*PredictionRecord, bool, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.predict", requestID)

	if len(imageBytes) == 0 {
		metrics.ObservePrediction("invalid_input", 0)
		return nil, false, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}

	img, format, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		metrics.ObservePrediction("invalid_input", 0)
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	if topK < 1 {
		topK = 1
	}

	sum := sha1.Sum(imageBytes)
	hash := hex.EncodeToString(sum[:])
	hashKey := fmt.Sprintf("prediction:hash:%s:%d", hash, topK)

	if cached, err := uc.cacheGet(ctx, requestID, "cache.get.by_hash", hashKey); err == nil {
		var record PredictionRecord
		if err := json.Unmarshal([]byte(cached), &record); err != nil {
			opLogger.Warn("failed to decode cached prediction", zap.Error(err))
		} else {
			metrics.ObservePrediction("cached", 0)
			return &record, true, nil
		}
	} else if !errors.Is(err, ErrCacheMiss) {
		opLogger.Warn("cache read failed", zap.Error(err))
	}

	if uc.engine == nil {
		metrics.ObservePrediction("not_loaded", 0)
		return nil, false, classifier.ErrNotLoaded
	}

	start := time.Now()
	predictions, err := uc.engine.Classify(ctx, img, topK)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObservePrediction("error", elapsed)
		if errors.Is(err, classifier.ErrNotLoaded) {
			return nil, false, err
		}
		wrapped := logging.NewOperationError("usecase.classify", requestID, err)
		opLogger.Error("inference failed", zap.Error(wrapped), zap.String("format", format))
		return nil, false, wrapped
	}
	metrics.ObservePrediction("ok", elapsed)

	record := &PredictionRecord{
		RequestID:   requestID,
		Predictions: predictions,
		ImageHash:   hash,
		TopK:        topK,
		CreatedAt:   time.Now().UTC(),
	}

	serialized, err := json.Marshal(record)
	if err != nil {
		opLogger.Error("failed to serialize prediction record", zap.Error(err))
		return record, false, nil
	}

	// Caching is best effort: a prediction that already succeeded is
	// returned even when the cache is down.
	idKey := fmt.Sprintf("prediction:id:%s", requestID)
	for _, key := range []string{hashKey, idKey} {
		if err := uc.cacheSet(ctx, requestID, "cache.set.result", key, string(serialized)); err != nil {
			opLogger.Warn("failed to cache prediction", zap.Error(err), zap.String("key", key))
		}
	}

	return record, false, nil
}

// GetResult returns the cached record for requestID or ErrResultNotFound.
func (uc *PredictionUseCase) GetResult(ctx context.Context, requestID string) (*PredictionRecord, error) {
	key := fmt.Sprintf("prediction:id:%s", requestID)
	cached, err := uc.cacheGet(ctx, requestID, "cache.get.result", key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}

	var record PredictionRecord
	if err := json.Unmarshal([]byte(cached), &record); err != nil {
		return nil, logging.NewOperationError("usecase.decode_result", requestID, err)
	}
	return &record, nil
}

// Labels returns the class labels of the loaded model.
func (uc *PredictionUseCase) Labels() ([]string, error) {
	if uc.engine == nil {
		return nil, classifier.ErrNotLoaded
	}
	return uc.engine.Labels(), nil
}

func (uc *PredictionUseCase) cacheSet(ctx context.Context, requestID, operation, key, value string) error {
	return uc.withCacheRetry(ctx, requestID, operation, func() error {
		return uc.cache.Set(ctx, key, value, uc.resultTTL)
	})
}

func (uc *PredictionUseCase) cacheGet(ctx context.Context, requestID, operation, key string) (string, error) {
	var result string
	err := uc.withCacheRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, key)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func (uc *PredictionUseCase) withCacheRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("cache operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if errors.Is(err, ErrCacheMiss) {
			// A miss is a definitive answer, not a failure.
			return logging.NewOperationError(operation, requestID, err)
		}

		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("cache operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient cache error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
