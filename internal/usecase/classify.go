package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MLeys/hotdog-classifier/internal/classifier"
	"github.com/MLeys/hotdog-classifier/internal/history"
	"github.com/MLeys/hotdog-classifier/internal/imaging"
	"github.com/MLeys/hotdog-classifier/internal/logging"
)

// DownloadError reports a remote image that could not be fetched.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to download image from %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// ClassifierError reports a failure talking to the model.
type ClassifierError struct {
	Err error
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("classification failed: %v", e.Err)
}

func (e *ClassifierError) Unwrap() error {
	return e.Err
}

// History is the aggregator surface the use case records outcomes to.
type History interface {
	Record(ctx context.Context, entry history.Entry) error
	Reset(ctx context.Context) error
	Entries() []history.Entry
	Stats() history.Stats
}

// Options tune the classify flow.
type Options struct {
	MaxImageSize int64
	FixExtension bool
	HTTPClient   *http.Client
}

// ClassifyUseCase orchestrates validation, download, caching, model calls,
// and history bookkeeping for one classification request.
type ClassifyUseCase struct {
	classifier     classifier.Client
	cache          Cache
	history        History
	logger         *zap.Logger
	httpClient     *http.Client
	maxImageSize   int64
	fixExtension   bool
	cacheTTL       time.Duration
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// New constructs the use case. cache may be nil to disable verdict caching.
func New(cls classifier.Client, cache Cache, hist History, opts Options, logger *zap.Logger) *ClassifyUseCase {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ClassifyUseCase{
		classifier:     cls,
		cache:          cache,
		history:        hist,
		logger:         logger.Named("classify_usecase"),
		httpClient:     httpClient,
		maxImageSize:   opts.MaxImageSize,
		fixExtension:   opts.FixExtension,
		cacheTTL:       5 * time.Minute,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// ClassifyFile classifies uploaded file bytes.
func (uc *ClassifyUseCase) ClassifyFile(ctx context.Context, name, mimeType string, data []byte) (string, *classifier.Verdict, error) {
	requestID := uuid.NewString()
	if err := imaging.ValidateFormat(mimeType); err != nil {
		return requestID, nil, err
	}
	if err := imaging.ValidateSize(int64(len(data)), uc.maxImageSize); err != nil {
		return requestID, nil, err
	}
	source := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	verdict, err := uc.classify(ctx, requestID, source, data)
	return requestID, verdict, err
}

// ClassifyURL downloads the image behind rawURL and classifies it.
func (uc *ClassifyUseCase) ClassifyURL(ctx context.Context, rawURL string) (string, *classifier.Verdict, error) {
	requestID := uuid.NewString()
	if err := imaging.ValidateURL(rawURL); err != nil {
		return requestID, nil, err
	}

	fetchURL := rawURL
	if uc.fixExtension {
		fetchURL = imaging.EnsureImageExtension(fetchURL)
	}

	data, err := imaging.FetchImage(ctx, uc.httpClient, fetchURL)
	if err != nil {
		return requestID, nil, &DownloadError{URL: fetchURL, Err: err}
	}
	if err := imaging.ValidateSize(int64(len(data)), uc.maxImageSize); err != nil {
		return requestID, nil, err
	}

	verdict, err := uc.classify(ctx, requestID, rawURL, data)
	return requestID, verdict, err
}

// ClassifyBase64 decodes an embedded data:image string and classifies it.
func (uc *ClassifyUseCase) ClassifyBase64(ctx context.Context, encoded string) (string, *classifier.Verdict, error) {
	requestID := uuid.NewString()
	data, _, err := imaging.DecodeDataImage(encoded)
	if err != nil {
		return requestID, nil, err
	}
	if err := imaging.ValidateSize(int64(len(data)), uc.maxImageSize); err != nil {
		return requestID, nil, err
	}
	verdict, err := uc.classify(ctx, requestID, encoded, data)
	return requestID, verdict, err
}

// History returns the retained entries and counters.
func (uc *ClassifyUseCase) History() ([]history.Entry, history.Stats) {
	return uc.history.Entries(), uc.history.Stats()
}

// ResetHistory clears history and stats; the confirmation step is owned by
// the HTTP layer.
func (uc *ClassifyUseCase) ResetHistory(ctx context.Context) error {
	return uc.history.Reset(ctx)
}

// Ping probes the model API.
func (uc *ClassifyUseCase) Ping(ctx context.Context) error {
	return uc.classifier.Ping(ctx)
}

func (uc *ClassifyUseCase) classify(ctx context.Context, requestID, imageSource string, data []byte) (*classifier.Verdict, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.classify", requestID)

	hash := sha1.Sum(data)
	cacheKey := "verdict:" + hex.EncodeToString(hash[:])

	verdict := uc.cachedVerdict(ctx, requestID, cacheKey)
	if verdict == nil {
		fresh, err := uc.classifier.Classify(ctx, data)
		if err != nil {
			wrapped := &ClassifierError{Err: logging.NewOperationError("usecase.model_classify", requestID, err)}
			opLogger.Error("model call failed", zap.Error(wrapped))
			return nil, wrapped
		}
		verdict = fresh
		uc.storeVerdict(ctx, requestID, cacheKey, verdict)
	}

	entry := history.Entry{
		ImageSource: imageSource,
		Label:       verdict.Label,
		IsHotdog:    verdict.IsHotdog,
		Description: verdict.Description,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if err := uc.history.Record(ctx, entry); err != nil {
		wrapped := logging.NewOperationError("usecase.record_history", requestID, err)
		opLogger.Error("failed to persist history entry", zap.Error(wrapped))
		return nil, wrapped
	}

	opLogger.Info("classification complete", zap.Bool("is_hotdog", verdict.IsHotdog))
	return verdict, nil
}

// cachedVerdict returns the verdict for an identical previously seen image,
// or nil on any miss or cache trouble.
func (uc *ClassifyUseCase) cachedVerdict(ctx context.Context, requestID, cacheKey string) *classifier.Verdict {
	if uc.cache == nil {
		return nil
	}

	var cached string
	err := uc.withCacheRetry(ctx, requestID, "cache.get.verdict", func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		cached = value
		return nil
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.WithOperation(uc.logger, "cache.get.verdict", requestID).Warn("cache read failed", zap.Error(err))
		}
		return nil
	}

	var verdict classifier.Verdict
	if err := json.Unmarshal([]byte(cached), &verdict); err != nil {
		logging.WithOperation(uc.logger, "cache.get.verdict", requestID).Warn("failed to decode cached verdict", zap.Error(err))
		return nil
	}
	return &verdict
}

// storeVerdict caches a fresh verdict; failures are logged, not fatal, since
// the verdict is already in hand.
func (uc *ClassifyUseCase) storeVerdict(ctx context.Context, requestID, cacheKey string, verdict *classifier.Verdict) {
	if uc.cache == nil {
		return
	}
	serialized, err := json.Marshal(verdict)
	if err != nil {
		uc.logger.Warn("failed to serialize verdict for cache", zap.Error(err))
		return
	}
	if err := uc.withCacheRetry(ctx, requestID, "cache.set.verdict", func() error {
		return uc.cache.Set(ctx, cacheKey, string(serialized), uc.cacheTTL)
	}); err != nil {
		logging.WithOperation(uc.logger, "cache.set.verdict", requestID).Warn("cache write failed", zap.Error(err))
	}
}

func (uc *ClassifyUseCase) withCacheRetry(ctx context.Context, requestID, operation string, fn func() error) error {
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

		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
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
