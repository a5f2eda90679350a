package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/catdog/internal/classifier"
	"github.com/example/catdog/internal/imageprocessor"
	"github.com/example/catdog/internal/logging"
	"github.com/example/catdog/internal/repository"
)

// Labels produced by the classifier.
const (
	LabelCat = "Cat"
	LabelDog = "Dog"
)

// DogThreshold is the smallest probability labelled as a dog.
const DogThreshold = 0.5

var (
	// ErrMissingImage is returned when no image bytes were supplied.
	ErrMissingImage = errors.New("no image provided")
	// ErrDecode is returned when the upload is not a decodable image.
	ErrDecode = imageprocessor.ErrDecode
	// ErrClassifier is returned when inference fails or yields an invalid score.
	ErrClassifier = errors.New("classification failed")
)

// PredictionRepository defines the persistence operations needed by the use case.
type PredictionRepository interface {
	Insert(ctx context.Context, requestID string, record *repository.PredictionRecord) error
	List(ctx context.Context, requestID string) ([]repository.PredictionRecord, error)
	Aggregate(ctx context.Context, requestID string) (*repository.Aggregation, error)
}

// Prediction is the classification returned to the caller.
type Prediction struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// LabelFor maps a dog probability to its label; 0.5 is a dog.
func LabelFor(probability float64) string {
	if probability >= DogThreshold {
		return LabelDog
	}
	return LabelCat
}

// Option customises a PredictionUseCase.
type Option func(*PredictionUseCase)

// WithClassifierTimeout bounds each inference call.
func WithClassifierTimeout(d time.Duration) Option {
	return func(uc *PredictionUseCase) { uc.classifierTimeout = d }
}

// WithCacheTTL sets how long cached probabilities live.
func WithCacheTTL(d time.Duration) Option {
	return func(uc *PredictionUseCase) { uc.cacheTTL = d }
}

// WithMetrics records prediction outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(uc *PredictionUseCase) { uc.metrics = m }
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(uc *PredictionUseCase) { uc.now = now }
}

// PredictionUseCase runs the decode, classify, label and persist pipeline.
type PredictionUseCase struct {
	repo              PredictionRepository
	cache             Cache
	classifier        classifier.Classifier
	metrics           *Metrics
	logger            *zap.Logger
	classifierTimeout time.Duration
	cacheTTL          time.Duration
	now               func() time.Time
}

// NewPredictionUseCase constructs a new use case instance. cache may be nil.
func NewPredictionUseCase(repo PredictionRepository, cache Cache, clf classifier.Classifier, logger *zap.Logger, opts ...Option) *PredictionUseCase {
	if cache == nil {
		cache = NopCache{}
	}
	uc := &PredictionUseCase{
		repo:              repo,
		cache:             cache,
		classifier:        clf,
		logger:            logger.Named("prediction_usecase"),
		classifierTimeout: 10 * time.Second,
		cacheTTL:          24 * time.Hour,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	if uc.metrics == nil {
		uc.metrics = NewMetrics(nil)
	}
	return uc
}

// Predict classifies imageBytes and appends one record to the store.
//
// A store failure does not fail the call: the classification already
// succeeded, so it is returned and the failure is logged and counted.
func (uc *PredictionUseCase) Predict(ctx context.Context, requestID string, imageBytes []byte) (*Prediction, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.predict", requestID)

	if len(imageBytes) == 0 {
		return nil, logging.NewOperationError("usecase.predict", requestID, ErrMissingImage)
	}

	cacheKey := predictionCacheKey(imageBytes)

	probability, cached := uc.cachedProbability(ctx, opLogger, cacheKey)
	if !cached {
		var err error
		probability, err = uc.classify(ctx, opLogger, requestID, imageBytes)
		if err != nil {
			return nil, err
		}
	}

	prediction := &Prediction{Label: LabelFor(probability), Probability: probability}
	uc.metrics.predictions.WithLabelValues(prediction.Label).Inc()

	record := &repository.PredictionRecord{
		Label:       prediction.Label,
		Probability: prediction.Probability,
		Timestamp:   uc.now().UTC(),
	}
	if err := uc.repo.Insert(ctx, requestID, record); err != nil {
		uc.metrics.storeFailures.Inc()
		opLogger.Error("failed to persist prediction", zap.Error(err),
			zap.String("label", prediction.Label), zap.Float64("probability", prediction.Probability))
	}

	if !cached {
		value := strconv.FormatFloat(probability, 'g', -1, 64)
		if err := uc.cache.Set(ctx, cacheKey, value, uc.cacheTTL); err != nil {
			opLogger.Warn("failed to cache prediction", zap.Error(err))
		}
	}

	opLogger.Info("image classified",
		zap.String("label", prediction.Label),
		zap.Float64("probability", prediction.Probability),
		zap.Bool("cached", cached))
	return prediction, nil
}

func (uc *PredictionUseCase) classify(ctx context.Context, opLogger *zap.Logger, requestID string, imageBytes []byte) (float64, error) {
	tensor, err := imageprocessor.Decode(imageBytes)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.decode_image", requestID, err)
		opLogger.Warn("image decoding failed", zap.Error(wrapped))
		return 0, wrapped
	}

	inferCtx, cancel := context.WithTimeout(ctx, uc.classifierTimeout)
	defer cancel()

	start := time.Now()
	probability, err := uc.classifier.Predict(inferCtx, tensor)
	uc.metrics.inferenceSeconds.Observe(time.Since(start).Seconds())
	if err == nil {
		probability, err = classifier.CheckProbability(probability)
	}
	if err != nil {
		wrapped := logging.NewOperationError("usecase.classify", requestID, fmt.Errorf("%w: %w", ErrClassifier, err))
		opLogger.Error("classification failed", zap.Error(wrapped))
		return 0, wrapped
	}
	return probability, nil
}

func (uc *PredictionUseCase) cachedProbability(ctx context.Context, opLogger *zap.Logger, key string) (float64, bool) {
	value, err := uc.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			opLogger.Warn("failed to read cache", zap.Error(err))
		}
		return 0, false
	}

	probability, err := strconv.ParseFloat(value, 64)
	if err == nil {
		probability, err = classifier.CheckProbability(probability)
	}
	if err != nil {
		opLogger.Warn("ignoring malformed cached prediction", zap.Error(err), zap.String("value", value))
		return 0, false
	}
	uc.metrics.cacheHits.Inc()
	return probability, true
}

// ListRecords returns every stored prediction in the store's order.
func (uc *PredictionUseCase) ListRecords(ctx context.Context, requestID string) ([]repository.PredictionRecord, error) {
	records, err := uc.repo.List(ctx, requestID)
	if err != nil {
		logging.WithOperation(uc.logger, "usecase.list_records", requestID).Error("failed to list records", zap.Error(err))
		return nil, err
	}
	if records == nil {
		records = []repository.PredictionRecord{}
	}
	return records, nil
}
