package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/catdog/internal/logging"
)

// PredictionRecord represents one persisted classification.
type PredictionRecord struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	Label       string    `gorm:"column:label;size:8;not null" json:"label"`
	Probability float64   `gorm:"column:probability;not null" json:"probability"`
	Timestamp   time.Time `gorm:"column:timestamp;not null" json:"timestamp"`
}

// TableName overrides the default table name.
func (PredictionRecord) TableName() string {
	return "predictions"
}

// Aggregation is the raw summary computed by the database.
type Aggregation struct {
	TotalCount         int64
	DogCount           int64
	AverageProbability float64
}

// PredictionRepository provides persistence APIs for prediction records.
type PredictionRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewPredictionRepository creates a new repository instance.
func NewPredictionRepository(db *gorm.DB, logger *zap.Logger) *PredictionRepository {
	return &PredictionRepository{
		db:             db,
		logger:         logger.Named("prediction_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *PredictionRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&PredictionRecord{})
}

// Insert persists a prediction record. The record is never updated afterwards.
//
// Inserts are attempted once: a timed out INSERT may still have committed, and
// repeating it would store the prediction twice.
func (r *PredictionRepository) Insert(ctx context.Context, requestID string, record *PredictionRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		logging.WithOperation(r.logger, "repository.insert", requestID).Error("database operation failed", zap.Error(err))
		return logging.NewOperationError("repository.insert", requestID, err)
	}
	return nil
}

// List returns every record in insertion order.
func (r *PredictionRepository) List(ctx context.Context, requestID string) ([]PredictionRecord, error) {
	var records []PredictionRecord
	err := r.executeWithRetry(ctx, "repository.list", requestID, func() error {
		records = records[:0]
		return r.db.WithContext(ctx).Order("id ASC").Find(&records).Error
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Aggregate computes record totals in a single query. Reads are retried on
// transient errors.
func (r *PredictionRepository) Aggregate(ctx context.Context, requestID string) (*Aggregation, error) {
	var agg Aggregation
	err := r.executeWithRetry(ctx, "repository.aggregate", requestID, func() error {
		return r.db.WithContext(ctx).
			Model(&PredictionRecord{}).
			Select("COUNT(*) AS total_count, " +
				"COUNT(*) FILTER (WHERE label = 'Dog') AS dog_count, " +
				"COALESCE(AVG(probability), 0) AS average_probability").
			Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *PredictionRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	backoff := r.initialBackoff

	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
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

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
