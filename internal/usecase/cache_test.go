package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
)

func TestPredictionCacheKey(t *testing.T) {
	a := predictionCacheKey([]byte("same bytes"))

	assert.Equal(t, a, predictionCacheKey([]byte("same bytes")))
	assert.NotEqual(t, a, predictionCacheKey([]byte("other bytes")))
	assert.Equal(t, "prediction:da39a3ee5e6b4b0d3255bfef95601890afd80709", predictionCacheKey(nil))
}

func TestNopCacheAlwaysMisses(t *testing.T) {
	var cache Cache = NopCache{}

	assert.NoError(t, cache.Set(context.Background(), "k", "v", time.Minute))
	_, err := cache.Get(context.Background(), "k")
	assert.ErrorIs(t, err, redis.Nil)
}
