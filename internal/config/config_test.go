package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default configuration", func(t *testing.T) {
		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Server.Addr)
		assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "json", cfg.Log.Format)
		assert.Equal(t, 10, cfg.Database.MaxOpenConns)
		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
		assert.Equal(t, BackendONNX, cfg.Classifier.Backend)
		assert.Equal(t, "input", cfg.Classifier.InputName)
		assert.Equal(t, 10*time.Second, cfg.Classifier.Timeout)
	})

	t.Run("reads from environment variables", func(t *testing.T) {
		t.Setenv("CATDOG_SERVER_ADDR", ":9090")
		t.Setenv("CATDOG_LOG_LEVEL", "debug")
		t.Setenv("CATDOG_REDIS_ENABLED", "false")
		t.Setenv("CATDOG_CLASSIFIER_BACKEND", "grpc")
		t.Setenv("CATDOG_CLASSIFIER_TIMEOUT", "2s")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, ":9090", cfg.Server.Addr)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.False(t, cfg.Redis.Enabled)
		assert.Equal(t, BackendGRPC, cfg.Classifier.Backend)
		assert.Equal(t, 2*time.Second, cfg.Classifier.Timeout)
	})

	t.Run("reads a config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catdog.yaml")
		content := "classifier:\n  backend: grpc\n  addr: inference:6000\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		t.Setenv("CATDOG_CONFIG", path)

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, BackendGRPC, cfg.Classifier.Backend)
		assert.Equal(t, "inference:6000", cfg.Classifier.Addr)
	})

	t.Run("rejects unknown backend", func(t *testing.T) {
		t.Setenv("CATDOG_CLASSIFIER_BACKEND", "tflite")

		_, err := Load()

		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := Config{
		Database:   DatabaseConfig{DSN: "dsn"},
		Classifier: ClassifierConfig{Backend: BackendGRPC, Addr: "x:1", Timeout: time.Second},
	}
	assert.NoError(t, valid.Validate())

	missingModel := valid
	missingModel.Classifier = ClassifierConfig{Backend: BackendONNX, Timeout: time.Second}
	assert.Error(t, missingModel.Validate())

	zeroTimeout := valid
	zeroTimeout.Classifier.Timeout = 0
	assert.Error(t, zeroTimeout.Validate())

	noDSN := valid
	noDSN.Database.DSN = ""
	assert.Error(t, noDSN.Validate())
}
