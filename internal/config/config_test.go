package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "MODEL_URL", "MODEL_PATH", "ONNXRUNTIME_LIB", "ORT_INTRA_OP_THREADS",
	"ORT_USE_CUDA", "MAX_UPLOAD_BYTES", "DOWNLOAD_TIMEOUT", "DOWNLOAD_RETRIES",
	"SHUTDOWN_TIMEOUT", "CORS_ALLOW_ORIGIN", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, DefaultModelURL, cfg.ModelURL)
	assert.Equal(t, filepath.Join(os.TempDir(), "u2netp.onnx"), cfg.ModelPath)
	assert.NotEmpty(t, cfg.OnnxRuntimeLib)
	assert.Equal(t, 0, cfg.IntraOpThreads)
	assert.False(t, cfg.UseCUDA)
	assert.Equal(t, int64(20<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 5*time.Minute, cfg.DownloadTimeout)
	assert.Equal(t, 3, cfg.DownloadRetries)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "*", cfg.CORSAllowOrigin)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("MODEL_PATH", "/models/u2netp.onnx")
	t.Setenv("ORT_INTRA_OP_THREADS", "4")
	t.Setenv("ORT_USE_CUDA", "true")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")
	t.Setenv("DOWNLOAD_TIMEOUT", "30s")
	t.Setenv("DOWNLOAD_RETRIES", "5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr())
	assert.Equal(t, "/models/u2netp.onnx", cfg.ModelPath)
	assert.Equal(t, 4, cfg.IntraOpThreads)
	assert.True(t, cfg.UseCUDA)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
	assert.Equal(t, 30*time.Second, cfg.DownloadTimeout)
	assert.Equal(t, 5, cfg.DownloadRetries)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "threads", key: "ORT_INTRA_OP_THREADS", value: "many"},
		{name: "cuda", key: "ORT_USE_CUDA", value: "maybe"},
		{name: "upload size", key: "MAX_UPLOAD_BYTES", value: "-1"},
		{name: "timeout", key: "DOWNLOAD_TIMEOUT", value: "soon"},
		{name: "retries", key: "DOWNLOAD_RETRIES", value: "0"},
		{name: "shutdown", key: "SHUTDOWN_TIMEOUT", value: "10"},
		{name: "log level", key: "LOG_LEVEL", value: "chatty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
