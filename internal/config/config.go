package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"go.uber.org/zap/zapcore"
)

const DefaultModelURL = "https://github.com/danielgatis/rembg/releases/download/v0.0.0/u2netp.onnx"

type Config struct {
	Port string

	ModelURL  string
	ModelPath string

	OnnxRuntimeLib string
	IntraOpThreads int
	UseCUDA        bool

	MaxUploadBytes  int64
	DownloadTimeout time.Duration
	DownloadRetries int
	ShutdownTimeout time.Duration

	CORSAllowOrigin string
	LogLevel        string
}

// Load reads the configuration from the environment, falling back to defaults
// for unset variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		ModelURL:        getEnv("MODEL_URL", DefaultModelURL),
		ModelPath:       getEnv("MODEL_PATH", filepath.Join(os.TempDir(), "u2netp.onnx")),
		OnnxRuntimeLib:  getEnv("ONNXRUNTIME_LIB", defaultLibraryPath()),
		CORSAllowOrigin: getEnv("CORS_ALLOW_ORIGIN", "*"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.IntraOpThreads, err = getEnvInt("ORT_INTRA_OP_THREADS", 0); err != nil {
		return nil, err
	}
	if cfg.UseCUDA, err = getEnvBool("ORT_USE_CUDA", false); err != nil {
		return nil, err
	}
	if cfg.MaxUploadBytes, err = getEnvInt64("MAX_UPLOAD_BYTES", 20<<20); err != nil {
		return nil, err
	}
	if cfg.DownloadTimeout, err = getEnvDuration("DOWNLOAD_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.DownloadRetries, err = getEnvInt("DOWNLOAD_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}

	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", cfg.MaxUploadBytes)
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	if cfg.DownloadRetries < 1 {
		return nil, fmt.Errorf("DOWNLOAD_RETRIES must be at least 1, got %d", cfg.DownloadRetries)
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func defaultLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
