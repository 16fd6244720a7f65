package logging

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const ServiceName = "rembg-api"

// NewLogger builds the JSON logger used by the server at the given level
// ("debug", "info", "warn", "error"). An empty level means info.
func NewLogger(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	cfg.InitialFields = map[string]any{"service": ServiceName}
	return cfg.Build()
}

// WithOperation scopes a logger to an operation and, when known, a request.
func WithOperation(logger *zap.Logger, operation, requestID string) *zap.Logger {
	fields := []zap.Field{zap.String("operation", operation)}
	if requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	return logger.With(fields...)
}

// StageTimer measures consecutive pipeline stages. Each Mark records the time
// since the previous Mark (or since the timer started) under the stage name.
type StageTimer struct {
	start  time.Time
	last   time.Time
	fields []zap.Field
}

func NewStageTimer() *StageTimer {
	now := time.Now()
	return &StageTimer{start: now, last: now}
}

func (t *StageTimer) Mark(stage string) {
	now := time.Now()
	t.fields = append(t.fields, zap.Duration(stage, now.Sub(t.last)))
	t.last = now
}

// Fields returns one duration per marked stage followed by the total.
func (t *StageTimer) Fields() []zap.Field {
	fields := make([]zap.Field, 0, len(t.fields)+1)
	fields = append(fields, t.fields...)
	return append(fields, zap.Duration("total", t.last.Sub(t.start)))
}
