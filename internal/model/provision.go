package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/Brownie44l1/rembg-api/internal/logging"
)

var errEmptyModel = errors.New("downloaded model is empty")

// Provisioner makes sure a local copy of the model exists before it is loaded.
type Provisioner struct {
	url    string
	path   string
	client *http.Client
	logger *zap.Logger

	mu             sync.Mutex
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewProvisioner(url, path string, timeout time.Duration, retryAttempts int, logger *zap.Logger) *Provisioner {
	return &Provisioner{
		url:            url,
		path:           path,
		client:         &http.Client{Timeout: timeout},
		logger:         logger.Named("provisioner"),
		retryAttempts:  retryAttempts,
		initialBackoff: 200 * time.Millisecond,
		maxBackoff:     5 * time.Second,
	}
}

// Ensure returns the model path, downloading the file first if it is missing.
// The download lands in a temporary file that is renamed into place, so the
// model path never holds a partial file.
func (p *Provisioner) Ensure(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if info, err := os.Stat(p.path); err == nil && info.Size() > 0 {
		p.logger.Debug("model already present", zap.String("path", p.path))
		return p.path, nil
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return "", logging.NewOperationError("model.provision", "", err)
	}

	p.logger.Info("downloading model", zap.String("url", p.url), zap.String("path", p.path))
	start := time.Now()
	if err := p.downloadWithRetry(ctx); err != nil {
		return "", err
	}
	p.logger.Info("model downloaded", zap.Duration("elapsed", time.Since(start)))

	return p.path, nil
}

func (p *Provisioner) downloadWithRetry(ctx context.Context) error {
	const operation = "model.download"
	opLogger := logging.WithOperation(p.logger, operation, "")

	backoff := p.initialBackoff
	var err error
	for attempt := 0; attempt < p.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, "", ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= p.maxBackoff {
				backoff = next
			}
		}

		err = p.download(ctx)
		if err == nil {
			if attempt > 0 {
				opLogger.Info("download succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == p.retryAttempts-1 {
			opLogger.Error("download failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, "", err)
		}

		opLogger.Warn("transient download error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, "", err)
}

func (p *Provisioner) download(ctx context.Context) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}

	tmpPath := fmt.Sprintf("%s.%s.part", p.path, ksuid.New().String())
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	if n == 0 {
		return errEmptyModel
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("sync model: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close model: %w", err)
	}
	if err = os.Rename(tmpPath, p.path); err != nil {
		return fmt.Errorf("move model into place: %w", err)
	}

	p.logger.Debug("model written", zap.Int64("bytes", n))
	return nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("model download failed with status %d", e.code)
}

// Temporary reports 5xx and 429 responses as worth retrying.
func (e *statusError) Temporary() bool {
	return e.code >= http.StatusInternalServerError || e.code == http.StatusTooManyRequests
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
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
