package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Brownie44l1/rembg-api/internal/config"
	"github.com/Brownie44l1/rembg-api/internal/handlers"
	"github.com/Brownie44l1/rembg-api/internal/logging"
	"github.com/Brownie44l1/rembg-api/internal/model"
	"github.com/Brownie44l1/rembg-api/internal/rembg"
)

func main() {
	cfg, cfgErr := config.Load()
	level := ""
	if cfgErr == nil {
		level = cfg.LogLevel
	}

	logger, err := logging.NewLogger(level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfgErr != nil {
		logger.Fatal("invalid configuration", zap.Error(cfgErr))
	}

	provisionCtx, cancel := context.WithTimeout(context.Background(), cfg.DownloadTimeout*time.Duration(cfg.DownloadRetries))
	modelPath, err := model.NewProvisioner(cfg.ModelURL, cfg.ModelPath, cfg.DownloadTimeout, cfg.DownloadRetries, logger).
		Ensure(provisionCtx)
	cancel()
	if err != nil {
		logger.Fatal("model provisioning failed", logging.ErrorFields(err)...)
	}

	session, err := model.NewSession(model.SessionConfig{
		ModelPath:      modelPath,
		LibraryPath:    cfg.OnnxRuntimeLib,
		IntraOpThreads: cfg.IntraOpThreads,
		UseCUDA:        cfg.UseCUDA,
	}, logger)
	if err != nil {
		logger.Fatal("failed to load model", zap.Error(err))
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("failed to release model session", zap.Error(err))
		}
	}()

	remover := rembg.NewRemover(session, logger)
	handler := handlers.NewHandler(remover, logger, cfg.MaxUploadBytes)
	router := handlers.NewRouter(handler, cfg.CORSAllowOrigin)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("rembg API listening",
		zap.String("addr", server.Addr),
		zap.String("endpoint", handlers.RemoveBackgroundPath))
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
	}
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

// serveHTTPServerWithOptions serves until the server fails or a shutdown signal
// arrives, then drains in-flight requests for up to shutdownTimeout. A nil
// listener means ListenAndServe; a nil signalCh means SIGINT/SIGTERM.
func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	sigCh := signalCh
	if sigCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
