package model

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// The ONNX Runtime environment is process-global. Every Session holds one
// reference; the environment is destroyed when the last one is closed.
var (
	envMu   sync.Mutex
	envRefs int

	setLibraryPath = func(path string) { ort.SetSharedLibraryPath(path) }
	initializeEnv  = func() error { return ort.InitializeEnvironment() }
	destroyEnv     = func() error { return ort.DestroyEnvironment() }
)

// runner is the part of *ort.DynamicAdvancedSession a Session uses.
type runner interface {
	Run(inputs, outputs []ort.ArbitraryTensor) error
	Destroy() error
}

var _ runner = (*ort.DynamicAdvancedSession)(nil)

// Session is a loaded u2netp network shared by all requests. Predict may be
// called concurrently: every call binds its own tensors.
type Session struct {
	session runner
	IO      IOInfo
	logger  *zap.Logger
}

func NewSession(cfg SessionConfig, logger *zap.Logger) (_ *Session, err error) {
	if err := acquireEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, releaseEnvironment())
		}
	}()

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model inputs/outputs: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model %s declares %d inputs and %d outputs", cfg.ModelPath, len(inputs), len(outputs))
	}
	io := IOInfo{InputName: inputs[0].Name, OutputName: outputs[0].Name}

	options, err := newSessionOptions(cfg)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{io.InputName}, []string{io.OutputName}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	logger.Info("model loaded",
		zap.String("path", cfg.ModelPath),
		zap.String("input", io.InputName),
		zap.String("output", io.OutputName),
		zap.Bool("cuda", cfg.UseCUDA))

	return &Session{session: session, IO: io, logger: logger}, nil
}

func acquireEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		if libraryPath != "" {
			setLibraryPath(libraryPath)
		}
		if err := initializeEnv(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		return nil
	}
	envRefs--
	if envRefs > 0 {
		return nil
	}
	if err := destroyEnv(); err != nil {
		return fmt.Errorf("failed to destroy ONNX environment: %w", err)
	}
	return nil
}

func newSessionOptions(cfg SessionConfig) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	if cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			options.Destroy()
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}
	if cfg.UseCUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			options.Destroy()
			return nil, fmt.Errorf("failed to create CUDA options: %w", err)
		}
		defer cudaOptions.Destroy()
		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			options.Destroy()
			return nil, fmt.Errorf("failed to enable CUDA: %w", err)
		}
	}
	return options, nil
}

// Predict runs one forward pass. input must hold 1x3x320x320 values in CHW
// order; the returned slice holds the 1x1x320x320 saliency map.
func (s *Session) Predict(ctx context.Context, input []float32) ([]float32, error) {
	if want := numElements(InputShape); len(input) != want {
		return nil, fmt.Errorf("expected %d input values, got %d", want, len(input))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(InputShape...), input)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(OutputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := s.session.Run([]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	data := outputTensor.GetData()
	out := make([]float32, len(data))
	copy(out, data)
	return out, nil
}

// Close releases the session and its reference on the environment. Closing
// twice is a no-op.
func (s *Session) Close() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return errors.Join(err, releaseEnvironment())
}
