package model

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

func TestPredictRejectsWrongInputSize(t *testing.T) {
	s := &Session{logger: zap.NewNop()}

	_, err := s.Predict(context.Background(), make([]float32, 10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 307200 input values, got 10")
}

func TestPredictHonoursCancelledContext(t *testing.T) {
	s := &Session{logger: zap.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Predict(ctx, make([]float32, numElements(InputShape)))
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeRunner struct {
	destroyed int
}

func (f *fakeRunner) Run(_, _ []ort.ArbitraryTensor) error { return nil }

func (f *fakeRunner) Destroy() error {
	f.destroyed++
	return nil
}

type envCalls struct {
	paths    []string
	inits    int
	destroys int
}

// stubEnvironment replaces the ONNX Runtime environment hooks for one test.
func stubEnvironment(t *testing.T, initErr error) *envCalls {
	t.Helper()
	calls := &envCalls{}

	prevSet, prevInit, prevDestroy, prevRefs := setLibraryPath, initializeEnv, destroyEnv, envRefs
	setLibraryPath = func(path string) { calls.paths = append(calls.paths, path) }
	initializeEnv = func() error {
		calls.inits++
		return initErr
	}
	destroyEnv = func() error {
		calls.destroys++
		return nil
	}
	envRefs = 0
	t.Cleanup(func() {
		setLibraryPath, initializeEnv, destroyEnv, envRefs = prevSet, prevInit, prevDestroy, prevRefs
	})
	return calls
}

func TestDynamicSessionIsRunner(t *testing.T) {
	var r runner = (*ort.DynamicAdvancedSession)(nil)
	assert.NotNil(t, r)
}

func TestEnvironmentIsReferenceCounted(t *testing.T) {
	calls := stubEnvironment(t, nil)

	require.NoError(t, acquireEnvironment("/opt/ort/libonnxruntime.so"))
	require.NoError(t, acquireEnvironment("/opt/ort/libonnxruntime.so"))
	assert.Equal(t, 1, calls.inits)
	assert.Equal(t, []string{"/opt/ort/libonnxruntime.so"}, calls.paths)

	require.NoError(t, releaseEnvironment())
	assert.Equal(t, 0, calls.destroys)

	require.NoError(t, releaseEnvironment())
	assert.Equal(t, 1, calls.destroys)

	require.NoError(t, releaseEnvironment())
	assert.Equal(t, 1, calls.destroys)
}

func TestEnvironmentInitFailureTakesNoReference(t *testing.T) {
	calls := stubEnvironment(t, errors.New("library not found"))

	err := acquireEnvironment("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "library not found")
	assert.Empty(t, calls.paths)
	assert.Equal(t, 0, envRefs)

	require.NoError(t, releaseEnvironment())
	assert.Equal(t, 0, calls.destroys)
}

func TestClosingOneSessionKeepsEnvironmentForOthers(t *testing.T) {
	calls := stubEnvironment(t, nil)

	require.NoError(t, acquireEnvironment(""))
	require.NoError(t, acquireEnvironment(""))
	first := &Session{session: &fakeRunner{}, logger: zap.NewNop()}
	secondRunner := &fakeRunner{}
	second := &Session{session: secondRunner, logger: zap.NewNop()}

	require.NoError(t, first.Close())
	assert.Equal(t, 0, calls.destroys)
	assert.Equal(t, 1, envRefs)

	require.NoError(t, first.Close())
	assert.Equal(t, 1, envRefs)

	require.NoError(t, second.Close())
	assert.Equal(t, 1, secondRunner.destroyed)
	assert.Equal(t, 1, calls.destroys)
}

// Runs only when a real ONNX Runtime library and u2netp model are available.
func TestSessionPredictWithRuntime(t *testing.T) {
	lib, modelPath := os.Getenv("ONNXRUNTIME_LIB"), os.Getenv("MODEL_PATH")
	if lib == "" || modelPath == "" {
		t.Skip("ONNXRUNTIME_LIB and MODEL_PATH not set")
	}
	if _, err := os.Stat(modelPath); err != nil {
		t.Skipf("model not available: %v", err)
	}

	s, err := NewSession(SessionConfig{ModelPath: modelPath, LibraryPath: lib}, zap.NewNop())
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, s.Close())
	}()

	assert.NotEmpty(t, s.IO.InputName)
	assert.NotEmpty(t, s.IO.OutputName)

	input := make([]float32, numElements(InputShape))
	first, err := s.Predict(context.Background(), input)
	require.NoError(t, err)
	assert.Len(t, first, numElements(OutputShape))

	second, err := s.Predict(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
