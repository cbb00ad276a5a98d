package model

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime/debug"
	"sync"

	"github.com/dmorgan81/customid/internal/log"
	"github.com/dmorgan81/customid/internal/normalize"
)

var errClosed = errors.New("model session is closed")

type Options struct {
	Artifacts Artifacts
	Device    string
	DType     string
	NumTokens int
}

// Session owns the loaded pipeline for the lifetime of the process. The
// device context is not re-entrant, so every call into the pipeline holds mu.
type Session struct {
	mu       sync.Mutex
	pipeline Pipeline
	closed   bool
}

// New verifies the artifacts, loads the conditioning encoder and the
// backbone, and composes them into a pipeline on opts.Device. Every failure
// is an *InitializationError.
func New(ctx context.Context, rt Runtime, opts Options) (*Session, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("session")

	log.Info("verifying model files", "paths", opts.Artifacts.Paths())
	if err := opts.Artifacts.Verify(); err != nil {
		return nil, err
	}

	log.Info("loading conditioning encoder", "path", opts.Artifacts.Encoder)
	encoder, err := rt.LoadEncoder(ctx, opts.Artifacts.Encoder)
	if err != nil {
		return nil, &InitializationError{Err: fmt.Errorf("load encoder: %w", err)}
	}

	log.Info("loading backbone", "path", opts.Artifacts.Backbone, "checkpoint", opts.Artifacts.Checkpoint)
	backbone, err := rt.LoadBackbone(ctx, opts.Artifacts.Backbone, opts.Artifacts.Checkpoint)
	if err != nil {
		return nil, &InitializationError{Err: fmt.Errorf("load backbone: %w", err)}
	}

	log.Info("composing pipeline", "device", opts.Device, "dtype", opts.DType, "num_tokens", opts.NumTokens)
	pipeline, err := rt.Compose(ctx, ComposeParams{
		Encoder:   encoder,
		Backbone:  backbone,
		Device:    opts.Device,
		DType:     opts.DType,
		NumTokens: opts.NumTokens,
	})
	if err != nil {
		return nil, &InitializationError{Err: fmt.Errorf("compose pipeline: %w", err)}
	}

	log.Info("model loaded successfully")
	return &Session{pipeline: pipeline}, nil
}

// Generate runs one generation call and checks that the pipeline returned
// exactly params.NumSamples images of params.Width x params.Height.
func (s *Session) Generate(ctx context.Context, imagePath, prompt string, params normalize.Parameters) (images []image.Image, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			images, err = nil, &GenerationError{Err: fmt.Errorf("pipeline panic: %v", r)}
		}
	}()

	if s.closed {
		return nil, &GenerationError{Err: errClosed}
	}

	log.FromContextOrDiscard(ctx).WithGroup("session").Info("generating", "samples", params.NumSamples,
		"size", params.ImageSize(), "seed", params.Seed, "steps", params.Steps, "guidance", params.GuidanceScale)

	images, err = s.pipeline.Generate(ctx, Request{ImagePath: imagePath, Prompt: prompt, Params: params})
	if err != nil {
		return nil, &GenerationError{Err: err}
	}
	if len(images) != params.NumSamples {
		return nil, &GenerationError{Err: fmt.Errorf("pipeline returned %d images, expected %d", len(images), params.NumSamples)}
	}
	for i, img := range images {
		if img == nil {
			return nil, &GenerationError{Err: fmt.Errorf("pipeline returned no data for image %d", i)}
		}
		if b := img.Bounds(); b.Dx() != params.Width || b.Dy() != params.Height {
			return nil, &GenerationError{Err: fmt.Errorf("image %d is %dx%d, expected %s", i, b.Dx(), b.Dy(), params.ImageSize())}
		}
	}
	return images, nil
}

// ReleaseMemory clears the pipeline's device cache and returns freed Go
// heap to the OS. It runs after every request.
func (s *Session) ReleaseMemory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer debug.FreeOSMemory()

	if s.closed {
		return nil
	}
	return s.pipeline.ReleaseMemory(ctx)
}

// Shutdown closes the pipeline. It satisfies do.Shutdownable.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.pipeline.Close()
}
