package model

import (
	"context"
	"image"

	"github.com/dmorgan81/customid/internal/normalize"
)

// Handle identifies a component loaded by a Runtime.
type Handle string

type ComposeParams struct {
	Encoder   Handle
	Backbone  Handle
	Device    string
	DType     string
	NumTokens int
}

// Runtime loads the model components and composes them into a Pipeline.
type Runtime interface {
	LoadEncoder(ctx context.Context, path string) (Handle, error)
	LoadBackbone(ctx context.Context, base, checkpoint string) (Handle, error)
	Compose(ctx context.Context, params ComposeParams) (Pipeline, error)
}

type Request struct {
	ImagePath string
	Prompt    string
	Params    normalize.Parameters
}

// Pipeline is a loaded model bound to a device. Implementations are not
// safe for concurrent use; Session serializes access.
type Pipeline interface {
	Generate(ctx context.Context, req Request) ([]image.Image, error)
	ReleaseMemory(ctx context.Context) error
	Close() error
}
