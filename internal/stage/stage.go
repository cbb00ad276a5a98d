// Package stage scopes the transient resources of one request: the staged
// input image on disk and the device memory used by the model call.
package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dmorgan81/customid/internal/codec"
	"github.com/dmorgan81/customid/internal/log"
	"github.com/dmorgan81/customid/internal/validate"
	"github.com/samber/do"
)

// Releaser frees device memory left behind by inference.
type Releaser interface {
	ReleaseMemory(context.Context) error
}

type StagedImage struct {
	Path   string
	Format string
	Width  int
	Height int
}

// Stager hands out one Guard per request.
type Stager struct {
	Root     string
	Releaser Releaser
}

func NewStager(i *do.Injector) (*Stager, error) {
	root := do.MustInvokeNamed[string](i, "tmp_dir")
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("temp root: %w", err)
	}
	return &Stager{Root: root, Releaser: do.MustInvoke[Releaser](i)}, nil
}

func (s *Stager) Acquire() *Guard {
	return &Guard{root: s.Root, releaser: s.Releaser}
}

// Guard owns a request's temporary directory. Close must be deferred
// as soon as the guard is acquired.
type Guard struct {
	root     string
	releaser Releaser
	dir      string
	once     sync.Once
}

// Stage writes the validated input image into the guard's directory.
func (g *Guard) Stage(ctx context.Context, req validate.GenerationRequest) (StagedImage, error) {
	if g.dir == "" {
		dir, err := os.MkdirTemp(g.root, "request-")
		if err != nil {
			return StagedImage{}, fmt.Errorf("error staging input image: %w", err)
		}
		g.dir = dir
	}

	path := filepath.Join(g.dir, "input"+codec.Extension(req.Format))
	if err := os.WriteFile(path, req.ImageBytes, 0o600); err != nil {
		return StagedImage{}, fmt.Errorf("error staging input image: %w", err)
	}

	b := req.Image.Bounds()
	log.FromContextOrDiscard(ctx).WithGroup("stage").Debug("staged input image", "path", path, "format", req.Format)
	return StagedImage{Path: path, Format: req.Format, Width: b.Dx(), Height: b.Dy()}, nil
}

// Dir is the request's temporary directory, empty until something is staged.
func (g *Guard) Dir() string {
	return g.dir
}

// Close removes the temporary directory and releases device memory. Both
// run once no matter how often Close is called; failures are logged only.
func (g *Guard) Close(ctx context.Context) {
	g.once.Do(func() {
		log := log.FromContextOrDiscard(ctx).WithGroup("stage")

		if g.dir != "" {
			if err := os.RemoveAll(g.dir); err != nil {
				log.Warn("error cleaning up temporary files", "dir", g.dir, "error", err)
			}
		}
		if g.releaser != nil {
			if err := g.releaser.ReleaseMemory(ctx); err != nil {
				log.Warn("error releasing device memory", "error", err)
			}
		}
	})
}
