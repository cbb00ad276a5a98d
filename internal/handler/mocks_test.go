package handler

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dmorgan81/customid/internal/model"
	"github.com/dmorgan81/customid/internal/normalize"
	"github.com/dmorgan81/customid/internal/store"
	"github.com/stretchr/testify/require"
)

type mockRuntime struct {
	pipeline *mockPipeline
}

func (m *mockRuntime) LoadEncoder(context.Context, string) (model.Handle, error) {
	return "enc", nil
}

func (m *mockRuntime) LoadBackbone(context.Context, string, string) (model.Handle, error) {
	return "bb", nil
}

func (m *mockRuntime) Compose(context.Context, model.ComposeParams) (model.Pipeline, error) {
	return m.pipeline, nil
}

// mockPipeline renders solid images whose colors derive from the seed, and
// records whether the staged input existed during the call.
type mockPipeline struct {
	calls       int
	releases    int
	last        model.Request
	inputExists bool
	err         error
}

func (m *mockPipeline) Generate(_ context.Context, req model.Request) ([]image.Image, error) {
	m.calls++
	m.last = req
	_, statErr := os.Stat(req.ImagePath)
	m.inputExists = statErr == nil
	if m.err != nil {
		return nil, m.err
	}

	rnd := rand.New(rand.NewSource(req.Params.Seed))
	out := make([]image.Image, req.Params.NumSamples)
	for i := range out {
		img := image.NewNRGBA(image.Rect(0, 0, req.Params.Width, req.Params.Height))
		c := color.NRGBA{uint8(rnd.Intn(256)), uint8(rnd.Intn(256)), uint8(rnd.Intn(256)), 255}
		for p := 0; p < len(img.Pix); p += 4 {
			img.Pix[p], img.Pix[p+1], img.Pix[p+2], img.Pix[p+3] = c.R, c.G, c.B, c.A
		}
		out[i] = img
	}
	return out, nil
}

func (m *mockPipeline) ReleaseMemory(context.Context) error {
	m.releases++
	return nil
}

func (m *mockPipeline) Close() error { return nil }

type panicGenerator struct{}

func (panicGenerator) Generate(context.Context, string, string, normalize.Parameters) ([]image.Image, error) {
	panic("boom")
}

type recordingUploader struct {
	mu      sync.Mutex
	uploads []store.UploadParams
	err     error
}

func (u *recordingUploader) Upload(_ context.Context, params store.UploadParams) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploads = append(u.uploads, params)
	return u.err
}

var errOOM = errors.New("CUDA out of memory")

func artifacts(t *testing.T) model.Artifacts {
	t.Helper()
	dir := t.TempDir()
	a := model.Artifacts{
		Backbone:   filepath.Join(dir, "flux.1-dev"),
		Checkpoint: filepath.Join(dir, "FLUX-customID.pt"),
		Encoder:    filepath.Join(dir, "openclip-vit-h-14"),
	}
	for _, p := range a.Paths() {
		require.NoError(t, os.WriteFile(p, nil, 0o600))
	}
	return a
}
