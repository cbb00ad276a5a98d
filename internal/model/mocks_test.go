package model

import (
	"context"
	"image"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type mockRuntime struct {
	encoderErr  error
	backboneErr error
	composeErr  error

	encoderPath string
	basePath    string
	checkpoint  string
	composed    ComposeParams
	pipeline    *mockPipeline
}

func (m *mockRuntime) LoadEncoder(_ context.Context, path string) (Handle, error) {
	m.encoderPath = path
	return "enc-1", m.encoderErr
}

func (m *mockRuntime) LoadBackbone(_ context.Context, base, checkpoint string) (Handle, error) {
	m.basePath, m.checkpoint = base, checkpoint
	return "bb-1", m.backboneErr
}

func (m *mockRuntime) Compose(_ context.Context, params ComposeParams) (Pipeline, error) {
	m.composed = params
	if m.composeErr != nil {
		return nil, m.composeErr
	}
	if m.pipeline == nil {
		m.pipeline = &mockPipeline{}
	}
	return m.pipeline, nil
}

// mockPipeline renders solid images whose colors derive from the seed.
type mockPipeline struct {
	calls    int
	releases int
	closed   bool
	last     Request

	err       error
	panicWith any
	images    []image.Image
	delay     time.Duration
	active    int
	maxActive int
}

func (m *mockPipeline) Generate(_ context.Context, req Request) ([]image.Image, error) {
	m.active++
	defer func() { m.active-- }()
	if m.active > m.maxActive {
		m.maxActive = m.active
	}

	time.Sleep(m.delay)
	m.calls++
	m.last = req
	if m.panicWith != nil {
		panic(m.panicWith)
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.images != nil {
		return m.images, nil
	}
	return render(req), nil
}

func (m *mockPipeline) ReleaseMemory(context.Context) error {
	m.releases++
	return nil
}

func (m *mockPipeline) Close() error {
	m.closed = true
	return nil
}

func render(req Request) []image.Image {
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
	return out
}

func artifacts(t *testing.T) Artifacts {
	t.Helper()
	dir := t.TempDir()
	a := Artifacts{
		Backbone:   filepath.Join(dir, "flux.1-dev"),
		Checkpoint: filepath.Join(dir, "FLUX-customID.pt"),
		Encoder:    filepath.Join(dir, "openclip-vit-h-14"),
	}
	require.NoError(t, os.Mkdir(a.Backbone, 0o755))
	require.NoError(t, os.WriteFile(a.Checkpoint, []byte("ckpt"), 0o600))
	require.NoError(t, os.Mkdir(a.Encoder, 0o755))
	return a
}
