package normalize

import (
	"math"
	"testing"
	"time"

	"github.com/dmorgan81/customid/internal/validate"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

var fixed = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func normalizer() *Normalizer {
	return &Normalizer{Now: func() time.Time { return fixed }}
}

func TestNormalizeDefaults(t *testing.T) {
	p := normalizer().Normalize(validate.GenerationRequest{Prompt: "x"})
	assert.Equal(t, Parameters{
		NumSamples:    1,
		Height:        1024,
		Width:         1024,
		Seed:          fixed.Unix(),
		Steps:         28,
		GuidanceScale: 3.5,
	}, p)
	assert.Equal(t, "1024x1024", p.ImageSize())
}

func TestNormalizeClamps(t *testing.T) {
	tests := []struct {
		name  string
		req   validate.GenerationRequest
		check func(t *testing.T, p Parameters)
	}{
		{"samples above", validate.GenerationRequest{NumSamples: lo.ToPtr(10)}, func(t *testing.T, p Parameters) { assert.Equal(t, 4, p.NumSamples) }},
		{"samples zero", validate.GenerationRequest{NumSamples: lo.ToPtr(0)}, func(t *testing.T, p Parameters) { assert.Equal(t, 1, p.NumSamples) }},
		{"samples negative", validate.GenerationRequest{NumSamples: lo.ToPtr(-3)}, func(t *testing.T, p Parameters) { assert.Equal(t, 1, p.NumSamples) }},
		{"height below", validate.GenerationRequest{Height: lo.ToPtr(64)}, func(t *testing.T, p Parameters) { assert.Equal(t, 512, p.Height) }},
		{"width above", validate.GenerationRequest{Width: lo.ToPtr(4096)}, func(t *testing.T, p Parameters) { assert.Equal(t, 2048, p.Width) }},
		{"steps zero", validate.GenerationRequest{Steps: lo.ToPtr(0)}, func(t *testing.T, p Parameters) { assert.Equal(t, 1, p.Steps) }},
		{"steps above", validate.GenerationRequest{Steps: lo.ToPtr(500)}, func(t *testing.T, p Parameters) { assert.Equal(t, 50, p.Steps) }},
		{"guidance above", validate.GenerationRequest{GuidanceScale: lo.ToPtr(50.0)}, func(t *testing.T, p Parameters) { assert.Equal(t, 20.0, p.GuidanceScale) }},
		{"guidance below", validate.GenerationRequest{GuidanceScale: lo.ToPtr(0.1)}, func(t *testing.T, p Parameters) { assert.Equal(t, 1.0, p.GuidanceScale) }},
		{"samples saturated", validate.GenerationRequest{NumSamples: lo.ToPtr(math.MaxInt)}, func(t *testing.T, p Parameters) { assert.Equal(t, 4, p.NumSamples) }},
		{"size saturated low", validate.GenerationRequest{Height: lo.ToPtr(math.MinInt)}, func(t *testing.T, p Parameters) { assert.Equal(t, 512, p.Height) }},
		{"guidance infinite", validate.GenerationRequest{GuidanceScale: lo.ToPtr(math.Inf(1))}, func(t *testing.T, p Parameters) { assert.Equal(t, 20.0, p.GuidanceScale) }},
		{"guidance negative infinite", validate.GenerationRequest{GuidanceScale: lo.ToPtr(math.Inf(-1))}, func(t *testing.T, p Parameters) { assert.Equal(t, 1.0, p.GuidanceScale) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, normalizer().Normalize(tt.req))
		})
	}
}

func TestNormalizeKeepsInRangeValues(t *testing.T) {
	p := normalizer().Normalize(validate.GenerationRequest{
		NumSamples:    lo.ToPtr(2),
		Height:        lo.ToPtr(768),
		Width:         lo.ToPtr(512),
		Seed:          lo.ToPtr(int64(-42)),
		Steps:         lo.ToPtr(50),
		GuidanceScale: lo.ToPtr(7.25),
	})
	assert.Equal(t, Parameters{NumSamples: 2, Height: 768, Width: 512, Seed: -42, Steps: 50, GuidanceScale: 7.25}, p)
	assert.Equal(t, "512x768", p.ImageSize())
}

func TestNewUsesWallClock(t *testing.T) {
	before := time.Now().Unix()
	p := New().Normalize(validate.GenerationRequest{})
	assert.GreaterOrEqual(t, p.Seed, before)
	assert.LessOrEqual(t, p.Seed, time.Now().Unix())
}
