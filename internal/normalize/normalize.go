// Package normalize projects the optional numeric fields of a request onto
// the ranges the model supports. Out of range values are clamped to the
// nearest bound, never rejected.
package normalize

import (
	"fmt"
	"time"

	"github.com/dmorgan81/customid/internal/validate"
	"github.com/samber/lo"
)

const (
	MinSamples     = 1
	MaxSamples     = 4
	DefaultSamples = 1

	MinSize     = 512
	MaxSize     = 2048
	DefaultSize = 1024

	MinSteps     = 1
	MaxSteps     = 50
	DefaultSteps = 28

	MinGuidance     = 1.0
	MaxGuidance     = 20.0
	DefaultGuidance = 3.5
)

type Parameters struct {
	NumSamples    int
	Height        int
	Width         int
	Seed          int64
	Steps         int
	GuidanceScale float64
}

// ImageSize formats the output dimensions as WxH.
func (p Parameters) ImageSize() string {
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

type Normalizer struct {
	Now func() time.Time
}

func New() *Normalizer {
	return &Normalizer{Now: time.Now}
}

func (n *Normalizer) Normalize(req validate.GenerationRequest) Parameters {
	now := lo.Ternary(n.Now != nil, n.Now, time.Now)
	return Parameters{
		NumSamples:    lo.Clamp(valueOr(req.NumSamples, DefaultSamples), MinSamples, MaxSamples),
		Height:        lo.Clamp(valueOr(req.Height, DefaultSize), MinSize, MaxSize),
		Width:         lo.Clamp(valueOr(req.Width, DefaultSize), MinSize, MaxSize),
		Seed:          valueOr(req.Seed, now().Unix()),
		Steps:         lo.Clamp(valueOr(req.Steps, DefaultSteps), MinSteps, MaxSteps),
		GuidanceScale: lo.Clamp(valueOr(req.GuidanceScale, DefaultGuidance), MinGuidance, MaxGuidance),
	}
}

func valueOr[T any](v *T, fallback T) T {
	if v == nil {
		return fallback
	}
	return *v
}
