package model

import (
	"errors"
	"os"

	"github.com/samber/lo"
)

// Artifacts are the on-disk inputs the runtime loads at cold start.
type Artifacts struct {
	Backbone   string
	Checkpoint string
	Encoder    string
}

func (a Artifacts) Paths() []string {
	return []string{a.Backbone, a.Checkpoint, a.Encoder}
}

// Verify returns an *InitializationError listing every path that does not exist.
func (a Artifacts) Verify() error {
	missing := lo.Filter(a.Paths(), func(p string, _ int) bool {
		if p == "" {
			return true
		}
		_, err := os.Stat(p)
		return errors.Is(err, os.ErrNotExist)
	})
	if len(missing) > 0 {
		return &InitializationError{Missing: lo.Map(missing, func(p string, _ int) string {
			return lo.Ternary(p == "", "<unset>", p)
		})}
	}
	return nil
}
