package validate

import "errors"

type Kind string

const (
	MissingInput      Kind = "missing input"
	NoImage           Kind = "no image"
	NoPrompt          Kind = "no prompt"
	InvalidParameter  Kind = "invalid parameter"
	DecodeFailure     Kind = "decode failure"
	UnsupportedFormat Kind = "unsupported format"
	OversizedImage    Kind = "oversized image"
)

// ValidationError rejects a request before any expensive work starts.
type ValidationError struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// KindOf returns the kind of a wrapped *ValidationError, or "".
func KindOf(err error) Kind {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Kind
	}
	return ""
}
