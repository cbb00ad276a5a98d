package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"

	"github.com/dmorgan81/customid/internal/codec"
	"github.com/samber/lo"
)

// Maximum reference image dimensions.
const (
	MaxWidth  = 2048
	MaxHeight = 2048
)

// Input is the "input" object of an invocation event.
type Input struct {
	Image             string          `json:"image"`
	Prompt            string          `json:"prompt"`
	NumSamples        json.RawMessage `json:"num_samples"`
	Height            json.RawMessage `json:"height"`
	Width             json.RawMessage `json:"width"`
	Seed              json.RawMessage `json:"seed"`
	NumInferenceSteps json.RawMessage `json:"num_inference_steps"`
	GuidanceScale     json.RawMessage `json:"guidance_scale"`
}

// GenerationRequest is a validated request. Numeric fields stay nil when
// the caller omitted them; normalization supplies defaults.
type GenerationRequest struct {
	ImageBytes []byte
	Image      image.Image
	Format     string
	Prompt     string

	NumSamples    *int
	Height        *int
	Width         *int
	Seed          *int64
	Steps         *int
	GuidanceScale *float64
}

// Validate turns a raw invocation event into a GenerationRequest.
func Validate(raw []byte) (GenerationRequest, error) {
	var event map[string]json.RawMessage
	if err := json.Unmarshal(raw, &event); err != nil || event == nil {
		return GenerationRequest{}, &ValidationError{Kind: MissingInput, Detail: "request must be a JSON object", Err: err}
	}

	body := bytes.TrimSpace(event["input"])
	if len(body) == 0 {
		return GenerationRequest{}, &ValidationError{Kind: MissingInput, Detail: "no input data provided"}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return GenerationRequest{}, &ValidationError{Kind: MissingInput, Detail: "input must be a JSON object", Err: err}
	}
	if len(fields) == 0 {
		return GenerationRequest{}, &ValidationError{Kind: MissingInput, Detail: "no input data provided"}
	}

	var input Input
	if err := json.Unmarshal(body, &input); err != nil {
		return GenerationRequest{}, invalidField(err)
	}
	return ValidateInput(input)
}

// ValidateInput checks an already decoded input object.
func ValidateInput(input Input) (GenerationRequest, error) {
	if strings.TrimSpace(input.Image) == "" {
		return GenerationRequest{}, &ValidationError{Kind: NoImage, Detail: "no input image provided"}
	}
	if strings.TrimSpace(input.Prompt) == "" {
		return GenerationRequest{}, &ValidationError{Kind: NoPrompt, Detail: "no prompt provided"}
	}

	req := GenerationRequest{Prompt: input.Prompt}
	var err error
	if req.NumSamples, err = intField("num_samples", input.NumSamples); err != nil {
		return GenerationRequest{}, err
	}
	if req.Height, err = intField("height", input.Height); err != nil {
		return GenerationRequest{}, err
	}
	if req.Width, err = intField("width", input.Width); err != nil {
		return GenerationRequest{}, err
	}
	if req.Steps, err = intField("num_inference_steps", input.NumInferenceSteps); err != nil {
		return GenerationRequest{}, err
	}
	if req.Seed, err = int64Field("seed", input.Seed); err != nil {
		return GenerationRequest{}, err
	}
	if req.GuidanceScale, err = floatField("guidance_scale", input.GuidanceScale); err != nil {
		return GenerationRequest{}, err
	}

	data, err := codec.DecodeBase64(input.Image)
	if err != nil {
		return GenerationRequest{}, &ValidationError{Kind: DecodeFailure, Detail: "input image is not valid base64", Err: err}
	}
	img, format, err := checkImage(data)
	if err != nil {
		return GenerationRequest{}, err
	}

	req.ImageBytes = data
	req.Image = img
	req.Format = format
	return req, nil
}

// checkImage validates format and dimensions from the header before paying
// for a full decode.
func checkImage(data []byte) (image.Image, string, error) {
	cfg, format, err := codec.DecodeConfig(data)
	if err != nil {
		return nil, "", &ValidationError{Kind: DecodeFailure, Detail: "cannot read input image", Err: err}
	}
	if !codec.Supported(format) {
		return nil, "", &ValidationError{
			Kind:   UnsupportedFormat,
			Detail: fmt.Sprintf("%s; supported formats: %s", strings.ToUpper(format), strings.Join(codec.SupportedFormats(), ", ")),
		}
	}
	if cfg.Width > MaxWidth || cfg.Height > MaxHeight {
		return nil, "", &ValidationError{
			Kind:   OversizedImage,
			Detail: fmt.Sprintf("%dx%d exceeds maximum allowed size of %dx%d", cfg.Width, cfg.Height, MaxWidth, MaxHeight),
		}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", &ValidationError{Kind: DecodeFailure, Detail: fmt.Sprintf("invalid dimensions %dx%d", cfg.Width, cfg.Height)}
	}

	img, _, err := codec.Decode(data)
	if err != nil {
		return nil, "", &ValidationError{Kind: DecodeFailure, Detail: "cannot decode input image", Err: err}
	}
	return img, format, nil
}

func invalidField(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return &ValidationError{Kind: InvalidParameter, Detail: fmt.Sprintf("%s must be a %s", typeErr.Field, typeErr.Type.Kind()), Err: err}
	}
	return &ValidationError{Kind: MissingInput, Detail: "input must be a JSON object", Err: err}
}

func intField(name string, raw json.RawMessage) (*int, error) {
	v, err := int64Field(name, raw)
	if v == nil || err != nil {
		return nil, err
	}
	i := int(lo.Clamp(*v, math.MinInt, math.MaxInt))
	return &i, nil
}

// int64Field accepts JSON numbers; fractional values are truncated toward
// zero and magnitudes beyond int64 saturate. Quoted numbers are rejected.
func int64Field(name string, raw json.RawMessage) (*int64, error) {
	s, ok := numberLiteral(raw)
	if !ok {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err == nil || errors.Is(err, strconv.ErrRange) {
		// ParseInt already saturates on overflow.
		return &v, nil
	}
	f, err := parseFloat(s)
	if err != nil {
		return nil, &ValidationError{Kind: InvalidParameter, Detail: name + " must be an integer", Err: err}
	}
	switch {
	case f >= maxInt64Float:
		v = math.MaxInt64
	case f <= minInt64Float:
		v = math.MinInt64
	default:
		v = int64(f)
	}
	return &v, nil
}

// Bounds of int64 as float64; 2^63 itself does not fit.
const (
	maxInt64Float = float64(1 << 63)
	minInt64Float = -float64(1 << 63)
)

func floatField(name string, raw json.RawMessage) (*float64, error) {
	s, ok := numberLiteral(raw)
	if !ok {
		return nil, nil
	}
	f, err := parseFloat(s)
	if err != nil {
		return nil, &ValidationError{Kind: InvalidParameter, Detail: name + " must be a number", Err: err}
	}
	return &f, nil
}

// parseFloat keeps the ±Inf or zero ParseFloat returns for out of range
// literals so normalization clamps them to a bound.
func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, err
	}
	return f, nil
}

// numberLiteral returns the trimmed literal, or false when the field was
// omitted or null.
func numberLiteral(raw json.RawMessage) (string, bool) {
	s := string(bytes.TrimSpace(raw))
	if s == "" || s == "null" {
		return "", false
	}
	return s, true
}
