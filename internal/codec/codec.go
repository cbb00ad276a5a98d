// Package codec handles the image formats the endpoint accepts and emits.
package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/samber/lo"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Format names as reported by image.DecodeConfig.
const (
	JPEG = "jpeg"
	PNG  = "png"
	WEBP = "webp"
)

var supported = []string{JPEG, PNG, WEBP}

var ErrEmpty = errors.New("empty image data")

// Supported reports whether format is one the model accepts as a reference.
func Supported(format string) bool {
	return lo.Contains(supported, format)
}

// SupportedFormats lists the accepted formats for error messages.
func SupportedFormats() []string {
	return lo.Map(supported, func(f string, _ int) string { return strings.ToUpper(f) })
}

// Extension returns the file extension used when staging format.
func Extension(format string) string {
	return lo.Ternary(format == JPEG, ".jpg", "."+format)
}

// DecodeConfig reads only the image header.
func DecodeConfig(data []byte) (image.Config, string, error) {
	if len(data) == 0 {
		return image.Config{}, "", ErrEmpty
	}
	return image.DecodeConfig(bytes.NewReader(data))
}

func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmpty
	}
	return image.Decode(bytes.NewReader(data))
}

// DecodeBase64 accepts standard base64, padded or not, optionally behind a
// data URL prefix such as "data:image/png;base64,".
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if idx := strings.Index(s, ";base64,"); idx >= 0 {
			s = s[idx+len(";base64,"):]
		}
	}
	s = strings.Map(func(r rune) rune {
		return lo.Ternary(r == '\n' || r == '\r', -1, r)
	}, s)

	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(s); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
