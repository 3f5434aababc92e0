// Package ingest turns uploaded or captured image bytes into pixel buffers and back.
package ingest

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// maxPixels bounds the decoded size of a single image.
const maxPixels = 50_000_000

var (
	ErrEmptyImage  = errors.New("image data is empty")
	ErrUndecodable = errors.New("image data could not be decoded")
	ErrTooLarge    = errors.New("image dimensions exceed limit")
)

type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// ParseFormat maps a user supplied format name to a Format, defaulting to JPEG.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return FormatPNG
	default:
		return FormatJPEG
	}
}

func (f Format) MimeType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// Decode reads JPEG, PNG or WebP bytes into an NRGBA buffer. EXIF orientation
// is applied so webcam snapshots come out upright.
func Decode(data []byte) (*image.NRGBA, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("%w: zero sized image", ErrUndecodable)
	}
	if cfg.Width*cfg.Height > maxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	return imaging.Clone(img), format, nil
}

// DecodeBase64 accepts plain base64 or a data URL as produced by a browser canvas.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		idx := strings.Index(s, ",")
		if idx == -1 {
			return nil, fmt.Errorf("%w: malformed data URL", ErrUndecodable)
		}
		s = s[idx+1:]
	}
	if s == "" {
		return nil, ErrEmptyImage
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return data, nil
}

// Fit downscales img so neither side exceeds maxDim. It never upscales.
func Fit(img *image.NRGBA, maxDim int) *image.NRGBA {
	if maxDim <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= maxDim && b.Dy() <= maxDim {
		return img
	}
	return imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
}

// Encode serialises img in the requested format and returns the bytes with their mime type.
func Encode(img image.Image, format Format) ([]byte, string, error) {
	var buf bytes.Buffer
	var err error

	switch format {
	case FormatPNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	default:
		format = FormatJPEG
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90))
	}
	if err != nil {
		return nil, "", err
	}

	return buf.Bytes(), format.MimeType(), nil
}
