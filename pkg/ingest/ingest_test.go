package ingest

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 7, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodePNG(t *testing.T) {
	img, format, err := Decode(pngBytes(t, 32, 16))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())
	assert.Equal(t, color.NRGBA{R: 5, G: 3, B: 7, A: 255}, img.NRGBAAt(5, 3))
}

func TestDecodeInvalidBytes(t *testing.T) {
	img, _, err := Decode([]byte("definitely not an image"))
	assert.Nil(t, img)
	assert.ErrorIs(t, err, ErrUndecodable)

	img, _, err = Decode(nil)
	assert.Nil(t, img)
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestDecodeTruncated(t *testing.T) {
	data := pngBytes(t, 32, 32)
	img, _, err := Decode(data[:len(data)/2])
	assert.Nil(t, img)
	assert.ErrorIs(t, err, ErrUndecodable)
}

func TestDecodeBase64(t *testing.T) {
	raw := pngBytes(t, 4, 4)
	enc := base64.StdEncoding.EncodeToString(raw)

	got, err := DecodeBase64(enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = DecodeBase64("data:image/png;base64," + enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = DecodeBase64("data:image/png;base64")
	assert.ErrorIs(t, err, ErrUndecodable)

	_, err = DecodeBase64("%%%")
	assert.ErrorIs(t, err, ErrUndecodable)

	_, err = DecodeBase64("  ")
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestFit(t *testing.T) {
	img, _, err := Decode(pngBytes(t, 400, 200))
	require.NoError(t, err)

	fitted := Fit(img, 100)
	assert.Equal(t, 100, fitted.Bounds().Dx())
	assert.Equal(t, 50, fitted.Bounds().Dy())

	assert.Same(t, img, Fit(img, 1000))
	assert.Same(t, img, Fit(img, 0))
}

func TestEncodeRoundTrip(t *testing.T) {
	img, _, err := Decode(pngBytes(t, 10, 10))
	require.NoError(t, err)

	data, mime, err := Encode(img, FormatPNG)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	back, format, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, img.Pix, back.Pix)

	data, mime, err = Encode(img, ParseFormat("whatever"))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
	_, format, err = Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}
