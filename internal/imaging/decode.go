// Package imaging turns uploaded bytes into RGB pixel data for the face model.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// SupportedFormats lists the encodings Decode understands.
const SupportedFormats = "JPEG, PNG, GIF, BMP, TIFF, WebP"

// ErrDecode is returned when the input is not an image in a supported format.
var ErrDecode = errors.New("invalid image")

// ErrTooLarge is returned for images with more pixels than allowed. It wraps ErrDecode.
var ErrTooLarge = fmt.Errorf("%w: too many pixels", ErrDecode)

// Decode reads an encoded image and returns it as opaque RGBA anchored at (0,0)
// together with the detected format name. The header is checked first and images
// above maxPixels are rejected before any pixel data is allocated; maxPixels <= 0
// disables the check.
func Decode(r io.Reader, maxPixels int) (*image.RGBA, string, error) {
	var header bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &header))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("%w: empty image", ErrDecode)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d", ErrTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(io.MultiReader(&header, r))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, "", fmt.Errorf("%w: empty image", ErrDecode)
	}
	return ToRGBA(img), format, nil
}

// ToRGBA copies the colour channels of img into a new RGBA image whose bounds
// start at the origin, with alpha forced to 255. Stored colour is kept as is, so
// transparent pixels are not darkened. Opaque RGBA inputs already anchored at the
// origin are returned unchanged.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && rgba.Opaque() {
		return rgba
	}

	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := dst.Pix[(y-b.Min.Y)*dst.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			px := row[(x-b.Min.X)*4:]
			px[0], px[1], px[2], px[3] = c.R, c.G, c.B, 255
		}
	}
	return dst
}
