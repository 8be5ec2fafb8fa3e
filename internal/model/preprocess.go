package model

import (
	"image"
	"image/draw"

	"github.com/nfnt/resize"
)

// letterbox scales img to fit a size×size square keeping its aspect ratio and
// pastes it at the top-left of a black canvas. The returned scale maps source
// coordinates to canvas coordinates.
func letterbox(img *image.RGBA, size int) (*image.RGBA, float32) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	imRatio := float64(h) / float64(w)
	var newW, newH int
	if imRatio > 1 {
		newH = size
		newW = int(float64(newH) / imRatio)
	} else {
		newW = size
		newH = int(float64(newW) * imRatio)
	}
	// resize treats a zero dimension as "keep aspect ratio"
	newW = max(newW, 1)
	newH = max(newH, 1)

	scale := float32(newH) / float32(h)

	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	resized := resize.Resize(uint(newW), uint(newH), img, resize.Bilinear)
	draw.Draw(canvas, image.Rect(0, 0, newW, newH), resized, resized.Bounds().Min, draw.Src)

	return canvas, scale
}

// fillBlob writes img into dst as a planar RGB (CHW) tensor normalised as
// (p - mean) / std. img must be anchored at the origin and dst must hold
// 3*w*h values.
func fillBlob(dst []float32, img *image.RGBA, mean, std float32) {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	plane := width * height

	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			px := row[x*4 : x*4+3]
			i := y*width + x
			dst[i] = (float32(px[0]) - mean) / std
			dst[plane+i] = (float32(px[1]) - mean) / std
			dst[2*plane+i] = (float32(px[2]) - mean) / std
		}
	}
}
